package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/customsway/backend-cargo/internal/obs"
)

// Service provides cached access to the dashboard aggregations.
type Service struct {
	Source Source
	R      redis.UniversalClient
	TTL    time.Duration
	Now    func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func cacheKey(parts ...any) string {
	formatted := make([]string, 0, len(parts))
	for _, part := range parts {
		formatted = append(formatted, fmt.Sprint(part))
	}
	return strings.Join(formatted, ":")
}

// Stats returns the filtered overview counters.
func (s *Service) Stats(ctx context.Context, filter StatsFilter) (Stats, error) {
	if s == nil || s.Source == nil {
		return Stats{}, fmt.Errorf("dashboard service not configured")
	}
	key := cacheKey("dash", "stats", filter.Year, filter.Month, filter.Status,
		filter.Consignatario, filter.Airport, filter.Handling)
	if cached, ok := fromCache[Stats](ctx, s, "stats", key); ok {
		return cached, nil
	}
	rows, err := s.Source.Records(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := ComputeStats(rows, filter)
	s.store(ctx, key, stats)
	return stats, nil
}

// Trends returns the twelve monthly buckets for one year.
func (s *Service) Trends(ctx context.Context, segmentBy, segment string, year int) ([]MonthTrend, error) {
	if s == nil || s.Source == nil {
		return nil, fmt.Errorf("dashboard service not configured")
	}
	key := cacheKey("dash", "trends", segmentBy, segment, year)
	if cached, ok := fromCache[[]MonthTrend](ctx, s, "trends", key); ok {
		return cached, nil
	}
	rows, err := s.Source.Records(ctx)
	if err != nil {
		return nil, err
	}
	yearRows := filterByYear(rows, year)
	expenses, err := s.Source.ExpensesFor(ctx, recordIDs(yearRows))
	if err != nil {
		return nil, err
	}
	trends := ComputeTrends(yearRows, expenses, segmentBy, segment)
	s.store(ctx, key, trends)
	return trends, nil
}

// Comparisons contrasts two years per segment.
func (s *Service) Comparisons(ctx context.Context, segmentBy string, year1, year2 int) ([]Comparison, error) {
	if s == nil || s.Source == nil {
		return nil, fmt.Errorf("dashboard service not configured")
	}
	key := cacheKey("dash", "cmp", segmentBy, year1, year2)
	if cached, ok := fromCache[[]Comparison](ctx, s, "comparisons", key); ok {
		return cached, nil
	}
	rows, err := s.Source.Records(ctx)
	if err != nil {
		return nil, err
	}
	scoped := append(filterByYear(rows, year1), filterByYear(rows, year2)...)
	expenses, err := s.Source.ExpensesFor(ctx, recordIDs(scoped))
	if err != nil {
		return nil, err
	}
	comparisons := ComputeComparisons(rows, expenses, segmentBy, year1, year2)
	s.store(ctx, key, comparisons)
	return comparisons, nil
}

// Expenses groups expense totals for an explicit set of records.
func (s *Service) Expenses(ctx context.Context, ids []uuid.UUID) (ExpenseBreakdown, error) {
	if s == nil || s.Source == nil {
		return ExpenseBreakdown{}, fmt.Errorf("dashboard service not configured")
	}
	empty := ExpenseBreakdown{ExpensesByConcept: []ConceptTotal{}, ExpensesByHandling: []ConceptTotal{}}
	if len(ids) == 0 {
		return empty, nil
	}
	key := cacheKey("dash", "exp", idsKey(ids))
	if cached, ok := fromCache[ExpenseBreakdown](ctx, s, "expenses", key); ok {
		return cached, nil
	}
	rows, err := s.Source.Records(ctx)
	if err != nil {
		return ExpenseBreakdown{}, err
	}
	expenses, err := s.Source.ExpensesFor(ctx, ids)
	if err != nil {
		return ExpenseBreakdown{}, err
	}
	breakdown := ComputeExpenseBreakdown(rows, expenses)
	s.store(ctx, key, breakdown)
	return breakdown, nil
}

// TopConsignatarios ranks consignees for one year.
func (s *Service) TopConsignatarios(ctx context.Context, year, limit int) (TopConsignatarios, error) {
	if s == nil || s.Source == nil {
		return TopConsignatarios{}, fmt.Errorf("dashboard service not configured")
	}
	key := cacheKey("dash", "top", year, limit)
	if cached, ok := fromCache[TopConsignatarios](ctx, s, "top_consignatarios", key); ok {
		return cached, nil
	}
	rows, err := s.Source.Records(ctx)
	if err != nil {
		return TopConsignatarios{}, err
	}
	yearRows := filterByYear(rows, year)
	expenses, err := s.Source.ExpensesFor(ctx, recordIDs(yearRows))
	if err != nil {
		return TopConsignatarios{}, err
	}
	top := ComputeTopConsignatarios(yearRows, expenses, year, limit)
	s.store(ctx, key, top)
	return top, nil
}

// CostPerKg ranks segments by cost efficiency for one year.
func (s *Service) CostPerKg(ctx context.Context, segmentBy string, year int) ([]SegmentCost, error) {
	if s == nil || s.Source == nil {
		return nil, fmt.Errorf("dashboard service not configured")
	}
	key := cacheKey("dash", "cpk", segmentBy, year)
	if cached, ok := fromCache[[]SegmentCost](ctx, s, "cost_per_kg", key); ok {
		return cached, nil
	}
	rows, err := s.Source.Records(ctx)
	if err != nil {
		return nil, err
	}
	yearRows := filterByYear(rows, year)
	expenses, err := s.Source.ExpensesFor(ctx, recordIDs(yearRows))
	if err != nil {
		return nil, err
	}
	results := ComputeCostPerKg(yearRows, expenses, segmentBy, year)
	s.store(ctx, key, results)
	return results, nil
}

// Alerts returns the long-stay warnings and pickup efficiency for one year.
func (s *Service) Alerts(ctx context.Context, year, thresholdDays int) (Alerts, error) {
	if s == nil || s.Source == nil {
		return Alerts{}, fmt.Errorf("dashboard service not configured")
	}
	key := cacheKey("dash", "alerts", year, thresholdDays)
	if cached, ok := fromCache[Alerts](ctx, s, "alerts", key); ok {
		return cached, nil
	}
	rows, err := s.Source.Records(ctx)
	if err != nil {
		return Alerts{}, err
	}
	alerts := ComputeAlerts(rows, year, thresholdDays, s.now())
	s.store(ctx, key, alerts)
	return alerts, nil
}

func recordIDs(rows []Row) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	return ids
}

func idsKey(ids []uuid.UUID) string {
	sorted := make([]string, 0, len(ids))
	for _, id := range ids {
		sorted = append(sorted, id.String())
	}
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

func fromCache[T any](ctx context.Context, s *Service, endpoint, key string) (T, bool) {
	var zero T
	if s.R == nil || s.TTL <= 0 {
		return zero, false
	}
	data, err := s.R.Get(ctx, key).Bytes()
	if err != nil {
		recordCache(endpoint, "miss")
		return zero, false
	}
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		recordCache(endpoint, "miss")
		return zero, false
	}
	recordCache(endpoint, "hit")
	return value, true
}

func (s *Service) store(ctx context.Context, key string, value any) {
	if s.R == nil || s.TTL <= 0 {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = s.R.Set(ctx, key, data, s.TTL).Err()
}

func recordCache(endpoint, outcome string) {
	if obs.DashboardCacheTotal == nil {
		return
	}
	obs.DashboardCacheTotal.WithLabelValues(endpoint, outcome).Inc()
}
