package dashboard

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Placeholder labels for records missing a document field, kept in the
// operators' language.
const (
	noStatus        = "Sin Status"
	noHandling      = "Sin Handling"
	noAirport       = "Sin Aeropuerto"
	noVessel        = "Sin Buque"
	noConsignatario = "Sin Consignatario"
)

var monthNames = [12]string{"Ene", "Feb", "Mar", "Abr", "May", "Jun", "Jul", "Ago", "Sep", "Oct", "Nov", "Dic"}

// StatsFilter narrows the record set for the stats endpoint.
type StatsFilter struct {
	Month         int
	Year          int
	Status        string
	Consignatario string
	Airport       string
	Handling      string
}

// Stats summarises the filtered record set.
type Stats struct {
	TotalRecords  int            `json:"totalRecords"`
	TotalWeight   float64        `json:"totalWeight"`
	TotalPackages int            `json:"totalPackages"`
	ByStatus      map[string]int `json:"byStatus"`
	ByHandling    map[string]int `json:"byHandling"`
	ByAirport     map[string]int `json:"byAirport"`
	PickedUp      int            `json:"pickedUp"`
	Pending       int            `json:"pending"`
	AtAirport     int            `json:"atAirport"`
	RecordIDs     []uuid.UUID    `json:"recordIds"`
}

// MonthTrend is one month's bucket in the yearly trend series.
type MonthTrend struct {
	Month         string  `json:"month"`
	MonthNum      int     `json:"monthNum"`
	TotalExpenses float64 `json:"totalExpenses"`
	TotalWeight   float64 `json:"totalWeight"`
	RecordCount   int     `json:"recordCount"`
	CostPerKg     float64 `json:"costPerKg"`
}

// SegmentYear is one side of a two-year comparison.
type SegmentYear struct {
	Year          int     `json:"year"`
	TotalExpenses float64 `json:"totalExpenses"`
	TotalWeight   float64 `json:"totalWeight"`
	RecordCount   int     `json:"recordCount"`
}

// Comparison is a segment's year-over-year movement. Change is nil when the
// first year had no expenses to compare against.
type Comparison struct {
	Segment string      `json:"segment"`
	Year1   SegmentYear `json:"year1"`
	Year2   SegmentYear `json:"year2"`
	Change  *int        `json:"change"`
}

// ConceptTotal is a grouped expense sum, ordered by amount.
type ConceptTotal struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// ExpenseBreakdown groups expense totals for a set of records.
type ExpenseBreakdown struct {
	TotalExpenses      float64        `json:"totalExpenses"`
	ExpensesByConcept  []ConceptTotal `json:"expensesByConcept"`
	ExpensesByHandling []ConceptTotal `json:"expensesByHandling"`
	Count              int            `json:"count"`
}

// Consignatario is one consignee's aggregate in the top list.
type Consignatario struct {
	Name          string  `json:"name"`
	TotalExpenses float64 `json:"totalExpenses"`
	TotalWeight   float64 `json:"totalWeight"`
	RecordCount   int     `json:"recordCount"`
	Packages      int     `json:"packages"`
	CostPerKg     float64 `json:"costPerKg"`
}

// TopConsignatarios ranks consignees three ways over the same aggregates.
type TopConsignatarios struct {
	ByExpenses          []Consignatario `json:"byExpenses"`
	ByVolume            []Consignatario `json:"byVolume"`
	ByFrequency         []Consignatario `json:"byFrequency"`
	Year                int             `json:"year"`
	TotalConsignatarios int             `json:"totalConsignatarios"`
}

// SegmentCost is a segment's cost efficiency.
type SegmentCost struct {
	Segment       string  `json:"segment"`
	TotalExpenses float64 `json:"totalExpenses"`
	TotalWeight   float64 `json:"totalWeight"`
	RecordCount   int     `json:"recordCount"`
	CostPerKg     float64 `json:"costPerKg"`
}

// LongStay is a shipment sitting at the airport past the alert threshold.
type LongStay struct {
	ID            uuid.UUID `json:"id"`
	AWB           string    `json:"awb"`
	Recipient     string    `json:"recipient"`
	Handling      string    `json:"handling"`
	Airport       string    `json:"airport"`
	ArrivalDate   string    `json:"arrivalDate"`
	DaysAtAirport int       `json:"daysAtAirport"`
	Weight        float64   `json:"weight"`
}

// Alerts is the operational warning summary.
type Alerts struct {
	Alerts struct {
		LongStays      []LongStay `json:"longStays"`
		LongStaysCount int        `json:"longStaysCount"`
		Threshold      int        `json:"threshold"`
	} `json:"alerts"`
	Efficiency struct {
		AvgPickupDays         float64 `json:"avgPickupDays"`
		CompletedRecordsCount int     `json:"completedRecordsCount"`
	} `json:"efficiency"`
	StatusSummary struct {
		Pending   int `json:"pending"`
		AtAirport int `json:"atAirport"`
		PickedUp  int `json:"pickedUp"`
		Billed    int `json:"billed"`
		Total     int `json:"total"`
	} `json:"statusSummary"`
	Year int `json:"year"`
}

func recordYear(r Row) int {
	if r.Year != 0 {
		return r.Year
	}
	return r.CreatedAt.Year()
}

func filterByYear(rows []Row, year int) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if recordYear(r) == year {
			out = append(out, r)
		}
	}
	return out
}

func parseDocDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func segmentValue(r Row, segmentBy string) string {
	switch segmentBy {
	case "consignatario":
		return valueOr(r.Recipient, noConsignatario)
	case "handling":
		return valueOr(r.Data.Handling, noHandling)
	case "airport":
		return valueOr(r.Data.Airport, noAirport)
	case "vessel":
		return valueOr(r.Data.VesselName, noVessel)
	}
	return "Otros"
}

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func sumByRecord(expenses []ExpenseRow) map[uuid.UUID]float64 {
	totals := map[uuid.UUID]float64{}
	for _, e := range expenses {
		totals[e.RecordID] += e.Amount
	}
	return totals
}

// ComputeStats mirrors the operators' dashboard overview card.
func ComputeStats(rows []Row, filter StatsFilter) Stats {
	filtered := make([]Row, 0, len(rows))
	for _, r := range rows {
		if filter.Year != 0 && recordYear(r) != filter.Year {
			continue
		}
		if filter.Month != 0 {
			date, ok := statusDate(r)
			if !ok || int(date.Month()) != filter.Month {
				continue
			}
		}
		if filter.Status != "" && r.Data.Status != filter.Status {
			continue
		}
		if filter.Consignatario != "" &&
			!strings.Contains(strings.ToLower(r.Recipient), strings.ToLower(filter.Consignatario)) {
			continue
		}
		if filter.Airport != "" && r.Data.Airport != filter.Airport {
			continue
		}
		if filter.Handling != "" && r.Data.Handling != filter.Handling {
			continue
		}
		filtered = append(filtered, r)
	}

	stats := Stats{
		ByStatus:   map[string]int{},
		ByHandling: map[string]int{},
		ByAirport:  map[string]int{},
		RecordIDs:  make([]uuid.UUID, 0, len(filtered)),
	}
	for _, r := range filtered {
		stats.TotalRecords++
		stats.TotalWeight += r.Weight
		stats.TotalPackages += r.Data.Packages
		stats.ByStatus[valueOr(r.Data.Status, noStatus)]++
		stats.ByHandling[valueOr(r.Data.Handling, noHandling)]++
		stats.ByAirport[valueOr(r.Data.Airport, noAirport)]++
		if r.Data.PickupConfirmed {
			stats.PickedUp++
		} else {
			stats.Pending++
			if r.Data.ArrivedAtAirport {
				stats.AtAirport++
			}
		}
		stats.RecordIDs = append(stats.RecordIDs, r.ID)
	}
	stats.TotalWeight = round2(stats.TotalWeight)
	return stats
}

// statusDate picks the date a record is attributed to in the stats month
// filter: pickup first, arrival second, creation as a last resort.
func statusDate(r Row) (time.Time, bool) {
	if t, ok := parseDocDate(r.Data.PickupDate); ok {
		return t, true
	}
	if t, ok := parseDocDate(r.Data.ArrivalDate); ok {
		return t, true
	}
	if !r.CreatedAt.IsZero() {
		return r.CreatedAt, true
	}
	return time.Time{}, false
}

// trendDate attributes a record to a month for the trend series: arrival
// first, pickup second, creation last.
func trendDate(r Row) (time.Time, bool) {
	if t, ok := parseDocDate(r.Data.ArrivalDate); ok {
		return t, true
	}
	if t, ok := parseDocDate(r.Data.PickupDate); ok {
		return t, true
	}
	if !r.CreatedAt.IsZero() {
		return r.CreatedAt, true
	}
	return time.Time{}, false
}

// ComputeTrends buckets a year's records and expenses into twelve months.
func ComputeTrends(rows []Row, expenses []ExpenseRow, segmentBy, segment string) []MonthTrend {
	filtered := rows
	if segment != "" {
		filtered = make([]Row, 0, len(rows))
		for _, r := range rows {
			if matchesSegment(r, segmentBy, segment) {
				filtered = append(filtered, r)
			}
		}
	}

	type bucket struct {
		expenses float64
		weight   float64
		count    int
	}
	buckets := [12]bucket{}
	recordMonth := map[uuid.UUID]int{}

	for _, r := range filtered {
		date, ok := trendDate(r)
		if !ok {
			continue
		}
		month := int(date.Month())
		buckets[month-1].count++
		buckets[month-1].weight += r.Weight
		recordMonth[r.ID] = month
	}
	for _, e := range expenses {
		if month, ok := recordMonth[e.RecordID]; ok {
			buckets[month-1].expenses += e.Amount
		}
	}

	trends := make([]MonthTrend, 0, 12)
	for i, b := range buckets {
		costPerKg := 0.0
		if b.weight > 0 {
			costPerKg = round2(b.expenses / b.weight)
		}
		trends = append(trends, MonthTrend{
			Month:         monthNames[i],
			MonthNum:      i + 1,
			TotalExpenses: round2(b.expenses),
			TotalWeight:   round2(b.weight),
			RecordCount:   b.count,
			CostPerKg:     costPerKg,
		})
	}
	return trends
}

func matchesSegment(r Row, segmentBy, segment string) bool {
	switch segmentBy {
	case "consignatario":
		return strings.Contains(strings.ToLower(r.Recipient), strings.ToLower(segment))
	case "handling":
		return r.Data.Handling == segment
	case "airport":
		return r.Data.Airport == segment
	case "vessel":
		return strings.Contains(strings.ToLower(r.Data.VesselName), strings.ToLower(segment))
	}
	return true
}

// ComputeComparisons contrasts two years per segment, top 15 by the second
// year's spend.
func ComputeComparisons(rows []Row, expenses []ExpenseRow, segmentBy string, year1, year2 int) []Comparison {
	rowsYear1 := filterByYear(rows, year1)
	rowsYear2 := filterByYear(rows, year2)
	totals := sumByRecord(expenses)

	type agg struct {
		expenses float64
		weight   float64
		count    int
	}
	aggregate := func(recs []Row) map[string]agg {
		out := map[string]agg{}
		for _, r := range recs {
			key := segmentValue(r, segmentBy)
			entry := out[key]
			entry.count++
			entry.weight += r.Weight
			entry.expenses += totals[r.ID]
			out[key] = entry
		}
		return out
	}
	data1 := aggregate(rowsYear1)
	data2 := aggregate(rowsYear2)

	segments := map[string]struct{}{}
	for key := range data1 {
		segments[key] = struct{}{}
	}
	for key := range data2 {
		segments[key] = struct{}{}
	}

	comparisons := make([]Comparison, 0, len(segments))
	for segment := range segments {
		a, b := data1[segment], data2[segment]
		comparison := Comparison{
			Segment: segment,
			Year1:   SegmentYear{Year: year1, TotalExpenses: round2(a.expenses), TotalWeight: round2(a.weight), RecordCount: a.count},
			Year2:   SegmentYear{Year: year2, TotalExpenses: round2(b.expenses), TotalWeight: round2(b.weight), RecordCount: b.count},
		}
		if a.expenses != 0 {
			change := int(math.Round((b.expenses - a.expenses) / a.expenses * 100))
			comparison.Change = &change
		}
		comparisons = append(comparisons, comparison)
	}

	sort.Slice(comparisons, func(i, j int) bool {
		if comparisons[i].Year2.TotalExpenses != comparisons[j].Year2.TotalExpenses {
			return comparisons[i].Year2.TotalExpenses > comparisons[j].Year2.TotalExpenses
		}
		return comparisons[i].Segment < comparisons[j].Segment
	})
	if len(comparisons) > 15 {
		comparisons = comparisons[:15]
	}
	return comparisons
}

// ComputeExpenseBreakdown groups expense totals by concept and by the
// owning record's handling company.
func ComputeExpenseBreakdown(rows []Row, expenses []ExpenseRow) ExpenseBreakdown {
	handlingByRecord := map[uuid.UUID]string{}
	for _, r := range rows {
		handlingByRecord[r.ID] = valueOr(r.Data.Handling, noHandling)
	}

	byConcept := map[string]float64{}
	byHandling := map[string]float64{}
	total := 0.0
	for _, e := range expenses {
		total += e.Amount
		byConcept[valueOr(e.Concept, "Otros")] += e.Amount
		handling, ok := handlingByRecord[e.RecordID]
		if !ok {
			handling = noHandling
		}
		byHandling[handling] += e.Amount
	}

	return ExpenseBreakdown{
		TotalExpenses:      round2(total),
		ExpensesByConcept:  sortedTotals(byConcept),
		ExpensesByHandling: sortedTotals(byHandling),
		Count:              len(expenses),
	}
}

func sortedTotals(totals map[string]float64) []ConceptTotal {
	out := make([]ConceptTotal, 0, len(totals))
	for name, amount := range totals {
		out = append(out, ConceptTotal{Name: name, Amount: round2(amount)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount > out[j].Amount
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// ComputeTopConsignatarios ranks consignees by spend, volume, and shipment
// count for one year.
func ComputeTopConsignatarios(rows []Row, expenses []ExpenseRow, year, limit int) TopConsignatarios {
	if limit <= 0 {
		limit = 10
	}
	filtered := filterByYear(rows, year)
	totals := sumByRecord(expenses)

	type agg struct {
		expenses float64
		weight   float64
		count    int
		packages int
	}
	data := map[string]agg{}
	for _, r := range filtered {
		key := valueOr(r.Recipient, noConsignatario)
		entry := data[key]
		entry.count++
		entry.weight += r.Weight
		entry.expenses += totals[r.ID]
		entry.packages += r.Data.Packages
		data[key] = entry
	}

	results := make([]Consignatario, 0, len(data))
	for name, entry := range data {
		costPerKg := 0.0
		if entry.weight > 0 {
			costPerKg = round2(entry.expenses / entry.weight)
		}
		results = append(results, Consignatario{
			Name:          name,
			TotalExpenses: round2(entry.expenses),
			TotalWeight:   round2(entry.weight),
			RecordCount:   entry.count,
			Packages:      entry.packages,
			CostPerKg:     costPerKg,
		})
	}

	top := TopConsignatarios{Year: year, TotalConsignatarios: len(results)}
	top.ByExpenses = topBy(results, limit, func(a, b Consignatario) bool { return a.TotalExpenses > b.TotalExpenses })
	top.ByVolume = topBy(results, limit, func(a, b Consignatario) bool { return a.TotalWeight > b.TotalWeight })
	top.ByFrequency = topBy(results, limit, func(a, b Consignatario) bool { return a.RecordCount > b.RecordCount })
	return top
}

func topBy(results []Consignatario, limit int, less func(a, b Consignatario) bool) []Consignatario {
	sorted := make([]Consignatario, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool {
		if less(sorted[i], sorted[j]) != less(sorted[j], sorted[i]) {
			return less(sorted[i], sorted[j])
		}
		return sorted[i].Name < sorted[j].Name
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

// ComputeCostPerKg ranks segments by cost per kilogram for one year, top 20.
func ComputeCostPerKg(rows []Row, expenses []ExpenseRow, segmentBy string, year int) []SegmentCost {
	filtered := filterByYear(rows, year)
	totals := sumByRecord(expenses)

	type agg struct {
		expenses float64
		weight   float64
		count    int
	}
	data := map[string]agg{}
	for _, r := range filtered {
		key := segmentValue(r, segmentBy)
		entry := data[key]
		entry.count++
		entry.weight += r.Weight
		entry.expenses += totals[r.ID]
		data[key] = entry
	}

	results := make([]SegmentCost, 0, len(data))
	for segment, entry := range data {
		costPerKg := 0.0
		if entry.weight > 0 {
			costPerKg = round2(entry.expenses / entry.weight)
		}
		results = append(results, SegmentCost{
			Segment:       segment,
			TotalExpenses: round2(entry.expenses),
			TotalWeight:   round2(entry.weight),
			RecordCount:   entry.count,
			CostPerKg:     costPerKg,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].CostPerKg != results[j].CostPerKg {
			return results[i].CostPerKg > results[j].CostPerKg
		}
		return results[i].Segment < results[j].Segment
	})
	if len(results) > 20 {
		results = results[:20]
	}
	return results
}

// ComputeAlerts flags shipments sitting at the airport past the threshold
// and summarises pickup efficiency for the year.
func ComputeAlerts(rows []Row, year, thresholdDays int, now time.Time) Alerts {
	if thresholdDays <= 0 {
		thresholdDays = 3
	}
	filtered := filterByYear(rows, year)

	longStays := []LongStay{}
	for _, r := range filtered {
		if !r.Data.ArrivedAtAirport || r.Data.PickupConfirmed {
			continue
		}
		arrival, ok := parseDocDate(r.Data.ArrivalDate)
		arrivalLabel := r.Data.ArrivalDate
		if !ok {
			arrival = r.CreatedAt
			arrivalLabel = r.CreatedAt.Format("2006-01-02")
		}
		days := int(now.Sub(arrival) / (24 * time.Hour))
		if days < thresholdDays {
			continue
		}
		longStays = append(longStays, LongStay{
			ID:            r.ID,
			AWB:           r.AWB,
			Recipient:     r.Recipient,
			Handling:      valueOr(r.Data.Handling, noHandling),
			Airport:       valueOr(r.Data.Airport, noAirport),
			ArrivalDate:   arrivalLabel,
			DaysAtAirport: days,
			Weight:        r.Weight,
		})
	}
	sort.Slice(longStays, func(i, j int) bool {
		if longStays[i].DaysAtAirport != longStays[j].DaysAtAirport {
			return longStays[i].DaysAtAirport > longStays[j].DaysAtAirport
		}
		return longStays[i].AWB < longStays[j].AWB
	})

	out := Alerts{Year: year}
	out.Alerts.LongStaysCount = len(longStays)
	out.Alerts.Threshold = thresholdDays
	if len(longStays) > 10 {
		longStays = longStays[:10]
	}
	out.Alerts.LongStays = longStays

	completed := 0
	totalDays := 0
	for _, r := range filtered {
		if !r.Data.ArrivedAtAirport || !r.Data.PickupConfirmed {
			continue
		}
		arrival, okA := parseDocDate(r.Data.ArrivalDate)
		pickup, okP := parseDocDate(r.Data.PickupDate)
		if !okA || !okP {
			continue
		}
		completed++
		days := int(pickup.Sub(arrival) / (24 * time.Hour))
		if days > 0 {
			totalDays += days
		}
	}
	out.Efficiency.CompletedRecordsCount = completed
	if completed > 0 {
		out.Efficiency.AvgPickupDays = round1(float64(totalDays) / float64(completed))
	}

	for _, r := range filtered {
		switch {
		case r.Data.PickupConfirmed:
			out.StatusSummary.PickedUp++
		case r.Data.ArrivedAtAirport:
			out.StatusSummary.AtAirport++
		default:
			out.StatusSummary.Pending++
		}
		if r.Data.BillingConfirmed {
			out.StatusSummary.Billed++
		}
	}
	out.StatusSummary.Total = len(filtered)
	return out
}
