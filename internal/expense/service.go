package expense

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/customsway/backend-cargo/internal/common"
	"github.com/customsway/backend-cargo/internal/lock"
	"github.com/customsway/backend-cargo/internal/obs"
	"github.com/customsway/backend-cargo/internal/tariff"
)

// CalcResponse is what a recalculation returns to the client.
type CalcResponse struct {
	Success  bool         `json:"success"`
	Expenses []StoredItem `json:"expenses"`
	Total    float64      `json:"total"`
	Message  string       `json:"message,omitempty"`
}

// ItemStore is the persistence surface the service needs for line items.
type ItemStore interface {
	List(ctx context.Context, recordID uuid.UUID) ([]StoredItem, error)
	Replace(ctx context.Context, recordID uuid.UUID, items []LineItem) ([]StoredItem, error)
	DeleteForRecord(ctx context.Context, recordID uuid.UUID) error
}

// TariffSource yields the tariff sheet for one company and year.
type TariffSource interface {
	ListForCompanyYear(ctx context.Context, company string, year int) ([]tariff.Rule, error)
}

// Service runs the calculation engine against stored tariffs and persists
// the outcome.
type Service struct {
	Store   ItemStore
	Tariffs TariffSource
	Config  Config
	Log     zerolog.Logger
	// Locker serialises concurrent recalculations of the same record.
	// Optional; when nil the replace still runs in a single transaction.
	Locker  *lock.Locker
	LockTTL time.Duration
}

// List returns the stored line items for a record.
func (s *Service) List(ctx context.Context, recordID uuid.UUID) ([]StoredItem, error) {
	return s.Store.List(ctx, recordID)
}

// Recalculate prices the shipment against the company's tariff sheet for
// the pickup year and replaces the record's stored items with the result.
func (s *Service) Recalculate(ctx context.Context, recordID uuid.UUID, req Request) (CalcResponse, error) {
	if err := validateRequest(req); err != nil {
		return CalcResponse{}, err
	}

	if s.Locker != nil {
		var resp CalcResponse
		err := s.Locker.WithLock(ctx, "lock:expense:"+recordID.String(), s.LockTTL, func(ctx context.Context) error {
			var innerErr error
			resp, innerErr = s.recalculate(ctx, recordID, req)
			return innerErr
		})
		return resp, err
	}
	return s.recalculate(ctx, recordID, req)
}

func (s *Service) recalculate(ctx context.Context, recordID uuid.UUID, req Request) (CalcResponse, error) {

	year := req.PickupDate.Year()
	rules, err := s.Tariffs.ListForCompanyYear(ctx, req.HandlingCompany, year)
	if err != nil {
		recordCalc(req.HandlingCompany, "error")
		return CalcResponse{}, err
	}

	result := Calculate(req, rules, s.Config)
	if len(result.Items) == 0 {
		if err := s.Store.DeleteForRecord(ctx, recordID); err != nil {
			recordCalc(req.HandlingCompany, "error")
			return CalcResponse{}, err
		}
		recordCalc(req.HandlingCompany, "empty")
		s.Log.Info().
			Str("record_id", recordID.String()).
			Str("company", req.HandlingCompany).
			Int("year", year).
			Msg("expense calculation produced no items")
		return CalcResponse{
			Success:  true,
			Expenses: []StoredItem{},
			Message:  fmt.Sprintf("No se encontraron tarifas para %s en %d", req.HandlingCompany, year),
		}, nil
	}

	stored, err := s.Store.Replace(ctx, recordID, result.Items)
	if err != nil {
		recordCalc(req.HandlingCompany, "error")
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return CalcResponse{}, common.NewAppError("NOT_FOUND", "record not found", http.StatusNotFound, err)
		}
		return CalcResponse{}, err
	}

	recordCalc(req.HandlingCompany, "ok")
	total, _ := result.Total.Float64()
	if obs.ExpenseCalcTotalAmount != nil {
		obs.ExpenseCalcTotalAmount.WithLabelValues(req.HandlingCompany).Observe(total)
	}
	s.Log.Info().
		Str("record_id", recordID.String()).
		Str("company", req.HandlingCompany).
		Int("year", year).
		Int("items", len(stored)).
		Str("total", result.Total.String()).
		Msg("expenses recalculated")

	return CalcResponse{Success: true, Expenses: stored, Total: total}, nil
}

func validateRequest(req Request) error {
	if strings.TrimSpace(req.HandlingCompany) == "" {
		return common.NewAppError("BAD_REQUEST", "handling_company is required", http.StatusBadRequest, nil)
	}
	if req.PickupDate.IsZero() {
		return common.NewAppError("BAD_REQUEST", "pickup_date is required", http.StatusBadRequest, nil)
	}
	if req.WeightKg.IsNegative() {
		return common.NewAppError("BAD_REQUEST", "weight must not be negative", http.StatusBadRequest, nil)
	}
	return nil
}

func recordCalc(company, result string) {
	if obs.ExpenseCalcTotal != nil {
		obs.ExpenseCalcTotal.WithLabelValues(company, result).Inc()
	}
}
