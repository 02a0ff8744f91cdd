package tariff

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/customsway/backend-cargo/internal/common"
	"github.com/customsway/backend-cargo/internal/obs"
)

// Input carries the writable fields of a tariff rule.
type Input struct {
	HandlingCompany string           `json:"handlingCompany" validate:"required,max=120"`
	Year            int              `json:"year" validate:"required,gte=2000,lte=2100"`
	Concept         string           `json:"concept" validate:"required,max=200"`
	PriceType       PriceType        `json:"priceType" validate:"required,oneof=fixed per_kg per_package config"`
	PricePerUnit    decimal.Decimal  `json:"pricePerUnit"`
	MinPrice        *decimal.Decimal `json:"minPrice"`
	WeightRangeMin  *decimal.Decimal `json:"weightRangeMin"`
	WeightRangeMax  *decimal.Decimal `json:"weightRangeMax"`
}

// ImportInput is one row of a manual tariff import.
type ImportInput struct {
	Concept        string           `json:"concept" validate:"required,max=200"`
	PriceType      PriceType        `json:"priceType" validate:"required,oneof=fixed per_kg per_package config"`
	PricePerUnit   decimal.Decimal  `json:"pricePerUnit"`
	MinPrice       *decimal.Decimal `json:"minPrice"`
	WeightRangeMin *decimal.Decimal `json:"weightRangeMin"`
	WeightRangeMax *decimal.Decimal `json:"weightRangeMax"`
}

// Storage is the store surface the service depends on.
type Storage interface {
	List(ctx context.Context, year int, company string) ([]Rule, error)
	Create(ctx context.Context, r Rule) (Rule, error)
	Update(ctx context.Context, id uuid.UUID, r Rule) (Rule, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Upsert(ctx context.Context, rules []Rule) (int, error)
	SaveDocument(ctx context.Context, company string, year int, filename string, content []byte) (Document, error)
}

// Service implements tariff management on top of the store.
type Service struct {
	Store    Storage
	Validate *validator.Validate
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// List returns rules filtered by year and handling company.
func (s *Service) List(ctx context.Context, year int, company string) ([]Rule, error) {
	return s.Store.List(ctx, year, company)
}

// Create validates and inserts a tariff rule.
func (s *Service) Create(ctx context.Context, in Input) (Rule, error) {
	if err := s.validateInput(in); err != nil {
		return Rule{}, err
	}
	rule, err := s.Store.Create(ctx, toRule(in))
	if err != nil {
		return Rule{}, mapStoreErr(err)
	}
	return rule, nil
}

// Update validates and rewrites a tariff rule.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in Input) (Rule, error) {
	if err := s.validateInput(in); err != nil {
		return Rule{}, err
	}
	rule, err := s.Store.Update(ctx, id, toRule(in))
	if err != nil {
		return Rule{}, mapStoreErr(err)
	}
	return rule, nil
}

// Delete removes a tariff rule.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return mapStoreErr(s.Store.Delete(ctx, id))
}

// Import upserts a batch of manually entered rules for one company and year.
func (s *Service) Import(ctx context.Context, company string, year int, rows []ImportInput) (int, error) {
	if strings.TrimSpace(company) == "" {
		return 0, common.NewAppError("BAD_REQUEST", "handling_company is required", http.StatusBadRequest, nil)
	}
	if year < 2000 || year > 2100 {
		return 0, common.NewAppError("BAD_REQUEST", "year out of range", http.StatusBadRequest, nil)
	}
	if len(rows) == 0 {
		return 0, common.NewAppError("BAD_REQUEST", "tariffs array is empty", http.StatusBadRequest, nil)
	}
	rules := make([]Rule, 0, len(rows))
	for i, row := range rows {
		if s.Validate != nil {
			if err := s.Validate.Struct(row); err != nil {
				return 0, common.NewAppError("VALIDATION", fmt.Sprintf("tariff row %d is invalid", i), http.StatusBadRequest, err)
			}
		}
		rules = append(rules, Rule{
			HandlingCompany: strings.TrimSpace(company),
			Year:            year,
			Concept:         strings.TrimSpace(row.Concept),
			PriceType:       row.PriceType,
			PricePerUnit:    row.PricePerUnit,
			MinPrice:        row.MinPrice,
			WeightRangeMin:  row.WeightRangeMin,
			WeightRangeMax:  row.WeightRangeMax,
		})
	}
	count, err := s.Store.Upsert(ctx, rules)
	if err != nil {
		recordImport("error")
		return 0, mapStoreErr(err)
	}
	recordImport("ok")
	return count, nil
}

// StoreDocument persists an uploaded tariff sheet for later reference.
func (s *Service) StoreDocument(ctx context.Context, company string, year int, filename string, content []byte) (Document, error) {
	if strings.TrimSpace(company) == "" {
		return Document{}, common.NewAppError("BAD_REQUEST", "handling_company is required", http.StatusBadRequest, nil)
	}
	if year < 2000 || year > 2100 {
		return Document{}, common.NewAppError("BAD_REQUEST", "year out of range", http.StatusBadRequest, nil)
	}
	stored := fmt.Sprintf("%s_%d_%s_%s", sanitizeName(company), year, s.now().Format("20060102T150405"), filename)
	saved, err := s.Store.SaveDocument(ctx, strings.TrimSpace(company), year, stored, content)
	if err != nil {
		return Document{}, mapStoreErr(err)
	}
	return saved, nil
}

func (s *Service) validateInput(in Input) error {
	if s.Validate == nil {
		return nil
	}
	if err := s.Validate.Struct(in); err != nil {
		return common.NewAppError("VALIDATION", "invalid tariff payload", http.StatusBadRequest, err)
	}
	return nil
}

func toRule(in Input) Rule {
	return Rule{
		HandlingCompany: strings.TrimSpace(in.HandlingCompany),
		Year:            in.Year,
		Concept:         strings.TrimSpace(in.Concept),
		PriceType:       in.PriceType,
		PricePerUnit:    in.PricePerUnit,
		MinPrice:        in.MinPrice,
		WeightRangeMin:  in.WeightRangeMin,
		WeightRangeMax:  in.WeightRangeMax,
	}
}

func mapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return common.NewAppError("NOT_FOUND", "tariff not found", http.StatusNotFound, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return common.NewAppError("CONFLICT", "tariff already exists for this company, year and concept", http.StatusConflict, err)
	}
	return err
}

func recordImport(result string) {
	if obs.TariffImportTotal != nil {
		obs.TariffImportTotal.WithLabelValues(result).Inc()
	}
}

func sanitizeName(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, strings.TrimSpace(raw))
	return strings.Trim(cleaned, "-")
}
