package tariff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when no tariff matches the requested id.
var ErrNotFound = errors.New("tariff not found")

// Store persists tariff rules and uploaded tariff documents.
type Store struct {
	Pool *pgxpool.Pool
}

const ruleColumns = `id, handling_company, year, concept, price_type, price_per_unit, min_price, weight_range_min, weight_range_max, created_at`

// List returns tariffs ordered by company and concept, optionally filtered
// by year and handling company.
func (s *Store) List(ctx context.Context, year int, company string) ([]Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM tariffs`
	args := []any{}
	clause := ""
	idx := 1
	if year > 0 {
		clause = fmt.Sprintf(" WHERE year = $%d", idx)
		args = append(args, year)
		idx++
	}
	if company != "" {
		if clause == "" {
			clause = fmt.Sprintf(" WHERE handling_company = $%d", idx)
		} else {
			clause += fmt.Sprintf(" AND handling_company = $%d", idx)
		}
		args = append(args, company)
	}
	rows, err := s.Pool.Query(ctx, query+clause+` ORDER BY handling_company, concept`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRules(rows)
}

// ListForCompanyYear returns every tariff scoped to (company, year) — the
// working set for one expense calculation. All matching rows are assumed to
// fit in memory.
func (s *Store) ListForCompanyYear(ctx context.Context, company string, year int) ([]Rule, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT `+ruleColumns+` FROM tariffs WHERE handling_company = $1 AND year = $2 ORDER BY concept`,
		company, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRules(rows)
}

// Create inserts a tariff rule and returns it with its generated id.
func (s *Store) Create(ctx context.Context, r Rule) (Rule, error) {
	row := s.Pool.QueryRow(ctx,
		`INSERT INTO tariffs (handling_company, year, concept, price_type, price_per_unit, min_price, weight_range_min, weight_range_max)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+ruleColumns,
		r.HandlingCompany, r.Year, r.Concept, string(r.PriceType),
		numericFrom(r.PricePerUnit), numericFromPtr(r.MinPrice),
		numericFromPtr(r.WeightRangeMin), numericFromPtr(r.WeightRangeMax))
	return scanRule(row)
}

// Update replaces the mutable fields of an existing tariff rule.
func (s *Store) Update(ctx context.Context, id uuid.UUID, r Rule) (Rule, error) {
	row := s.Pool.QueryRow(ctx,
		`UPDATE tariffs
		 SET handling_company = $2, year = $3, concept = $4, price_type = $5,
		     price_per_unit = $6, min_price = $7, weight_range_min = $8, weight_range_max = $9
		 WHERE id = $1
		 RETURNING `+ruleColumns,
		id, r.HandlingCompany, r.Year, r.Concept, string(r.PriceType),
		numericFrom(r.PricePerUnit), numericFromPtr(r.MinPrice),
		numericFromPtr(r.WeightRangeMin), numericFromPtr(r.WeightRangeMax))
	updated, err := scanRule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Rule{}, ErrNotFound
	}
	return updated, err
}

// Delete removes a tariff rule.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM tariffs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Upsert inserts the provided rules, replacing rows that collide on the
// (company, year, concept, weight range) natural key. Used by the importer.
func (s *Store) Upsert(ctx context.Context, rules []Rule) (int, error) {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	count := 0
	for _, r := range rules {
		_, err := tx.Exec(ctx,
			`INSERT INTO tariffs (handling_company, year, concept, price_type, price_per_unit, min_price, weight_range_min, weight_range_max)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (handling_company, year, concept, weight_range_min, weight_range_max)
			 DO UPDATE SET price_type = EXCLUDED.price_type, price_per_unit = EXCLUDED.price_per_unit, min_price = EXCLUDED.min_price`,
			r.HandlingCompany, r.Year, r.Concept, string(r.PriceType),
			numericFrom(r.PricePerUnit), numericFromPtr(r.MinPrice),
			numericFromPtr(r.WeightRangeMin), numericFromPtr(r.WeightRangeMax))
		if err != nil {
			return 0, err
		}
		count++
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return count, nil
}

// Document is an uploaded tariff sheet kept alongside the parsed rules.
type Document struct {
	ID              uuid.UUID `json:"id"`
	HandlingCompany string    `json:"handling_company"`
	Year            int       `json:"year"`
	Filename        string    `json:"filename"`
	UploadedAt      time.Time `json:"uploaded_at"`
}

// SaveDocument stores an uploaded tariff PDF.
func (s *Store) SaveDocument(ctx context.Context, company string, year int, filename string, content []byte) (Document, error) {
	var doc Document
	err := s.Pool.QueryRow(ctx,
		`INSERT INTO tariff_documents (handling_company, year, filename, content)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, handling_company, year, filename, uploaded_at`,
		company, year, filename, content).
		Scan(&doc.ID, &doc.HandlingCompany, &doc.Year, &doc.Filename, &doc.UploadedAt)
	return doc, err
}

func scanRules(rows pgx.Rows) ([]Rule, error) {
	out := []Rule{}
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRule(row pgx.Row) (Rule, error) {
	var (
		r         Rule
		priceType string
		price     pgtype.Numeric
		minPrice  pgtype.Numeric
		wMin      pgtype.Numeric
		wMax      pgtype.Numeric
	)
	err := row.Scan(&r.ID, &r.HandlingCompany, &r.Year, &r.Concept, &priceType,
		&price, &minPrice, &wMin, &wMax, &r.CreatedAt)
	if err != nil {
		return Rule{}, err
	}
	r.PriceType = PriceType(priceType)
	r.PricePerUnit = decimalFrom(price)
	r.MinPrice = decimalFromPtr(minPrice)
	r.WeightRangeMin = decimalFromPtr(wMin)
	r.WeightRangeMax = decimalFromPtr(wMax)
	return r, nil
}

func decimalFrom(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

func decimalFromPtr(n pgtype.Numeric) *decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return nil
	}
	d := decimal.NewFromBigInt(n.Int, n.Exp)
	return &d
}

func numericFrom(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func numericFromPtr(d *decimal.Decimal) pgtype.Numeric {
	if d == nil {
		return pgtype.Numeric{}
	}
	return numericFrom(*d)
}
