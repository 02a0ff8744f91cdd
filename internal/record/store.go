package record

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a cargo record does not exist.
var ErrNotFound = errors.New("record not found")

// Record is one air-waybill shipment. Operational details that change shape
// between airlines and airports live in the Data document rather than in
// fixed columns.
type Record struct {
	ID        uuid.UUID       `json:"id"`
	AWB       string          `json:"awb"`
	Recipient string          `json:"recipient"`
	WeightKg  decimal.Decimal `json:"weight"`
	Packages  int             `json:"packages"`
	Year      int             `json:"year"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Input carries the writable fields of a record.
type Input struct {
	AWB       string          `json:"awb" validate:"required,max=40"`
	Recipient string          `json:"recipient" validate:"max=200"`
	WeightKg  decimal.Decimal `json:"weight"`
	Packages  int             `json:"packages" validate:"gte=0"`
	Year      int             `json:"year" validate:"required,gte=2000,lte=2100"`
	Data      json.RawMessage `json:"data"`
}

// Store persists cargo records.
type Store struct {
	Pool *pgxpool.Pool
}

const recordColumns = `id, awb, recipient, weight, packages, year, data, created_at, updated_at`

// List returns records newest first.
func (s *Store) List(ctx context.Context, limit, offset int) ([]Record, int64, error) {
	var total int64
	if err := s.Pool.QueryRow(ctx, `SELECT count(*) FROM cargo_records`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.Pool.Query(ctx,
		`SELECT `+recordColumns+` FROM cargo_records ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	records, err := scanRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// Get returns one record by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Record, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM cargo_records WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

// Create inserts a record.
func (s *Store) Create(ctx context.Context, in Input) (Record, error) {
	row := s.Pool.QueryRow(ctx,
		`INSERT INTO cargo_records (awb, recipient, weight, packages, year, data)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+recordColumns,
		in.AWB, in.Recipient, numericFrom(in.WeightKg), in.Packages, in.Year, dataOrEmpty(in.Data))
	return scanRecord(row)
}

// Update replaces a record's mutable fields.
func (s *Store) Update(ctx context.Context, id uuid.UUID, in Input) (Record, error) {
	row := s.Pool.QueryRow(ctx,
		`UPDATE cargo_records
		 SET awb = $2, recipient = $3, weight = $4, packages = $5, year = $6, data = $7, updated_at = now()
		 WHERE id = $1
		 RETURNING `+recordColumns,
		id, in.AWB, in.Recipient, numericFrom(in.WeightKg), in.Packages, in.Year, dataOrEmpty(in.Data))
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

// Delete removes a record. Stored expense items go with it via the foreign
// key cascade.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM cargo_records WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func dataOrEmpty(data json.RawMessage) json.RawMessage {
	if len(data) == 0 {
		return json.RawMessage(`{}`)
	}
	return data
}

func scanRecords(rows pgx.Rows) ([]Record, error) {
	out := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec    Record
		weight pgtype.Numeric
	)
	err := row.Scan(&rec.ID, &rec.AWB, &rec.Recipient, &weight, &rec.Packages, &rec.Year,
		&rec.Data, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return Record{}, err
	}
	if weight.Valid && weight.Int != nil {
		rec.WeightKg = decimal.NewFromBigInt(weight.Int, weight.Exp)
	}
	return rec, nil
}

func numericFrom(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}
