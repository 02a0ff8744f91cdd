package dashboard

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Row is the slice of a cargo record the dashboards aggregate over. The
// operational document is decoded once here so the aggregations work on
// plain fields.
type Row struct {
	ID        uuid.UUID
	AWB       string
	Recipient string
	Weight    float64
	Year      int
	CreatedAt time.Time
	Data      DataDoc
}

// DataDoc is the subset of the record's JSON document the dashboards read.
type DataDoc struct {
	Handling         string `json:"handling"`
	Airport          string `json:"airport"`
	Status           string `json:"status"`
	VesselName       string `json:"vessel_name"`
	ArrivalDate      string `json:"arrival_date"`
	PickupDate       string `json:"pickup_date"`
	ArrivedAtAirport bool   `json:"arrived_at_airport"`
	PickupConfirmed  bool   `json:"pickup_confirmed"`
	BillingConfirmed bool   `json:"billing_confirmed"`
	Packages         int    `json:"packages"`
}

// ExpenseRow is one stored line item, reduced to what aggregation needs.
type ExpenseRow struct {
	RecordID uuid.UUID
	Concept  string
	Amount   float64
}

// Source supplies the data the dashboard aggregations run over.
type Source interface {
	Records(ctx context.Context) ([]Row, error)
	ExpensesFor(ctx context.Context, recordIDs []uuid.UUID) ([]ExpenseRow, error)
}

// PGSource reads dashboard data from Postgres.
type PGSource struct {
	Pool *pgxpool.Pool
}

// Records loads every cargo record. The whole book of business fits in
// memory comfortably; filtering happens in the aggregation step because
// most filters touch the JSON document.
func (s *PGSource) Records(ctx context.Context) ([]Row, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT id, awb, recipient, weight, year, data, created_at FROM cargo_records`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Row{}
	for rows.Next() {
		var (
			row    Row
			weight pgtype.Numeric
			data   []byte
		)
		if err := rows.Scan(&row.ID, &row.AWB, &row.Recipient, &weight, &row.Year, &data, &row.CreatedAt); err != nil {
			return nil, err
		}
		if weight.Valid && weight.Int != nil {
			row.Weight, _ = decimal.NewFromBigInt(weight.Int, weight.Exp).Float64()
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &row.Data)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ExpensesFor loads the stored line items of the given records.
func (s *PGSource) ExpensesFor(ctx context.Context, recordIDs []uuid.UUID) ([]ExpenseRow, error) {
	if len(recordIDs) == 0 {
		return []ExpenseRow{}, nil
	}
	rows, err := s.Pool.Query(ctx,
		`SELECT record_id, concept, amount FROM record_expenses WHERE record_id = ANY($1)`, recordIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ExpenseRow{}
	for rows.Next() {
		var (
			row    ExpenseRow
			amount pgtype.Numeric
		)
		if err := rows.Scan(&row.RecordID, &row.Concept, &amount); err != nil {
			return nil, err
		}
		if amount.Valid && amount.Int != nil {
			row.Amount, _ = decimal.NewFromBigInt(amount.Int, amount.Exp).Float64()
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
