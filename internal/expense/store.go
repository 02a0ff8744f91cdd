package expense

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// StoredItem is a persisted expense line item.
type StoredItem struct {
	ID        uuid.UUID       `json:"id"`
	RecordID  uuid.UUID       `json:"record_id"`
	Concept   string          `json:"concept"`
	Amount    decimal.Decimal `json:"amount"`
	IsManual  bool            `json:"is_manual"`
	TariffID  *uuid.UUID      `json:"tariff_id"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store persists expense line items.
type Store struct {
	Pool *pgxpool.Pool
}

// List returns a record's stored line items, oldest first.
func (s *Store) List(ctx context.Context, recordID uuid.UUID) ([]StoredItem, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT id, record_id, concept, amount, is_manual, tariff_id, created_at
		 FROM record_expenses WHERE record_id = $1 ORDER BY created_at, id`, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

// Replace swaps a record's line items for a freshly calculated set in one
// transaction. Recalculation is a full replace, never a merge.
func (s *Store) Replace(ctx context.Context, recordID uuid.UUID, items []LineItem) ([]StoredItem, error) {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM record_expenses WHERE record_id = $1`, recordID); err != nil {
		return nil, err
	}

	stored := make([]StoredItem, 0, len(items))
	for _, item := range items {
		var (
			row    StoredItem
			amount pgtype.Numeric
		)
		err := tx.QueryRow(ctx,
			`INSERT INTO record_expenses (record_id, concept, amount, is_manual, tariff_id)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id, record_id, concept, amount, is_manual, tariff_id, created_at`,
			recordID, item.Concept, numericFrom(item.Amount), item.IsManual, item.SourceTariffID).
			Scan(&row.ID, &row.RecordID, &row.Concept, &amount, &row.IsManual, &row.TariffID, &row.CreatedAt)
		if err != nil {
			return nil, err
		}
		row.Amount = decimalFrom(amount)
		stored = append(stored, row)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return stored, nil
}

// DeleteForRecord removes all stored items for a record.
func (s *Store) DeleteForRecord(ctx context.Context, recordID uuid.UUID) error {
	_, err := s.Pool.Exec(ctx, `DELETE FROM record_expenses WHERE record_id = $1`, recordID)
	return err
}

func scanItems(rows pgx.Rows) ([]StoredItem, error) {
	out := []StoredItem{}
	for rows.Next() {
		var (
			row    StoredItem
			amount pgtype.Numeric
		)
		if err := rows.Scan(&row.ID, &row.RecordID, &row.Concept, &amount, &row.IsManual, &row.TariffID, &row.CreatedAt); err != nil {
			return nil, err
		}
		row.Amount = decimalFrom(amount)
		out = append(out, row)
	}
	return out, rows.Err()
}

func decimalFrom(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

func numericFrom(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}
