package export

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/customsway/backend-cargo/internal/common"
	"github.com/customsway/backend-cargo/internal/expense"
	"github.com/customsway/backend-cargo/internal/record"
)

// RecordGetter loads the cargo record being exported.
type RecordGetter interface {
	Get(ctx context.Context, id uuid.UUID) (record.Record, error)
}

// ExpenseLister loads the stored expense lines for a record.
type ExpenseLister interface {
	List(ctx context.Context, recordID uuid.UUID) ([]expense.StoredItem, error)
}

// Handler serves expense statement downloads.
type Handler struct {
	Records  RecordGetter
	Expenses ExpenseLister
	Now      func() time.Time
}

func (h *Handler) now() time.Time {
	if h != nil && h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// Statement handles GET /records/{recordID}/expenses/export.
func (h *Handler) Statement(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "recordID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid record id", nil)
		return
	}
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "pdf"
	}
	if format != "pdf" && format != "xlsx" {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "format must be pdf or xlsx", nil)
		return
	}

	rec, err := h.Records.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, record.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "record not found", nil)
			return
		}
		common.WriteError(w, err)
		return
	}
	items, err := h.Expenses.List(r.Context(), id)
	if err != nil {
		common.WriteError(w, err)
		return
	}

	now := h.now()
	var payload []byte
	var contentType string
	switch format {
	case "pdf":
		payload, err = BuildExpensePDF(rec, items, now)
		contentType = "application/pdf"
	case "xlsx":
		payload, err = BuildExpenseXLSX(rec, items, now)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if err != nil {
		common.WriteError(w, err)
		return
	}

	filename := fmt.Sprintf("gastos_%s_%s.%s", sanitizeFilename(rec.AWB), now.Format("20060102"), format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func sanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "registro"
	}
	return b.String()
}
