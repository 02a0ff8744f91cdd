package dashboard

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/customsway/backend-cargo/internal/common"
)

// Handler exposes the dashboard aggregation endpoints.
type Handler struct {
	Service *Service
	// AlertStaleDays is the default long-stay threshold when the request
	// does not override it.
	AlertStaleDays int
}

// Stats handles GET /dashboard/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := StatsFilter{
		Year:          common.AtoiDefault(q.Get("year"), 0),
		Month:         common.AtoiDefault(q.Get("month"), 0),
		Status:        q.Get("status"),
		Consignatario: q.Get("consignatario"),
		Airport:       q.Get("airport"),
		Handling:      q.Get("handling"),
	}
	stats, err := h.Service.Stats(r.Context(), filter)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, stats)
}

// Trends handles GET /dashboard/trends.
func (h *Handler) Trends(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	segmentBy := q.Get("segmentBy")
	if segmentBy == "" {
		segmentBy = "handling"
	}
	year := common.AtoiDefault(q.Get("year"), h.Service.now().Year())
	trends, err := h.Service.Trends(r.Context(), segmentBy, q.Get("segment"), year)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"trends": trends, "year": year})
}

// Comparisons handles GET /dashboard/comparisons.
func (h *Handler) Comparisons(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	segmentBy := q.Get("segmentBy")
	if segmentBy == "" {
		segmentBy = "handling"
	}
	currentYear := h.Service.now().Year()
	year1 := common.AtoiDefault(q.Get("year1"), currentYear-1)
	year2 := common.AtoiDefault(q.Get("year2"), currentYear)
	comparisons, err := h.Service.Comparisons(r.Context(), segmentBy, year1, year2)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"comparisons": comparisons,
		"year1":       year1,
		"year2":       year2,
	})
}

// Expenses handles GET /dashboard/expenses.
func (h *Handler) Expenses(w http.ResponseWriter, r *http.Request) {
	ids := parseIDList(r.URL.Query().Get("recordIds"))
	breakdown, err := h.Service.Expenses(r.Context(), ids)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, breakdown)
}

// TopConsignatarios handles GET /dashboard/top-consignatarios.
func (h *Handler) TopConsignatarios(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	year := common.AtoiDefault(q.Get("year"), h.Service.now().Year())
	limit := common.AtoiDefault(q.Get("limit"), 10)
	top, err := h.Service.TopConsignatarios(r.Context(), year, limit)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, top)
}

// CostPerKg handles GET /dashboard/cost-per-kg.
func (h *Handler) CostPerKg(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	segmentBy := q.Get("segmentBy")
	if segmentBy == "" {
		segmentBy = "handling"
	}
	year := common.AtoiDefault(q.Get("year"), h.Service.now().Year())
	results, err := h.Service.CostPerKg(r.Context(), segmentBy, year)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": results, "year": year})
}

// Alerts handles GET /dashboard/alerts.
func (h *Handler) Alerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	year := common.AtoiDefault(q.Get("year"), h.Service.now().Year())
	threshold := h.AlertStaleDays
	if threshold <= 0 {
		threshold = 3
	}
	threshold = common.AtoiDefault(q.Get("days"), threshold)
	alerts, err := h.Service.Alerts(r.Context(), year, threshold)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, alerts)
}

func parseIDList(raw string) []uuid.UUID {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]uuid.UUID, 0, len(parts))
	for _, part := range parts {
		id, err := uuid.Parse(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
