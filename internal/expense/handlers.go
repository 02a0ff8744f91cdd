package expense

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/customsway/backend-cargo/internal/common"
)

// Handler exposes per-record expense endpoints.
type Handler struct {
	Service *Service
}

type calcRequest struct {
	HandlingCompany      string           `json:"handling_company"`
	Weight               decimal.Decimal  `json:"weight"`
	Packages             int              `json:"packages"`
	ArrivalDate          string           `json:"arrival_date"`
	PickupDate           string           `json:"pickup_date"`
	ExtraTruckLoading    bool             `json:"extra_truck_loading"`
	ExtraExpressHandling bool             `json:"extra_express_handling"`
	ExtraAfterHours      bool             `json:"extra_after_hours"`
	ExtraWeekend         bool             `json:"extra_weekend"`
	CustomConcept        string           `json:"custom_expense_concept"`
	CustomAmount         *decimal.Decimal `json:"custom_expense_amount"`
}

// List handles GET /api/v1/records/{recordID}/expenses.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	recordID, ok := parseRecordID(w, r)
	if !ok {
		return
	}
	items, err := h.Service.List(r.Context(), recordID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": items})
}

// Calculate handles POST /api/v1/records/{recordID}/expenses.
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	recordID, ok := parseRecordID(w, r)
	if !ok {
		return
	}
	var body calcRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}
	req, err := toRequest(body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	resp, err := h.Service.Recalculate(r.Context(), recordID, req)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, resp)
}

func toRequest(body calcRequest) (Request, error) {
	req := Request{
		HandlingCompany:      strings.TrimSpace(body.HandlingCompany),
		WeightKg:             body.Weight,
		Packages:             body.Packages,
		ExtraTruckLoading:    body.ExtraTruckLoading,
		ExtraExpressHandling: body.ExtraExpressHandling,
		ExtraAfterHours:      body.ExtraAfterHours,
		ExtraWeekend:         body.ExtraWeekend,
		CustomConcept:        strings.TrimSpace(body.CustomConcept),
		CustomAmount:         body.CustomAmount,
	}
	if strings.TrimSpace(body.PickupDate) == "" {
		return Request{}, errMissingField("pickup_date")
	}
	pickup, err := parseDate(body.PickupDate)
	if err != nil {
		return Request{}, errBadDate("pickup_date")
	}
	req.PickupDate = pickup
	if strings.TrimSpace(body.ArrivalDate) != "" {
		arrival, err := parseDate(body.ArrivalDate)
		if err != nil {
			return Request{}, errBadDate("arrival_date")
		}
		req.ArrivalDate = &arrival
	}
	return req, nil
}

func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, value)
}

type fieldError struct{ msg string }

func (e fieldError) Error() string { return e.msg }

func errMissingField(name string) error {
	return fieldError{msg: name + " is required"}
}

func errBadDate(name string) error {
	return fieldError{msg: name + " must be a date (YYYY-MM-DD)"}
}

func parseRecordID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "recordID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid record id", nil)
		return uuid.Nil, false
	}
	return id, true
}
