package expense

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/customsway/backend-cargo/internal/tariff"
)

// Read and recalculate share one path: GET lists the stored items, POST
// replaces them with a fresh calculation.
func newExpenseRouter(store *fakeItemStore, tariffs *fakeTariffSource) chi.Router {
	h := &Handler{Service: newTestExpenseService(store, tariffs)}
	r := chi.NewRouter()
	r.Route("/records/{recordID}/expenses", func(child chi.Router) {
		child.Get("/", h.List)
		child.Post("/", h.Calculate)
	})
	return r
}

func TestExpensesGetAndPostSamePath(t *testing.T) {
	recordID := uuid.New()
	store := &fakeItemStore{
		items: []StoredItem{{ID: uuid.New(), RecordID: recordID, Concept: "Documentos", Amount: decimal.NewFromFloat(12.50)}},
	}
	tariffs := &fakeTariffSource{rules: []tariff.Rule{fixedRule("Gestión Documental", 14.50)}}
	router := newExpenseRouter(store, tariffs)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/records/"+recordID.String()+"/expenses", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "Documentos")

	payload := `{"handling_company":"Swissport","weight":120,"packages":2,"pickup_date":"2026-03-10"}`
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/records/"+recordID.String()+"/expenses", bytes.NewBufferString(payload)))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp CalcResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Len(t, resp.Expenses, 1)
	require.Equal(t, 14.50, resp.Total)
	require.Len(t, store.replaced, 1)
}

func TestCalculateRejectsBadDates(t *testing.T) {
	router := newExpenseRouter(&fakeItemStore{}, &fakeTariffSource{})
	recordID := uuid.New()

	rr := httptest.NewRecorder()
	payload := `{"handling_company":"Swissport","weight":120,"pickup_date":"10/03/2026"}`
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/records/"+recordID.String()+"/expenses", bytes.NewBufferString(payload)))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	payload = `{"handling_company":"Swissport","weight":120}`
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/records/"+recordID.String()+"/expenses", bytes.NewBufferString(payload)))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCalculateRejectsBadRecordID(t *testing.T) {
	router := newExpenseRouter(&fakeItemStore{}, &fakeTariffSource{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/records/not-a-uuid/expenses", bytes.NewBufferString(`{}`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
