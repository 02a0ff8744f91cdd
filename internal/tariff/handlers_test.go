package tariff

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestTariffRouter(store Storage) chi.Router {
	h := &Handler{Service: newTestTariffService(store)}
	r := chi.NewRouter()
	r.Get("/tariffs", h.List)
	r.Post("/tariffs", h.Create)
	r.Put("/tariffs/{tariffID}", h.Update)
	r.Delete("/tariffs/{tariffID}", h.Delete)
	r.Post("/tariffs/import", h.Import)
	r.Post("/tariffs/upload", h.Upload)
	r.Post("/tariffs/extract", h.ExtractConfig)
	return r
}

func TestTariffListFiltersByYear(t *testing.T) {
	store := newFakeTariffStore(
		Rule{ID: uuid.New(), HandlingCompany: "Swissport", Year: 2025, Concept: "Gestión Documental"},
		Rule{ID: uuid.New(), HandlingCompany: "Swissport", Year: 2026, Concept: "Gestión Documental"},
	)
	router := newTestTariffRouter(store)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/tariffs?year=2026", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Data []Rule `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.Equal(t, 2026, body.Data[0].Year)
}

func TestTariffCreateEndpoint(t *testing.T) {
	store := newFakeTariffStore()
	router := newTestTariffRouter(store)

	payload := `{"handlingCompany":"Swissport","year":2026,"concept":"Gestión Documental","priceType":"fixed","pricePerUnit":14.5}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/tariffs", bytes.NewBufferString(payload)))

	require.Equal(t, http.StatusCreated, rr.Code)
	require.Len(t, store.rules, 1)
}

func TestTariffImportRejectsAttachedFile(t *testing.T) {
	router := newTestTariffRouter(newFakeTariffStore())

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	require.NoError(t, form.WriteField("handling_company", "Swissport"))
	require.NoError(t, form.WriteField("year", "2026"))
	part, err := form.CreateFormFile("file", "tarifas.xlsx")
	require.NoError(t, err)
	_, err = part.Write([]byte("PK"))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/tariffs/import", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "UNSUPPORTED_FILE")
}

func TestTariffImportManualRows(t *testing.T) {
	store := newFakeTariffStore()
	router := newTestTariffRouter(store)

	rows := []ImportInput{
		{Concept: "Gestión Documental", PriceType: PriceFixed, PricePerUnit: decimal.NewFromFloat(14.50)},
	}
	raw, err := json.Marshal(rows)
	require.NoError(t, err)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	require.NoError(t, form.WriteField("handling_company", "Swissport"))
	require.NoError(t, form.WriteField("year", "2026"))
	require.NoError(t, form.WriteField("tariffs", string(raw)))
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/tariffs/import", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"imported":1`)
	require.Len(t, store.upserted, 1)
}

func TestTariffUploadRejectsNonPDF(t *testing.T) {
	router := newTestTariffRouter(newFakeTariffStore())

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	require.NoError(t, form.WriteField("handling_company", "Swissport"))
	require.NoError(t, form.WriteField("year", "2026"))
	part, err := form.CreateFormFile("file", "tarifas.docx")
	require.NoError(t, err)
	_, err = part.Write([]byte("PK"))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/tariffs/upload", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "UNSUPPORTED_FILE")
}

func TestExtractEndpointRequiresText(t *testing.T) {
	router := newTestTariffRouter(newFakeTariffStore())

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/tariffs/extract", bytes.NewBufferString(`{"text":"  ","company":"Swissport"}`)))

	require.Equal(t, http.StatusBadRequest, rr.Code)
}
