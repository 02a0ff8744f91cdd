package record

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeStorage struct {
	records   map[uuid.UUID]Record
	createErr error
	lastInput Input
	lastLimit int
	lastOff   int
}

func newFakeStorage(records ...Record) *fakeStorage {
	f := &fakeStorage{records: map[uuid.UUID]Record{}}
	for _, rec := range records {
		f.records[rec.ID] = rec
	}
	return f
}

func (f *fakeStorage) List(_ context.Context, limit, offset int) ([]Record, int64, error) {
	f.lastLimit, f.lastOff = limit, offset
	out := make([]Record, 0, len(f.records))
	for _, rec := range f.records {
		out = append(out, rec)
	}
	return out, int64(len(f.records)), nil
}

func (f *fakeStorage) Get(_ context.Context, id uuid.UUID) (Record, error) {
	rec, ok := f.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (f *fakeStorage) Create(_ context.Context, in Input) (Record, error) {
	if f.createErr != nil {
		return Record{}, f.createErr
	}
	f.lastInput = in
	rec := Record{
		ID:        uuid.New(),
		AWB:       in.AWB,
		Recipient: in.Recipient,
		WeightKg:  in.WeightKg,
		Packages:  in.Packages,
		Year:      in.Year,
		Data:      in.Data,
		CreatedAt: time.Now(),
	}
	f.records[rec.ID] = rec
	return rec, nil
}

func (f *fakeStorage) Update(_ context.Context, id uuid.UUID, in Input) (Record, error) {
	rec, ok := f.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	rec.AWB = in.AWB
	rec.Recipient = in.Recipient
	rec.WeightKg = in.WeightKg
	rec.Packages = in.Packages
	rec.Year = in.Year
	rec.Data = in.Data
	f.records[id] = rec
	return rec, nil
}

func (f *fakeStorage) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := f.records[id]; !ok {
		return ErrNotFound
	}
	delete(f.records, id)
	return nil
}

func newTestRouter(store Storage) chi.Router {
	h := &Handler{Store: store, Validate: validator.New()}
	r := chi.NewRouter()
	r.Get("/records", h.List)
	r.Post("/records", h.Create)
	r.Route("/records/{recordID}", func(child chi.Router) {
		child.Get("/", h.Get)
		child.Put("/", h.Update)
		child.Delete("/", h.Delete)
	})
	return r
}

func sampleRecord() Record {
	return Record{
		ID:        uuid.New(),
		AWB:       "125-12345675",
		Recipient: "Canarias Import SL",
		WeightKg:  decimal.NewFromFloat(350.5),
		Packages:  3,
		Year:      2026,
		Data:      json.RawMessage(`{"handling":"Swissport"}`),
	}
}

func TestRecordListEnvelope(t *testing.T) {
	store := newFakeStorage(sampleRecord(), sampleRecord())
	router := newTestRouter(store)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/records?page=2&limit=10", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 10, store.lastLimit)
	require.Equal(t, 10, store.lastOff)

	var body struct {
		Data       []Record `json:"data"`
		Pagination struct {
			Page       int `json:"page"`
			PerPage    int `json:"per_page"`
			TotalItems int `json:"total_items"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	require.Equal(t, 2, body.Pagination.Page)
	require.Equal(t, 2, body.Pagination.TotalItems)
}

func TestRecordGetNotFound(t *testing.T) {
	router := newTestRouter(newFakeStorage())

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/records/"+uuid.NewString(), nil))

	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Contains(t, rr.Body.String(), "NOT_FOUND")
}

func TestRecordCreate(t *testing.T) {
	store := newFakeStorage()
	router := newTestRouter(store)

	payload := `{"awb":"  125-12345675  ","recipient":"Canarias Import SL","weight":350.5,"packages":3,"year":2026,"data":{"handling":"Swissport"}}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/records", bytes.NewBufferString(payload)))

	require.Equal(t, http.StatusCreated, rr.Code)
	require.Equal(t, "125-12345675", store.lastInput.AWB)
}

func TestRecordCreateDuplicateAWB(t *testing.T) {
	store := newFakeStorage()
	store.createErr = &pgconn.PgError{Code: "23505"}
	router := newTestRouter(store)

	payload := `{"awb":"125-12345675","year":2026}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/records", bytes.NewBufferString(payload)))

	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), "CONFLICT")
}

func TestRecordCreateRejectsInvalidPayload(t *testing.T) {
	router := newTestRouter(newFakeStorage())

	// Missing awb and year.
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/records", bytes.NewBufferString(`{"recipient":"x"}`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	// data must be valid JSON.
	rr = httptest.NewRecorder()
	payload := `{"awb":"125-1","year":2026,"data":"{broken"}`
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/records", bytes.NewBufferString(payload)))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRecordUpdateReplacesFields(t *testing.T) {
	rec := sampleRecord()
	store := newFakeStorage(rec)
	router := newTestRouter(store)

	payload := `{"awb":"125-99999999","recipient":"","weight":10,"packages":1,"year":2026}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/records/"+rec.ID.String()+"/", bytes.NewBufferString(payload)))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "125-99999999", store.records[rec.ID].AWB)
	require.Equal(t, "", store.records[rec.ID].Recipient)
}

func TestRecordDelete(t *testing.T) {
	rec := sampleRecord()
	store := newFakeStorage(rec)
	router := newTestRouter(store)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/records/"+rec.ID.String()+"/", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Empty(t, store.records)
}

func TestRecordInvalidID(t *testing.T) {
	router := newTestRouter(newFakeStorage())

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/records/not-a-uuid/", nil))

	require.Equal(t, http.StatusBadRequest, rr.Code)
}
