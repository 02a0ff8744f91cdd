package tariff

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/customsway/backend-cargo/internal/common"
)

// Handler exposes tariff management endpoints.
type Handler struct {
	Service        *Service
	MaxUploadBytes int64
}

// List handles GET /api/v1/tariffs.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	year := common.AtoiDefault(r.URL.Query().Get("year"), 0)
	company := strings.TrimSpace(r.URL.Query().Get("company"))
	rules, err := h.Service.List(r.Context(), year, company)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rules})
}

// Create handles POST /api/v1/tariffs.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req Input
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}
	rule, err := h.Service.Create(r.Context(), req)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": rule})
}

// Update handles PUT /api/v1/tariffs/{tariffID}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req Input
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}
	rule, err := h.Service.Update(r.Context(), id, req)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rule})
}

// Delete handles DELETE /api/v1/tariffs/{tariffID}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.Service.Delete(r.Context(), id); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Import handles POST /api/v1/tariffs/import. Rows typed in manually arrive
// as a JSON array in the `tariffs` form field; an attached spreadsheet is
// rejected because sheet layouts vary too much to parse reliably.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.maxUpload()); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid multipart form", nil)
		return
	}
	if _, _, err := r.FormFile("file"); err == nil {
		common.JSONError(w, http.StatusBadRequest, "UNSUPPORTED_FILE",
			"La importación de archivos no está soportada. Use la entrada manual de tarifas.", nil)
		return
	}
	company := strings.TrimSpace(r.FormValue("handling_company"))
	year := common.AtoiDefault(r.FormValue("year"), 0)
	raw := r.FormValue("tariffs")
	if raw == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "tariffs field is required", nil)
		return
	}
	var rows []ImportInput
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "tariffs field must be a JSON array", nil)
		return
	}
	count, err := h.Service.Import(r.Context(), company, year, rows)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"success": true, "imported": count})
}

// Upload handles POST /api/v1/tariffs/upload. The PDF is kept in Postgres so
// the original sheet can be re-checked against imported rules.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.maxUpload()); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid multipart form", nil)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "file is required", nil)
		return
	}
	defer file.Close()
	contentType := header.Header.Get("Content-Type")
	if contentType != "application/pdf" {
		common.JSONError(w, http.StatusBadRequest, "UNSUPPORTED_FILE", "only PDF uploads are accepted", nil)
		return
	}
	content, err := io.ReadAll(io.LimitReader(file, h.maxUpload()+1))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "could not read uploaded file", nil)
		return
	}
	if int64(len(content)) > h.maxUpload() {
		common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "uploaded file exceeds the size limit", nil)
		return
	}
	company := strings.TrimSpace(r.FormValue("handling_company"))
	year := common.AtoiDefault(r.FormValue("year"), 0)
	doc, err := h.Service.StoreDocument(r.Context(), company, year, header.Filename, content)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{
		"data": map[string]any{"id": doc.ID, "filename": doc.Filename},
	})
}

type extractRequest struct {
	Text    string `json:"text"`
	Company string `json:"company"`
}

// ExtractConfig handles POST /api/v1/tariffs/extract.
func (h *Handler) ExtractConfig(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "text is required", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": Extract(req.Text, req.Company)})
}

func (h *Handler) maxUpload() int64 {
	if h.MaxUploadBytes > 0 {
		return h.MaxUploadBytes
	}
	return 10 << 20
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "tariffID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid tariff id", nil)
		return uuid.Nil, false
	}
	return id, true
}
