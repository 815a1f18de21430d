package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/jeremybastin1207/mindia/pkg/media"
	"github.com/jeremybastin1207/mindia/pkg/upload"
)

// UploadHandler serves the Chunked-Upload API operations named in spec §6.
type UploadHandler struct {
	coordinator *upload.Coordinator
	validate    *validator.Validate
}

// NewUploadHandler constructs an UploadHandler.
func NewUploadHandler(coordinator *upload.Coordinator) *UploadHandler {
	return &UploadHandler{coordinator: coordinator, validate: validator.New()}
}

// StartRequest is the request body for POST /api/v1/uploads (spec §6
// StartRequest).
type StartRequest struct {
	Tenant        string          `json:"tenant" validate:"required"`
	Filename      string          `json:"filename" validate:"required"`
	ContentType   string          `json:"content_type" validate:"required"`
	DeclaredSize  int64           `json:"declared_size" validate:"required,gt=0"`
	MediaKind     string          `json:"media_kind" validate:"required"`
	ChunkSize     int64           `json:"chunk_size" validate:"required,gt=0"`
	StoreBehavior string          `json:"store_behavior" validate:"required"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
}

// Start handles POST /api/v1/uploads (spec §6 start).
func (h *UploadHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		BadRequest(w, err.Error())
		return
	}

	result, err := h.coordinator.Start(r.Context(), upload.StartParams{
		Tenant:        req.Tenant,
		Filename:      req.Filename,
		ContentType:   req.ContentType,
		DeclaredSize:  req.DeclaredSize,
		MediaKind:     media.Kind(req.MediaKind),
		ChunkSize:     req.ChunkSize,
		StoreBehavior: media.StoreBehavior(req.StoreBehavior),
		Metadata:      req.Metadata,
	})
	if err != nil {
		HandleError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]any{
		"session_id":  result.Session.ID,
		"chunk_count": result.ChunkCount,
		"chunk_size":  result.ChunkSize,
		"chunk_urls":  result.ChunkURLs,
	})
}

// RecordChunk handles POST /api/v1/uploads/{session_id}/chunks/{index}
// (spec §6 record-chunk).
func (h *UploadHandler) RecordChunk(w http.ResponseWriter, r *http.Request) {
	tenant := r.URL.Query().Get("tenant")
	sessionID := chi.URLParam(r, "session_id")
	index, err := indexParam(r)
	if err != nil {
		BadRequest(w, "invalid chunk index")
		return
	}
	if tenant == "" {
		BadRequest(w, "tenant is required")
		return
	}

	if err := h.coordinator.RecordChunk(r.Context(), tenant, sessionID, index); err != nil {
		HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Progress handles GET /api/v1/uploads/{session_id}/progress (spec §6
// progress).
func (h *UploadHandler) Progress(w http.ResponseWriter, r *http.Request) {
	tenant := r.URL.Query().Get("tenant")
	sessionID := chi.URLParam(r, "session_id")
	if tenant == "" {
		BadRequest(w, "tenant is required")
		return
	}

	progress, err := h.coordinator.Progress(r.Context(), tenant, sessionID)
	if err != nil {
		HandleError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, progress)
}

// CompleteRequest is the request body for POST
// /api/v1/uploads/{session_id}/complete (spec §6 complete).
type CompleteRequest struct {
	Metadata *media.NestedMetadata `json:"metadata,omitempty"`
}

// Complete handles POST /api/v1/uploads/{session_id}/complete (spec §6
// complete).
func (h *UploadHandler) Complete(w http.ResponseWriter, r *http.Request) {
	tenant := r.URL.Query().Get("tenant")
	sessionID := chi.URLParam(r, "session_id")
	if tenant == "" {
		BadRequest(w, "tenant is required")
		return
	}

	var req CompleteRequest
	if r.ContentLength > 0 {
		if !decodeJSONBody(w, r, &req) {
			return
		}
	}

	result, err := h.coordinator.Complete(r.Context(), upload.CompleteParams{
		Tenant:        tenant,
		SessionID:     sessionID,
		FinalMetadata: req.Metadata,
	})
	if err != nil {
		HandleError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"id":           result.Media.ID,
		"url":          result.Media.StorageLocation.URL,
		"content_type": result.Media.ContentType,
		"file_size":    result.Media.FileSize,
		"uploaded_at":  result.Media.UploadedAt,
	})
}

func indexParam(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "index"))
}
