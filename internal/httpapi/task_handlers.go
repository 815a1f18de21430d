package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/jeremybastin1207/mindia/pkg/task"
)

// TaskHandler serves the Task API operations named in spec §6.
type TaskHandler struct {
	repo     *task.Repository
	validate *validator.Validate
}

// NewTaskHandler constructs a TaskHandler.
func NewTaskHandler(repo *task.Repository) *TaskHandler {
	return &TaskHandler{repo: repo, validate: validator.New()}
}

// SubmitRequest is the request body for POST /api/v1/tasks.
type SubmitRequest struct {
	Tenant             string          `json:"tenant" validate:"required"`
	Kind               string          `json:"kind" validate:"required"`
	Payload            json.RawMessage `json:"payload"`
	Priority           int             `json:"priority"`
	ScheduledAt        *time.Time      `json:"scheduled_at,omitempty"`
	DependsOn          []string        `json:"depends_on,omitempty"`
	CancelOnDepFailure bool            `json:"cancel_on_dep_failure"`
	MaxRetries         int             `json:"max_retries"`
	TimeoutSeconds     *int            `json:"timeout_seconds,omitempty"`
}

// Submit handles POST /api/v1/tasks (spec §6 submit).
func (h *TaskHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		BadRequest(w, err.Error())
		return
	}

	t, err := h.repo.Create(r.Context(), task.CreateParams{
		Tenant:             req.Tenant,
		Kind:               req.Kind,
		Payload:            req.Payload,
		Priority:           req.Priority,
		ScheduledAt:        req.ScheduledAt,
		DependsOn:          req.DependsOn,
		CancelOnDepFailure: req.CancelOnDepFailure,
		MaxRetries:         req.MaxRetries,
		TimeoutSeconds:     req.TimeoutSeconds,
	})
	if err != nil {
		HandleError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, t)
}

// Get handles GET /api/v1/tasks/{id} (spec §6 get).
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenant := r.URL.Query().Get("tenant")
	id := chi.URLParam(r, "id")
	if tenant == "" {
		BadRequest(w, "tenant is required")
		return
	}

	t, err := h.repo.Get(r.Context(), tenant, id)
	if err != nil {
		HandleError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, t)
}

// List handles GET /api/v1/tasks (spec §6 list).
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	tenant := r.URL.Query().Get("tenant")
	if tenant == "" {
		BadRequest(w, "tenant is required")
		return
	}

	filter := task.ListFilter{
		Kind:   r.URL.Query().Get("kind"),
		Status: task.Status(r.URL.Query().Get("status")),
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	tasks, err := h.repo.List(r.Context(), tenant, filter)
	if err != nil {
		HandleError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, tasks)
}

// Cancel handles POST /api/v1/tasks/{id}/cancel (spec §6 cancel).
func (h *TaskHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	tenant := r.URL.Query().Get("tenant")
	id := chi.URLParam(r, "id")
	if tenant == "" {
		BadRequest(w, "tenant is required")
		return
	}

	if err := h.repo.CancelTask(r.Context(), tenant, id); err != nil {
		HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Retry handles POST /api/v1/tasks/{id}/retry (spec §6 retry).
func (h *TaskHandler) Retry(w http.ResponseWriter, r *http.Request) {
	tenant := r.URL.Query().Get("tenant")
	id := chi.URLParam(r, "id")
	if tenant == "" {
		BadRequest(w, "tenant is required")
		return
	}

	if err := h.repo.RetryTask(r.Context(), tenant, id); err != nil {
		HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stats handles GET /api/v1/tasks/stats (spec §6 stats).
func (h *TaskHandler) Stats(w http.ResponseWriter, r *http.Request) {
	tenant := r.URL.Query().Get("tenant")
	if tenant == "" {
		BadRequest(w, "tenant is required")
		return
	}

	stats, err := h.repo.Stats(r.Context(), tenant)
	if err != nil {
		HandleError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}
