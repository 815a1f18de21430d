package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jeremybastin1207/mindia/internal/logger"
)

// NewRouter creates and configures the chi router with the unauthenticated
// Task API and Chunked-Upload API surfaces named in spec §6.
//
// The router is configured with:
//   - Request ID middleware for request tracking
//   - Real IP extraction for proper client identification
//   - Custom request logging using the internal logger
//   - Panic recovery to prevent server crashes
//   - Request timeout to prevent hung requests
//
// Routes:
//   - GET  /health                                        - liveness probe
//   - POST /api/v1/tasks                                   - submit a task
//   - GET  /api/v1/tasks                                   - list tasks
//   - GET  /api/v1/tasks/stats                              - tenant task stats
//   - GET  /api/v1/tasks/{id}                               - get a task
//   - POST /api/v1/tasks/{id}/cancel                        - cancel a task
//   - POST /api/v1/tasks/{id}/retry                         - retry a task
//   - POST /api/v1/uploads                                  - start a chunked upload
//   - POST /api/v1/uploads/{session_id}/chunks/{index}       - record a chunk
//   - GET  /api/v1/uploads/{session_id}/progress             - upload progress
//   - POST /api/v1/uploads/{session_id}/complete             - finalize an upload
func NewRouter(taskHandler *TaskHandler, uploadHandler *UploadHandler) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", taskHandler.Submit)
			r.Get("/", taskHandler.List)
			r.Get("/stats", taskHandler.Stats)
			r.Get("/{id}", taskHandler.Get)
			r.Post("/{id}/cancel", taskHandler.Cancel)
			r.Post("/{id}/retry", taskHandler.Retry)
		})

		r.Route("/uploads", func(r chi.Router) {
			r.Post("/", uploadHandler.Start)
			r.Post("/{session_id}/chunks/{index}", uploadHandler.RecordChunk)
			r.Get("/{session_id}/progress", uploadHandler.Progress)
			r.Post("/{session_id}/complete", uploadHandler.Complete)
		})
	})

	return r
}

// isHealthPath returns true if the request path is a healthcheck endpoint.
func isHealthPath(path string) bool {
	return path == "/health" || strings.HasPrefix(path, "/health/")
}

// requestLogger is a custom middleware that logs requests using the internal
// logger.
//
// It logs:
//   - Request start (DEBUG level): method, path, remote addr
//   - Request completion (INFO level): method, path, status, duration
//   - Healthcheck requests are logged at DEBUG level to reduce noise
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)

		logArgs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", duration.String(),
		}

		if isHealthPath(r.URL.Path) {
			logger.Debug("API request completed", logArgs...)
		} else {
			logger.Info("API request completed", logArgs...)
		}
	})
}
