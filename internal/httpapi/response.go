// Package httpapi exposes the unauthenticated Task API and Chunked-Upload
// API named in spec §6, routed with go-chi/chi/v5 following the teacher's
// controlplane API package layout (internal/controlplane/api/handlers in
// the reference tree).
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/jeremybastin1207/mindia/internal/logger"
	"github.com/jeremybastin1207/mindia/internal/merrors"
)

// Response is the standard envelope every handler writes, following the
// teacher's status/timestamp/data/error wrapper shape.
type Response struct {
	Status    string      `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// WriteJSON writes data as a "ok" envelope with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Status: "ok", Timestamp: time.Now().UTC(), Data: data})
}

// WriteError writes an "error" envelope with the given status code and
// message.
func WriteError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Status: "error", Timestamp: time.Now().UTC(), Error: msg})
}

func BadRequest(w http.ResponseWriter, msg string)   { WriteError(w, http.StatusBadRequest, msg) }
func NotFound(w http.ResponseWriter, msg string)     { WriteError(w, http.StatusNotFound, msg) }
func Conflict(w http.ResponseWriter, msg string)     { WriteError(w, http.StatusConflict, msg) }
func TooLarge(w http.ResponseWriter, msg string)     { WriteError(w, http.StatusRequestEntityTooLarge, msg) }
func InternalError(w http.ResponseWriter, msg string) { WriteError(w, http.StatusInternalServerError, msg) }

// decodeJSONBody decodes r's JSON body into v, writing a 400 and returning
// false on failure (the teacher's decodeJSONBody shape).
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		BadRequest(w, "invalid request body")
		return false
	}
	return true
}

// mapErrorStatus maps a merrors.Kind to its HTTP status, per spec §7's
// error taxonomy.
func mapErrorStatus(kind merrors.Kind) int {
	switch kind {
	case merrors.InvalidInput:
		return http.StatusBadRequest
	case merrors.NotFound:
		return http.StatusNotFound
	case merrors.Conflict:
		return http.StatusConflict
	case merrors.PayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case merrors.Unauthorized:
		return http.StatusUnauthorized
	case merrors.StorageError:
		return http.StatusBadGateway
	case merrors.DatabaseError:
		return http.StatusInternalServerError
	case merrors.Unrecoverable:
		return http.StatusUnprocessableEntity
	case merrors.Timeout:
		return http.StatusGatewayTimeout
	case merrors.Internal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// HandleError writes the HTTP response for err, mapped through
// internal/merrors when possible. Unexpected (non-merrors) errors are
// logged at Error level and surfaced as a generic 500, following
// MapStoreError/HandleStoreError's "centralize the translation" pattern
// in the teacher's helpers.go.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	var me *merrors.Error
	if errors.As(err, &me) {
		WriteError(w, mapErrorStatus(me.Kind), me.Error())
		return
	}
	logger.ErrorCtx(r.Context(), "httpapi: unhandled error", "error", err)
	InternalError(w, "internal server error")
}
