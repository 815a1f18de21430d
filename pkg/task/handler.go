package task

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
)

// Handler is the narrow dispatch contract the scheduler calls into to
// execute one task kind (spec §6 "Handler context (consumed)"). What a
// handler actually does — transcode, call a vision API, run
// transcription — is an external collaborator; the scheduler only ever
// sees Dispatch's result.
type Handler interface {
	Dispatch(ctx context.Context, t *Task) (json.RawMessage, error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, t *Task) (json.RawMessage, error)

func (f HandlerFunc) Dispatch(ctx context.Context, t *Task) (json.RawMessage, error) {
	return f(ctx, t)
}

// HandlerRegistry maps task kind to the Handler that dispatches it
// (spec §4.10). Registered at two-phase-init time, before the scheduler
// starts claiming (spec §9).
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewHandlerRegistry constructs an empty registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: map[string]Handler{}}
}

// Register associates kind with h, overwriting any prior registration.
func (r *HandlerRegistry) Register(kind string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
}

// Lookup returns the Handler for kind, or (nil, false) if none is
// registered — the scheduler maps this to an Unrecoverable dispatch
// failure (spec §7: "configuration missing").
func (r *HandlerRegistry) Lookup(kind string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	return h, ok
}

// HandlerContext bundles everything a Handler's Dispatch needs beyond the
// task itself. The scheduler never owns one directly; it holds a
// ContextHolder instead, per SPEC_FULL.md §E.3.
type HandlerContext struct {
	Registry *HandlerRegistry
}

// ContextHolder models spec §9's "weak reference to the handler context":
// an atomic pointer the owning process clears on shutdown (Drop), with
// Get reporting whether the referent has already been dropped. This
// breaks the natural ownership cycle (context owns scheduler owns state
// owns context) without depending on a GC-weak-pointer primitive the Go
// standard library does not stably expose (SPEC_FULL.md §E.3).
type ContextHolder struct {
	ptr atomic.Pointer[HandlerContext]
}

// NewContextHolder constructs a holder already pointing at hc.
func NewContextHolder(hc *HandlerContext) *ContextHolder {
	h := &ContextHolder{}
	h.ptr.Store(hc)
	return h
}

// Get returns the held HandlerContext, or (nil, false) if Drop has been
// called — the scheduler's signal to fail dispatch gracefully rather than
// dereference a torn-down context during shutdown (spec §9).
func (h *ContextHolder) Get() (*HandlerContext, bool) {
	hc := h.ptr.Load()
	if hc == nil {
		return nil, false
	}
	return hc, true
}

// Drop clears the held context. Safe to call more than once.
func (h *ContextHolder) Drop() {
	h.ptr.Store(nil)
}
