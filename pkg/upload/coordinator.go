package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeremybastin1207/mindia/internal/logger"
	"github.com/jeremybastin1207/mindia/internal/telemetry"
	"github.com/jeremybastin1207/mindia/pkg/media"
	"github.com/jeremybastin1207/mindia/pkg/objectstore"
	"github.com/jeremybastin1207/mindia/pkg/webhook"
)

// MaxChunks bounds chunk-count per session (spec §6).
const MaxChunks = 10_000

// ChunkPresignTTL is the fixed TTL for every chunk's presigned PUT URL
// (spec §6).
const ChunkPresignTTL = 15 * time.Minute

// DefaultEphemeralTTL is the default expiry window applied on completion
// when a session's resolved store behavior is not permanent (spec §6).
const DefaultEphemeralTTL = 24 * time.Hour

// DefaultMaxDeclaredSize bounds declared-size when a kind-specific limit
// isn't configured.
const DefaultMaxDeclaredSize int64 = 5 << 30 // 5 GiB

// ContentScanner is the optional virus/content-scan collaborator consulted
// before the assembled object is uploaded (spec §4.4 step 6). Concrete
// scan implementations are an external collaborator per spec §1; this
// package only consumes the narrow contract.
type ContentScanner interface {
	// Scan reports whether body is clean. A non-nil error or infected=true
	// both fail the Complete operation.
	Scan(ctx context.Context, contentType string, body []byte) (infected bool, err error)
}

// Assembler turns a session's recorded chunks into the final object's
// bytes. assembleInMemory is the only implementation (SPEC_FULL.md §E.1);
// the interface exists so a streaming/multipart-copy strategy can be
// added later without changing Coordinator's external contract.
type Assembler interface {
	Assemble(ctx context.Context, store objectstore.Store, chunks []*Chunk, declaredSize int64) ([]byte, error)
}

// assembleInMemory concatenates chunk bodies in order, bounded by the
// kind's configured max file size (SPEC_FULL.md §E.1's chosen strategy).
type assembleInMemory struct{}

func (assembleInMemory) Assemble(ctx context.Context, store objectstore.Store, chunks []*Chunk, declaredSize int64) ([]byte, error) {
	var buf bytes.Buffer
	for _, c := range chunks {
		body, err := store.Download(ctx, c.StorageKey)
		if err != nil {
			return nil, errStorage("upload.assembleInMemory", fmt.Errorf("download chunk %d (%s): %w", c.Index, c.StorageKey, err))
		}
		buf.Write(body)
		if int64(buf.Len()) > declaredSize {
			return nil, errInvalidInput("upload.assembleInMemory", fmt.Errorf("assembled size exceeds declared size %d", declaredSize))
		}
	}
	return buf.Bytes(), nil
}

// Coordinator drives a resumable upload end-to-end (spec §4.4):
// start → record chunks → assemble → create media → notify.
type Coordinator struct {
	sessions  *Repository
	media     *media.Repository
	store     objectstore.Store
	emitter   webhook.Emitter
	scanner   ContentScanner
	assembler Assembler

	kindSizeLimits         map[media.Kind]int64
	systemDefaultPermanent bool
}

// NewCoordinator constructs a Coordinator. emitter may be nil, in which
// case webhook.NullEmitter{} is used.
func NewCoordinator(sessions *Repository, mediaRepo *media.Repository, store objectstore.Store, emitter webhook.Emitter) *Coordinator {
	if emitter == nil {
		emitter = webhook.NullEmitter{}
	}
	return &Coordinator{
		sessions:       sessions,
		media:          mediaRepo,
		store:          store,
		emitter:        emitter,
		assembler:      assembleInMemory{},
		kindSizeLimits: map[media.Kind]int64{},
	}
}

// WithContentScanner attaches an optional scan collaborator, returning the
// same Coordinator for chaining.
func (c *Coordinator) WithContentScanner(s ContentScanner) *Coordinator {
	c.scanner = s
	return c
}

// WithKindSizeLimit sets the declared-size upper bound for a media kind.
func (c *Coordinator) WithKindSizeLimit(kind media.Kind, limit int64) *Coordinator {
	c.kindSizeLimits[kind] = limit
	return c
}

func (c *Coordinator) maxSizeFor(kind media.Kind) int64 {
	if v, ok := c.kindSizeLimits[kind]; ok && v > 0 {
		return v
	}
	return DefaultMaxDeclaredSize
}

// StartParams carries the Start operation's inputs (spec §4.4, §6).
type StartParams struct {
	Tenant        string
	Filename      string
	ContentType   string
	DeclaredSize  int64
	MediaKind     media.Kind
	ChunkSize     int64
	StoreBehavior media.StoreBehavior
	Metadata      json.RawMessage
}

// StartResult is the Start operation's output (spec §6 StartResponse).
type StartResult struct {
	Session    *Session
	ChunkSize  int64
	ChunkCount int
	ChunkURLs  []ChunkURL
}

// Start validates and allocates a new chunked-upload session, returning a
// presigned PUT URL per chunk (spec §4.4 Start operation).
func (c *Coordinator) Start(ctx context.Context, p StartParams) (*StartResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "upload.start")
	defer span.End()

	if c.store.BackendKind() == objectstore.Local {
		return nil, errUnrecoverable("upload.Start", fmt.Errorf("backend does not support presigned PUT"))
	}
	if !p.MediaKind.Valid() {
		return nil, errInvalidInput("upload.Start", fmt.Errorf("invalid media kind %q", p.MediaKind))
	}
	if !p.MediaKind.AllowsContentType(p.ContentType) {
		return nil, errInvalidInput("upload.Start", fmt.Errorf("content_type %q not permitted for media kind %q", p.ContentType, p.MediaKind))
	}
	if !p.StoreBehavior.Valid() {
		return nil, errInvalidInput("upload.Start", fmt.Errorf("invalid store behavior %q", p.StoreBehavior))
	}
	if p.ChunkSize <= 0 {
		return nil, errInvalidInput("upload.Start", fmt.Errorf("chunk_size must be > 0"))
	}
	if p.DeclaredSize <= 0 {
		return nil, errInvalidInput("upload.Start", fmt.Errorf("declared_size must be > 0"))
	}
	if limit := c.maxSizeFor(p.MediaKind); p.DeclaredSize > limit {
		return nil, errPayloadTooLarge("upload.Start", fmt.Errorf("declared_size %d exceeds limit %d for kind %q", p.DeclaredSize, limit, p.MediaKind))
	}

	chunkCount := int(math.Ceil(float64(p.DeclaredSize) / float64(p.ChunkSize)))
	if chunkCount > MaxChunks {
		return nil, errInvalidInput("upload.Start", fmt.Errorf("chunk_count %d exceeds MAX_CHUNKS %d", chunkCount, MaxChunks))
	}
	if chunkCount < 1 {
		chunkCount = 1
	}

	sessionID := uuid.NewString()
	mediaID := uuid.NewString()
	baseKey := fmt.Sprintf("uploads/chunked/%s/%s", sessionID, mediaID)

	urls := make([]ChunkURL, chunkCount)
	for i := 0; i < chunkCount; i++ {
		key := chunkKey(baseKey, i)
		url, err := c.store.PresignedPutURL(ctx, key, p.ContentType, ChunkPresignTTL)
		if err != nil {
			return nil, errStorage("upload.Start", fmt.Errorf("presign chunk %d: %w", i, err))
		}
		urls[i] = ChunkURL{Index: i, URL: url, Key: key}
	}

	session := &Session{
		ID:             sessionID,
		Tenant:         p.Tenant,
		Filename:       p.Filename,
		ContentType:    p.ContentType,
		DeclaredSize:   p.DeclaredSize,
		MediaKind:      p.MediaKind,
		BaseStorageKey: baseKey,
		StoreBehavior:  p.StoreBehavior,
		Metadata:       p.Metadata,
		ChunkSize:      p.ChunkSize,
		ChunkCount:     chunkCount,
		Status:         StatusPending,
		ExpiresAt:      time.Now().Add(DefaultEphemeralTTL),
	}
	if err := c.sessions.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	return &StartResult{Session: session, ChunkSize: p.ChunkSize, ChunkCount: chunkCount, ChunkURLs: urls}, nil
}

func chunkKey(baseKey string, index int) string {
	return fmt.Sprintf("%s.chunk.%d", baseKey, index)
}

// RecordChunk verifies a chunk landed in the object store and upserts its
// row, transitioning Pending→Uploading on the first arrival (spec §4.4
// Record-chunk operation).
func (c *Coordinator) RecordChunk(ctx context.Context, tenant, sessionID string, index int) error {
	ctx, span := telemetry.StartSpan(ctx, "upload.record_chunk")
	defer span.End()
	telemetry.SetAttributes(ctx, telemetry.SessionID(sessionID))

	session, err := c.sessions.GetSession(ctx, tenant, sessionID)
	if err != nil {
		return err
	}
	if index < 0 || index >= session.ChunkCount {
		return errInvalidInput("upload.RecordChunk", fmt.Errorf("index %d out of range [0,%d)", index, session.ChunkCount))
	}

	key := chunkKey(session.BaseStorageKey, index)
	exists, err := c.store.Exists(ctx, key)
	if err != nil {
		return errStorage("upload.RecordChunk", err)
	}
	if !exists {
		return errNotFound("upload.RecordChunk", fmt.Errorf("chunk %s not present in object store", key))
	}

	return c.sessions.RecordChunk(ctx, session.ID, index, key, session.ChunkSize)
}

// Progress reports upload progress for the Chunked-Upload API's progress
// operation (spec §6).
type Progress struct {
	UploadedBytes  int64
	TotalBytes     int64
	ChunksUploaded int
	TotalChunks    int
	Percent        float64
	Status         Status
}

// Progress computes the current Progress for a session.
func (c *Coordinator) Progress(ctx context.Context, tenant, sessionID string) (*Progress, error) {
	session, err := c.sessions.GetSession(ctx, tenant, sessionID)
	if err != nil {
		return nil, err
	}
	chunks, err := c.sessions.GetChunks(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	var uploaded int64
	for _, ch := range chunks {
		uploaded += ch.Size
	}
	percent := 0.0
	if session.DeclaredSize > 0 {
		percent = float64(uploaded) / float64(session.DeclaredSize) * 100
		if percent > 100 {
			percent = 100
		}
	}

	return &Progress{
		UploadedBytes:  uploaded,
		TotalBytes:     session.DeclaredSize,
		ChunksUploaded: len(chunks),
		TotalChunks:    session.ChunkCount,
		Percent:        percent,
		Status:         session.Status,
	}, nil
}

// CompleteParams carries the Complete operation's inputs (spec §4.4, §6).
type CompleteParams struct {
	Tenant        string
	SessionID     string
	FinalMetadata *media.NestedMetadata
}

// CompleteResult is the Complete operation's output (spec §6
// CompleteResponse).
type CompleteResult struct {
	Media *media.Media
}

// Complete assembles a session's chunks into the final object, creates
// the resulting media record, and marks the session Completed (spec §4.4
// Complete operation). It is idempotent: a second invocation after
// Completed observes the prior outcome rather than re-assembling (spec
// §4.4, §8).
func (c *Coordinator) Complete(ctx context.Context, p CompleteParams) (*CompleteResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "upload.complete")
	defer span.End()
	telemetry.SetAttributes(ctx, telemetry.SessionID(p.SessionID))

	session, err := c.sessions.GetSession(ctx, p.Tenant, p.SessionID)
	if err != nil {
		return nil, err
	}

	if session.Status == StatusCompleted {
		if session.CompletedMediaID == nil {
			return nil, errInternal("upload.Complete", fmt.Errorf("session %s is Completed with no completed_media_id", session.ID))
		}
		m, err := c.media.Get(ctx, p.Tenant, *session.CompletedMediaID)
		if err != nil {
			return nil, err
		}
		return &CompleteResult{Media: m}, nil
	}
	if session.Status != StatusUploading && session.Status != StatusPending {
		return nil, errConflict("upload.Complete", fmt.Errorf("session %s is not completable from status %s", session.ID, session.Status))
	}

	if c.store.BackendKind() == objectstore.Local {
		return nil, errUnrecoverable("upload.Complete", fmt.Errorf("backend does not support presigned operations"))
	}

	chunks, err := c.sessions.GetChunks(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if len(chunks) != session.ChunkCount {
		return nil, errNotFound("upload.Complete", fmt.Errorf("session %s has %d/%d chunks recorded", session.ID, len(chunks), session.ChunkCount))
	}
	for _, ch := range chunks {
		exists, err := c.store.Exists(ctx, ch.StorageKey)
		if err != nil {
			return nil, errStorage("upload.Complete", err)
		}
		if !exists {
			return nil, errNotFound("upload.Complete", fmt.Errorf("chunk %s is missing from object store", ch.StorageKey))
		}
	}

	mediaID := lastPathSegment(session.BaseStorageKey)
	if mediaID == "" {
		mediaID = uuid.NewString()
	}
	finalKey := fmt.Sprintf("uploads/%s.%s", mediaID, extensionOf(session.Filename))

	body, err := c.assembler.Assemble(ctx, c.store, chunks, session.DeclaredSize)
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > session.DeclaredSize {
		return nil, errInvalidInput("upload.Complete", fmt.Errorf("assembled size %d exceeds declared size %d", len(body), session.DeclaredSize))
	}

	if c.scanner != nil {
		infected, scanErr := c.scanner.Scan(ctx, session.ContentType, body)
		if scanErr != nil {
			return nil, errUnrecoverable("upload.Complete", fmt.Errorf("content scan failed: %w", scanErr))
		}
		if infected {
			c.cleanupChunks(ctx, chunks)
			return nil, errInvalidInput("upload.Complete", fmt.Errorf("assembled content failed scan"))
		}
	}

	url, err := c.store.UploadWithKey(ctx, finalKey, body, session.ContentType)
	if err != nil {
		return nil, errStorage("upload.Complete", err)
	}

	c.cleanupChunks(ctx, chunks)

	behavior, err := ParseStoreBehavior(string(session.StoreBehavior))
	if err != nil {
		return nil, errInvalidInput("upload.Complete", err)
	}
	permanent := behavior == media.StoreBehaviorPermanent || (behavior == media.StoreBehaviorAuto && c.systemDefaultPermanent)

	params := media.CreateParams{
		Tenant:              session.Tenant,
		Filename:            filepath.Base(finalKey),
		OriginalFilename:    session.Filename,
		ContentType:         session.ContentType,
		DefaultEphemeralTTL: DefaultEphemeralTTL,
	}
	if permanent {
		params.StoreBehavior = media.StoreBehaviorPermanent
	} else {
		params.StoreBehavior = media.StoreBehaviorEphemeral
	}
	if p.FinalMetadata != nil {
		params.Metadata = p.FinalMetadata
	}

	var typeMeta interface{}
	if session.MediaKind == media.KindVideo {
		typeMeta = media.VideoMetadata{ProcessingStatus: media.VideoProcessingPending}
	}

	m, err := c.media.CreateFromStorage(ctx, session.MediaKind, params, int64(len(body)), finalKey, url, typeMeta)
	if err != nil {
		return nil, err
	}

	if err := c.sessions.MarkCompleted(ctx, session.ID, m.ID); err != nil {
		// The media row already exists; a concurrent Complete call won
		// the MarkCompleted race. Re-fetch to observe its outcome rather
		// than surface a spurious conflict to this caller.
		if s2, getErr := c.sessions.GetSession(ctx, p.Tenant, session.ID); getErr == nil && s2.Status == StatusCompleted && s2.CompletedMediaID != nil {
			if winner, getErr := c.media.Get(ctx, p.Tenant, *s2.CompletedMediaID); getErr == nil {
				return &CompleteResult{Media: winner}, nil
			}
		}
		return nil, err
	}

	go c.emitUploadCompleted(session.Tenant, m.ID)

	return &CompleteResult{Media: m}, nil
}

// emitUploadCompleted fires the upload-completed webhook asynchronously
// (spec §4.4 step 12); a panic here must never take down the coordinator,
// mirroring the teacher's Recoverer middleware pattern applied to a
// background goroutine instead of an HTTP handler (SPEC_FULL.md §C).
func (c *Coordinator) emitUploadCompleted(tenant, mediaID string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("upload: webhook emission panicked", "panic", r)
		}
	}()
	c.emitter.TriggerEvent(context.Background(), tenant, webhook.EventFileUploaded, map[string]any{"media_id": mediaID}, "upload-coordinator")
}

// cleanupChunks best-effort deletes every chunk key; failures are logged,
// not fatal (spec §4.4 step 8).
func (c *Coordinator) cleanupChunks(ctx context.Context, chunks []*Chunk) {
	for _, ch := range chunks {
		if err := c.store.Delete(ctx, ch.StorageKey); err != nil {
			logger.WarnCtx(ctx, "upload: chunk cleanup failed", "key", ch.StorageKey, "error", err)
		}
	}
}

// ParseStoreBehavior resolves the original's store_behavior string
// convention ("1"→permanent, "0"→ephemeral, "auto"→system default).
// Coordinator.Complete calls it; the direct-create path in pkg/media does
// not (SPEC_FULL.md §C).
func ParseStoreBehavior(s string) (media.StoreBehavior, error) {
	b := media.StoreBehavior(s)
	if !b.Valid() {
		return "", fmt.Errorf("invalid store_behavior %q", s)
	}
	return b, nil
}

func lastPathSegment(key string) string {
	parts := strings.Split(strings.TrimRight(key, "/"), "/")
	return parts[len(parts)-1]
}

// extensionOf derives the final object's extension from the original
// filename's suffix, lowercased, defaulting to "bin" (spec §6).
func extensionOf(filename string) string {
	ext := strings.TrimPrefix(filepath.Ext(filename), ".")
	if ext == "" {
		return "bin"
	}
	return strings.ToLower(ext)
}
