package logger

import (
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements for log aggregation and querying.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Tenancy & Operation
	// ========================================================================
	KeyProcedure = "procedure" // operation name: ClaimTask, StartUpload, etc.
	KeyTenantID  = "tenant_id" // tenant the operation is scoped to
	KeyStatus    = "status"    // operation status/result code
	KeyStatusMsg = "status_msg"

	// ========================================================================
	// Tasks
	// ========================================================================
	KeyTaskID     = "task_id"
	KeyTaskKind   = "task_kind"
	KeyPriority   = "priority"
	KeyRetryCount = "retry_count"
	KeyMaxRetries = "max_retries"
	KeyBackoffSec = "backoff_seconds"
	KeyDependsOn  = "depends_on"

	// ========================================================================
	// Uploads
	// ========================================================================
	KeySessionID   = "session_id"
	KeyChunkIndex  = "chunk_index"
	KeyChunkCount  = "chunk_count"
	KeyDeclaredSz  = "declared_size"
	KeyAssembledSz = "assembled_size"

	// ========================================================================
	// Media & Storage
	// ========================================================================
	KeyMediaID    = "media_id"
	KeyMediaKind  = "media_kind"
	KeyStoreName  = "store_name"
	KeyStoreType  = "store_type" // remote, local, networked
	KeyBucket     = "bucket"
	KeyKey        = "object_key"
	KeyRegion     = "region"
	KeySize       = "size"
	KeyAttempt    = "attempt"

	// ========================================================================
	// Scheduler runtime
	// ========================================================================
	KeyWorkerID    = "worker_id"
	KeyWorkersBusy = "workers_busy"
	KeyQueueDepth  = "queue_depth"

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyErrorKind  = "error_kind"
	KeySource     = "source"
	KeyOperation  = "operation"
)

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr { return slog.String(KeyTraceID, id) }

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr { return slog.String(KeySpanID, id) }

// Procedure returns a slog.Attr for operation name
func Procedure(name string) slog.Attr { return slog.String(KeyProcedure, name) }

// TenantID returns a slog.Attr for the tenant scoping an operation
func TenantID(id string) slog.Attr { return slog.String(KeyTenantID, id) }

// Status returns a slog.Attr for operation status
func Status(s string) slog.Attr { return slog.String(KeyStatus, s) }

// StatusMsg returns a slog.Attr for a human-readable status message
func StatusMsg(msg string) slog.Attr { return slog.String(KeyStatusMsg, msg) }

// TaskID returns a slog.Attr for a task identifier
func TaskID(id string) slog.Attr { return slog.String(KeyTaskID, id) }

// TaskKind returns a slog.Attr for a task's kind/class
func TaskKind(kind string) slog.Attr { return slog.String(KeyTaskKind, kind) }

// Priority returns a slog.Attr for task priority
func Priority(p int) slog.Attr { return slog.Int(KeyPriority, p) }

// RetryCount returns a slog.Attr for a task's retry counter
func RetryCount(n int) slog.Attr { return slog.Int(KeyRetryCount, n) }

// MaxRetries returns a slog.Attr for a task's retry budget
func MaxRetries(n int) slog.Attr { return slog.Int(KeyMaxRetries, n) }

// BackoffSeconds returns a slog.Attr for computed retry backoff
func BackoffSeconds(s int) slog.Attr { return slog.Int(KeyBackoffSec, s) }

// SessionID returns a slog.Attr for an upload session identifier
func SessionID(id string) slog.Attr { return slog.String(KeySessionID, id) }

// ChunkIndex returns a slog.Attr for a chunk's index within a session
func ChunkIndex(i int) slog.Attr { return slog.Int(KeyChunkIndex, i) }

// ChunkCount returns a slog.Attr for a session's total chunk count
func ChunkCount(n int) slog.Attr { return slog.Int(KeyChunkCount, n) }

// DeclaredSize returns a slog.Attr for a session's declared upload size
func DeclaredSize(n int64) slog.Attr { return slog.Int64(KeyDeclaredSz, n) }

// AssembledSize returns a slog.Attr for the assembled object size
func AssembledSize(n int64) slog.Attr { return slog.Int64(KeyAssembledSz, n) }

// MediaID returns a slog.Attr for a media identifier
func MediaID(id string) slog.Attr { return slog.String(KeyMediaID, id) }

// MediaKind returns a slog.Attr for a media kind (Image/Video/Audio/Document)
func MediaKind(kind string) slog.Attr { return slog.String(KeyMediaKind, kind) }

// StoreName returns a slog.Attr for a named object store
func StoreName(name string) slog.Attr { return slog.String(KeyStoreName, name) }

// StoreType returns a slog.Attr for an object store backend kind
func StoreType(t string) slog.Attr { return slog.String(KeyStoreType, t) }

// Bucket returns a slog.Attr for a cloud bucket name
func Bucket(name string) slog.Attr { return slog.String(KeyBucket, name) }

// Key returns a slog.Attr for an object key
func Key(k string) slog.Attr { return slog.String(KeyKey, k) }

// Region returns a slog.Attr for a cloud region
func Region(r string) slog.Attr { return slog.String(KeyRegion, r) }

// Size returns a slog.Attr for a byte size
func Size(n int64) slog.Attr { return slog.Int64(KeySize, n) }

// Attempt returns a slog.Attr for a retry attempt number
func Attempt(n int) slog.Attr { return slog.Int(KeyAttempt, n) }

// WorkerID returns a slog.Attr for a scheduler worker's id
func WorkerID(n int) slog.Attr { return slog.Int(KeyWorkerID, n) }

// WorkersBusy returns a slog.Attr for the number of busy scheduler workers
func WorkersBusy(n int) slog.Attr { return slog.Int(KeyWorkersBusy, n) }

// QueueDepth returns a slog.Attr for the number of tasks waiting to be claimed
func QueueDepth(n int) slog.Attr { return slog.Int(KeyQueueDepth, n) }

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDurationMs, ms) }

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorKind returns a slog.Attr for the error taxonomy kind
func ErrorKind(kind string) slog.Attr { return slog.String(KeyErrorKind, kind) }

// Source returns a slog.Attr for a data source
func Source(src string) slog.Attr { return slog.String(KeySource, src) }

// Operation returns a slog.Attr for a sub-operation type
func Operation(op string) slog.Attr { return slog.String(KeyOperation, op) }
