// Package upload implements the chunked/resumable upload session state
// machine and its coordinator (spec §3, §4.3, §4.4).
package upload

import (
	"encoding/json"
	"time"

	"github.com/jeremybastin1207/mindia/pkg/media"
)

// Status is the upload session's lifecycle state (spec §4.3).
type Status string

const (
	StatusPending   Status = "pending"
	StatusUploading Status = "uploading"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusExpired   Status = "expired"
)

// Session persists one resumable upload (spec §3).
type Session struct {
	ID                string        `gorm:"primaryKey;size:36" json:"id"`
	Tenant            string        `gorm:"not null;size:255;index" json:"tenant"`
	Filename          string        `gorm:"not null;size:512" json:"filename"`
	ContentType       string        `gorm:"not null;size:255" json:"content_type"`
	DeclaredSize      int64         `gorm:"not null" json:"declared_size"`
	MediaKind         media.Kind    `gorm:"not null;size:20" json:"media_kind"`
	BaseStorageKey    string        `gorm:"not null;size:1024" json:"base_storage_key"`
	StoreBehavior     media.StoreBehavior `gorm:"not null;size:10" json:"store_behavior"`
	Metadata          json.RawMessage `gorm:"type:text" json:"metadata,omitempty"`
	ChunkSize         int64         `gorm:"not null" json:"chunk_size"`
	ChunkCount        int           `gorm:"not null" json:"chunk_count"`
	Status            Status        `gorm:"not null;size:20;index" json:"status"`
	CreatedAt         time.Time     `gorm:"autoCreateTime" json:"created_at"`
	ExpiresAt         time.Time     `gorm:"not null;index" json:"expires_at"`
	CompletedMediaID  *string       `gorm:"size:36" json:"completed_media_id,omitempty"`
}

func (Session) TableName() string { return "upload_sessions" }

// Chunk records one arrived chunk of a Session (spec §3). Uniqueness on
// (SessionID, Index); a re-record of the same index is idempotent.
type Chunk struct {
	SessionID  string `gorm:"primaryKey;size:36" json:"session_id"`
	Index      int    `gorm:"primaryKey" json:"index"`
	StorageKey string `gorm:"not null;size:1024" json:"storage_key"`
	Size       int64  `gorm:"not null" json:"size"`
}

func (Chunk) TableName() string { return "uploaded_chunks" }

// AllModels returns every model internal/dbstore.New must AutoMigrate for
// this package's repository to function.
func AllModels() []interface{} {
	return []interface{}{&Session{}, &Chunk{}}
}

// ChunkURL is one entry of the start operation's ordered URL list.
type ChunkURL struct {
	Index int    `json:"index"`
	URL   string `json:"url"`
	Key   string `json:"key"`
}
