// Package media implements the tenant-isolated record of media items,
// their storage locations, lifecycle, derived artifacts, and nested
// metadata namespace (spec §3, §4.2).
package media

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jeremybastin1207/mindia/pkg/objectstore"
)

// Kind discriminates the type of media a record holds.
type Kind string

const (
	KindImage    Kind = "image"
	KindVideo    Kind = "video"
	KindAudio    Kind = "audio"
	KindDocument Kind = "document"
)

func (k Kind) Valid() bool {
	switch k {
	case KindImage, KindVideo, KindAudio, KindDocument:
		return true
	default:
		return false
	}
}

// permittedContentTypePrefixes names the content-type prefix each Kind
// accepts: "content-type matches the kind's permitted set" (spec §3 Media
// invariants).
var permittedContentTypePrefixes = map[Kind]string{
	KindImage:    "image/",
	KindVideo:    "video/",
	KindAudio:    "audio/",
	KindDocument: "application/",
}

// AllowsContentType reports whether contentType belongs to k's permitted
// set. Document additionally permits text/* (plain text and CSV uploads
// both arrive as KindDocument alongside PDFs and office formats).
func (k Kind) AllowsContentType(contentType string) bool {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	prefix, ok := permittedContentTypePrefixes[k]
	if !ok {
		return false
	}
	if strings.HasPrefix(contentType, prefix) {
		return true
	}
	return k == KindDocument && strings.HasPrefix(contentType, "text/")
}

// StoreBehavior selects whether a media item is retained permanently, is
// ephemeral (subject to expiry), or defers to the system default ("auto").
type StoreBehavior string

const (
	StoreBehaviorPermanent StoreBehavior = "1"
	StoreBehaviorEphemeral StoreBehavior = "0"
	StoreBehaviorAuto      StoreBehavior = "auto"
)

func (b StoreBehavior) Valid() bool {
	switch b {
	case StoreBehaviorPermanent, StoreBehaviorEphemeral, StoreBehaviorAuto:
		return true
	default:
		return false
	}
}

// VideoProcessingStatus tracks a video's transcode pipeline.
type VideoProcessingStatus string

const (
	VideoProcessingPending    VideoProcessingStatus = "pending"
	VideoProcessingProcessing VideoProcessingStatus = "processing"
	VideoProcessingCompleted  VideoProcessingStatus = "completed"
	VideoProcessingFailed     VideoProcessingStatus = "failed"
)

// StorageLocation is an immutable {backend-kind, key, url} triple created
// when bytes land in the object store. Exactly one per media record.
type StorageLocation struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Backend   string    `gorm:"not null;size:20" json:"backend"`
	Key       string    `gorm:"not null;size:1024;uniqueIndex:idx_storage_backend_key" json:"key"`
	URL       string    `gorm:"not null;size:2048" json:"url"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (StorageLocation) TableName() string { return "storage_locations" }

func newStorageLocation(id string, kind objectstore.BackendKind, key, url string) *StorageLocation {
	return &StorageLocation{ID: id, Backend: kind.String(), Key: key, URL: url}
}

// VariantLadderRung describes one rung of an adaptive-streaming ladder.
type VariantLadderRung struct {
	Name        string `json:"name"`
	PlaylistKey string `json:"playlist_key"`
	SegmentKeys []string `json:"-"` // derived, never persisted: segment_000..segment_{count-1}
	SegmentCount int    `json:"segment_count"`
}

// ImageMetadata is the Kind-specific payload for KindImage.
type ImageMetadata struct {
	Width  *int `json:"width,omitempty"`
	Height *int `json:"height,omitempty"`
}

// VideoMetadata is the Kind-specific payload for KindVideo.
type VideoMetadata struct {
	Width             *int                  `json:"width,omitempty"`
	Height            *int                  `json:"height,omitempty"`
	DurationSeconds   *float64              `json:"duration_seconds,omitempty"`
	ProcessingStatus  VideoProcessingStatus `json:"processing_status,omitempty"`
	MasterPlaylistKey *string               `json:"master_playlist_key,omitempty"`
	Variants          []VariantLadderRung   `json:"variants,omitempty"`
}

// AudioMetadata is the Kind-specific payload for KindAudio.
type AudioMetadata struct {
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
	BitrateKbps     *int     `json:"bitrate_kbps,omitempty"`
	SampleRateHz    *int     `json:"sample_rate_hz,omitempty"`
	Channels        *int     `json:"channels,omitempty"`
}

// DocumentMetadata is the Kind-specific payload for KindDocument.
type DocumentMetadata struct {
	PageCount *int `json:"page_count,omitempty"`
}

// KindSpecificMetadata is a JSON column holding whichever of the four
// Kind-specific payloads applies to the row's Kind. Callers decode via
// Image()/Video()/Audio()/Document(); only the one matching Kind is valid.
type KindSpecificMetadata json.RawMessage

func (m KindSpecificMetadata) Value() (driver.Value, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	return string(m), nil
}

func (m *KindSpecificMetadata) Scan(value interface{}) error {
	if value == nil {
		*m = KindSpecificMetadata("{}")
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*m = KindSpecificMetadata(v)
	case string:
		*m = KindSpecificMetadata(v)
	default:
		return fmt.Errorf("unsupported Scan type for KindSpecificMetadata: %T", value)
	}
	return nil
}

func encodeKindMetadata(v interface{}) KindSpecificMetadata {
	data, _ := json.Marshal(v)
	return KindSpecificMetadata(data)
}

func (m KindSpecificMetadata) Video() (VideoMetadata, error) {
	var v VideoMetadata
	if len(m) == 0 {
		return v, nil
	}
	err := json.Unmarshal(m, &v)
	return v, err
}

func (m KindSpecificMetadata) Image() (ImageMetadata, error) {
	var v ImageMetadata
	if len(m) == 0 {
		return v, nil
	}
	err := json.Unmarshal(m, &v)
	return v, err
}

func (m KindSpecificMetadata) Audio() (AudioMetadata, error) {
	var v AudioMetadata
	if len(m) == 0 {
		return v, nil
	}
	err := json.Unmarshal(m, &v)
	return v, err
}

func (m KindSpecificMetadata) Document() (DocumentMetadata, error) {
	var v DocumentMetadata
	if len(m) == 0 {
		return v, nil
	}
	err := json.Unmarshal(m, &v)
	return v, err
}

// NestedMetadata is the two-level {user, plugins} metadata namespace
// (spec §3). It is stored as a single JSON column; the repository enforces
// that reads/writes to one namespace never clobber the other.
type NestedMetadata struct {
	User    map[string]json.RawMessage            `json:"user"`
	Plugins map[string]map[string]json.RawMessage `json:"plugins"`
}

// NewNestedMetadata returns an empty, well-formed NestedMetadata.
func NewNestedMetadata() NestedMetadata {
	return NestedMetadata{
		User:    map[string]json.RawMessage{},
		Plugins: map[string]map[string]json.RawMessage{},
	}
}

func (n NestedMetadata) Value() (driver.Value, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (n *NestedMetadata) Scan(value interface{}) error {
	if value == nil {
		*n = NewNestedMetadata()
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported Scan type for NestedMetadata: %T", value)
	}
	if len(raw) == 0 {
		*n = NewNestedMetadata()
		return nil
	}
	if err := json.Unmarshal(raw, n); err != nil {
		return err
	}
	if n.User == nil {
		n.User = map[string]json.RawMessage{}
	}
	if n.Plugins == nil {
		n.Plugins = map[string]map[string]json.RawMessage{}
	}
	return nil
}

// Media is the tenant-scoped record of an ingested media item (spec §3).
type Media struct {
	ID                string     `gorm:"primaryKey;size:36" json:"id"`
	Tenant            string     `gorm:"not null;size:255;index:idx_media_tenant" json:"tenant"`
	StorageLocationID string     `gorm:"not null;size:36;uniqueIndex" json:"storage_location_id"`
	Kind              Kind       `gorm:"not null;size:20;index:idx_media_tenant" json:"kind"`
	Filename          string     `gorm:"not null;size:512" json:"filename"`
	OriginalFilename  string     `gorm:"not null;size:512" json:"original_filename"`
	ContentType       string     `gorm:"not null;size:255" json:"content_type"`
	FileSize          int64      `gorm:"not null" json:"file_size"`
	UploadedAt        time.Time  `gorm:"not null" json:"uploaded_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	StoreBehavior     StoreBehavior `gorm:"not null;size:10" json:"store_behavior"`
	StorePermanently  bool       `gorm:"not null" json:"store_permanently"`
	ExpiresAt         *time.Time `gorm:"index:idx_media_expiry" json:"expires_at,omitempty"`
	FolderRef         *string    `gorm:"size:36" json:"folder_ref,omitempty"`
	Metadata          NestedMetadata       `gorm:"type:text" json:"metadata"`
	TypeMetadata      KindSpecificMetadata `gorm:"type:text" json:"type_metadata"`

	StorageLocation StorageLocation `gorm:"foreignKey:StorageLocationID" json:"storage_location"`
}

func (Media) TableName() string { return "media" }

// AllModels returns every model internal/dbstore.New must AutoMigrate for
// this package's repository to function.
func AllModels() []interface{} {
	return []interface{}{&StorageLocation{}, &Media{}}
}
