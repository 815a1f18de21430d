package upload

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/jeremybastin1207/mindia/internal/dbstore"
)

// Repository is the Upload Session Repository (spec §4.3).
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a Repository over an already-migrated GORM
// connection.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateSession persists a new session with status=Pending.
func (r *Repository) CreateSession(ctx context.Context, s *Session) error {
	if s.Status == "" {
		s.Status = StatusPending
	}
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		return errDatabase("upload.CreateSession", err)
	}
	return nil
}

// GetSession loads a tenant-scoped session, or a NotFound error if absent.
func (r *Repository) GetSession(ctx context.Context, tenant, id string) (*Session, error) {
	var s Session
	err := r.db.WithContext(ctx).Where("id = ? AND tenant = ?", id, tenant).First(&s).Error
	if err != nil {
		return nil, errNotFound("upload.GetSession", dbstore.ConvertNotFoundError(err, fmt.Errorf("session %s not found", id)))
	}
	return &s, nil
}

// RecordChunk upserts a chunk row, idempotent on (session, index): a
// re-record of the same index overwrites the key/size with the latest
// observation rather than erroring (spec §4.3, §8). It also transitions
// the session from Pending to Uploading on the first recorded chunk.
func (r *Repository) RecordChunk(ctx context.Context, sessionID string, index int, key string, size int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		chunk := Chunk{SessionID: sessionID, Index: index, StorageKey: key, Size: size}
		err := tx.Where("session_id = ? AND \"index\" = ?", sessionID, index).
			Assign(Chunk{StorageKey: key, Size: size}).
			FirstOrCreate(&chunk).Error
		if err != nil {
			return errDatabase("upload.RecordChunk", err)
		}

		result := tx.Model(&Session{}).
			Where("id = ? AND status = ?", sessionID, StatusPending).
			Update("status", StatusUploading)
		if result.Error != nil {
			return errDatabase("upload.RecordChunk", result.Error)
		}
		return nil
	})
}

// GetChunks returns every recorded chunk for a session, ordered by index.
func (r *Repository) GetChunks(ctx context.Context, sessionID string) ([]*Chunk, error) {
	var chunks []*Chunk
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("\"index\" ASC").
		Find(&chunks).Error
	if err != nil {
		return nil, errDatabase("upload.GetChunks", err)
	}
	return chunks, nil
}

// UpdateStatus sets a session's status unconditionally (for example to
// Failed or Expired).
func (r *Repository) UpdateStatus(ctx context.Context, id string, status Status) error {
	err := r.db.WithContext(ctx).Model(&Session{}).Where("id = ?", id).Update("status", status).Error
	if err != nil {
		return errDatabase("upload.UpdateStatus", err)
	}
	return nil
}

// MarkCompleted atomically sets status=Completed and links the produced
// media id, guarded so it only applies while the session is neither
// Completed nor Expired — the
// guard that makes Complete's second invocation a no-op (spec §4.4, §8).
func (r *Repository) MarkCompleted(ctx context.Context, id, mediaID string) error {
	result := r.db.WithContext(ctx).Model(&Session{}).
		Where("id = ? AND status NOT IN ?", id, []Status{StatusCompleted, StatusExpired}).
		Updates(map[string]any{"status": StatusCompleted, "completed_media_id": mediaID})
	if result.Error != nil {
		return errDatabase("upload.MarkCompleted", result.Error)
	}
	if result.RowsAffected == 0 {
		return errConflict("upload.MarkCompleted", fmt.Errorf("session %s not in a completable status", id))
	}
	return nil
}

// ListByTenant returns a tenant's sessions ordered newest-first, optionally
// filtered by status, for the admin CLI's "upload sessions list" (spec
// §A.6).
func (r *Repository) ListByTenant(ctx context.Context, tenant string, status Status, limit int) ([]*Session, error) {
	var sessions []*Session
	q := r.db.WithContext(ctx).Where("tenant = ?", tenant).Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&sessions).Error; err != nil {
		return nil, errDatabase("upload.ListByTenant", err)
	}
	return sessions, nil
}

// ListExpired returns Pending/Uploading sessions past their TTL, oldest
// expiry first. No sweep in this module calls it; sessions are not
// expired automatically.
func (r *Repository) ListExpired(ctx context.Context, limit int) ([]*Session, error) {
	var sessions []*Session
	q := r.db.WithContext(ctx).
		Where("status IN ? AND expires_at <= ?", []Status{StatusPending, StatusUploading}, time.Now()).
		Order("expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&sessions).Error; err != nil {
		return nil, errDatabase("upload.ListExpired", err)
	}
	return sessions, nil
}
