package upload

import (
	"context"
	"testing"
	"time"

	"github.com/jeremybastin1207/mindia/internal/dbstore"
	"github.com/jeremybastin1207/mindia/internal/merrors"
	"github.com/jeremybastin1207/mindia/pkg/media"
)

func newTestSessionRepository(t *testing.T) *Repository {
	t.Helper()

	gormStore, err := dbstore.New(&dbstore.Config{
		Type:   dbstore.DatabaseTypeSQLite,
		SQLite: dbstore.SQLiteConfig{Path: ":memory:"},
	}, AllModels()...)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	return NewRepository(gormStore.DB())
}

func newTestSession(tenant string) *Session {
	return &Session{
		ID:             "sess-" + tenant,
		Tenant:         tenant,
		Filename:       "clip.mp4",
		ContentType:    "video/mp4",
		DeclaredSize:   20,
		MediaKind:      media.KindVideo,
		BaseStorageKey: "uploads/chunked/sess-" + tenant + "/media-1",
		StoreBehavior:  media.StoreBehaviorPermanent,
		ChunkSize:      10,
		ChunkCount:     2,
		ExpiresAt:      time.Now().Add(24 * time.Hour),
	}
}

func TestCreateSessionDefaultsToPending(t *testing.T) {
	repo := newTestSessionRepository(t)
	ctx := context.Background()

	s := newTestSession("tenant-1")
	s.Status = ""
	if err := repo.CreateSession(ctx, s); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	fetched, err := repo.GetSession(ctx, "tenant-1", s.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if fetched.Status != StatusPending {
		t.Fatalf("expected default status Pending, got %s", fetched.Status)
	}
}

func TestGetSessionIsTenantScoped(t *testing.T) {
	repo := newTestSessionRepository(t)
	ctx := context.Background()

	s := newTestSession("tenant-1")
	if err := repo.CreateSession(ctx, s); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if _, err := repo.GetSession(ctx, "tenant-2", s.ID); !merrors.Is(err, merrors.NotFound) {
		t.Fatalf("expected NotFound for a foreign tenant, got %v", err)
	}
	if _, err := repo.GetSession(ctx, "tenant-1", s.ID); err != nil {
		t.Fatalf("expected the owning tenant's lookup to succeed, got %v", err)
	}
}

func TestRecordChunkTransitionsPendingToUploadingOnFirstChunk(t *testing.T) {
	repo := newTestSessionRepository(t)
	ctx := context.Background()

	s := newTestSession("tenant-1")
	if err := repo.CreateSession(ctx, s); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if err := repo.RecordChunk(ctx, s.ID, 0, "uploads/chunked/sess-tenant-1/media-1.chunk.0", 10); err != nil {
		t.Fatalf("RecordChunk failed: %v", err)
	}

	fetched, err := repo.GetSession(ctx, "tenant-1", s.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if fetched.Status != StatusUploading {
		t.Fatalf("expected Uploading after first chunk, got %s", fetched.Status)
	}
}

func TestRecordChunkUpsertIsIdempotentOnSameIndex(t *testing.T) {
	repo := newTestSessionRepository(t)
	ctx := context.Background()

	s := newTestSession("tenant-1")
	if err := repo.CreateSession(ctx, s); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if err := repo.RecordChunk(ctx, s.ID, 0, "key-v1", 10); err != nil {
		t.Fatalf("first RecordChunk failed: %v", err)
	}
	if err := repo.RecordChunk(ctx, s.ID, 0, "key-v2", 10); err != nil {
		t.Fatalf("second RecordChunk failed: %v", err)
	}

	chunks, err := repo.GetChunks(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetChunks failed: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected one row for a re-recorded index, got %d", len(chunks))
	}
	if chunks[0].StorageKey != "key-v2" {
		t.Fatalf("expected the latest key to win, got %s", chunks[0].StorageKey)
	}
}

func TestGetChunksOrderedByIndex(t *testing.T) {
	repo := newTestSessionRepository(t)
	ctx := context.Background()

	s := newTestSession("tenant-1")
	if err := repo.CreateSession(ctx, s); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	for _, i := range []int{1, 0} {
		if err := repo.RecordChunk(ctx, s.ID, i, "key", 10); err != nil {
			t.Fatalf("RecordChunk(%d) failed: %v", i, err)
		}
	}

	chunks, err := repo.GetChunks(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetChunks failed: %v", err)
	}
	if len(chunks) != 2 || chunks[0].Index != 0 || chunks[1].Index != 1 {
		t.Fatalf("expected chunks ordered [0,1], got %+v", chunks)
	}
}

func TestMarkCompletedGuardsAgainstDoubleCompletion(t *testing.T) {
	repo := newTestSessionRepository(t)
	ctx := context.Background()

	s := newTestSession("tenant-1")
	s.Status = StatusUploading
	if err := repo.CreateSession(ctx, s); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if err := repo.MarkCompleted(ctx, s.ID, "media-1"); err != nil {
		t.Fatalf("first MarkCompleted failed: %v", err)
	}

	if err := repo.MarkCompleted(ctx, s.ID, "media-2"); !merrors.Is(err, merrors.Conflict) {
		t.Fatalf("expected Conflict on a second MarkCompleted, got %v", err)
	}

	fetched, err := repo.GetSession(ctx, "tenant-1", s.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if fetched.CompletedMediaID == nil || *fetched.CompletedMediaID != "media-1" {
		t.Fatalf("expected completed_media_id to still be the first winner")
	}
}

func TestMarkCompletedRejectsExpiredSession(t *testing.T) {
	repo := newTestSessionRepository(t)
	ctx := context.Background()

	s := newTestSession("tenant-1")
	s.Status = StatusExpired
	if err := repo.CreateSession(ctx, s); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if err := repo.MarkCompleted(ctx, s.ID, "media-1"); !merrors.Is(err, merrors.Conflict) {
		t.Fatalf("expected Conflict completing an Expired session, got %v", err)
	}
}

func TestListByTenantFiltersByStatus(t *testing.T) {
	repo := newTestSessionRepository(t)
	ctx := context.Background()

	pending := newTestSession("tenant-1")
	pending.ID = "sess-pending"
	uploading := newTestSession("tenant-1")
	uploading.ID = "sess-uploading"
	uploading.Status = StatusUploading
	other := newTestSession("tenant-2")
	for _, s := range []*Session{pending, uploading, other} {
		if err := repo.CreateSession(ctx, s); err != nil {
			t.Fatalf("CreateSession(%s) failed: %v", s.ID, err)
		}
	}

	all, err := repo.ListByTenant(ctx, "tenant-1", "", 0)
	if err != nil {
		t.Fatalf("ListByTenant failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 sessions for tenant-1, got %d", len(all))
	}

	filtered, err := repo.ListByTenant(ctx, "tenant-1", StatusUploading, 0)
	if err != nil {
		t.Fatalf("ListByTenant with status filter failed: %v", err)
	}
	if len(filtered) != 1 || filtered[0].ID != "sess-uploading" {
		t.Fatalf("expected only sess-uploading, got %+v", filtered)
	}
}

func TestListExpiredReturnsOnlyPastDeadlinePendingOrUploading(t *testing.T) {
	repo := newTestSessionRepository(t)
	ctx := context.Background()

	expired := newTestSession("tenant-1")
	expired.ID = "sess-expired"
	expired.ExpiresAt = time.Now().Add(-1 * time.Hour)

	notYetExpired := newTestSession("tenant-1")
	notYetExpired.ID = "sess-fresh"
	notYetExpired.ExpiresAt = time.Now().Add(1 * time.Hour)

	completedButOld := newTestSession("tenant-1")
	completedButOld.ID = "sess-completed"
	completedButOld.Status = StatusCompleted
	completedButOld.ExpiresAt = time.Now().Add(-1 * time.Hour)

	for _, s := range []*Session{expired, notYetExpired, completedButOld} {
		if err := repo.CreateSession(ctx, s); err != nil {
			t.Fatalf("CreateSession(%s) failed: %v", s.ID, err)
		}
	}

	rows, err := repo.ListExpired(ctx, 0)
	if err != nil {
		t.Fatalf("ListExpired failed: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "sess-expired" {
		t.Fatalf("expected only sess-expired, got %+v", rows)
	}
}
