package media

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/jeremybastin1207/mindia/internal/dbstore"
	"github.com/jeremybastin1207/mindia/pkg/objectstore/local"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()

	gormStore, err := dbstore.New(&dbstore.Config{
		Type:   dbstore.DatabaseTypeSQLite,
		SQLite: dbstore.SQLiteConfig{Path: ":memory:"},
	}, AllModels()...)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}

	objStore, err := local.New(local.Config{RootDir: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create test object store: %v", err)
	}

	return NewRepository(gormStore.DB(), objStore)
}

func TestCreateImageAndGet(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	m, err := repo.CreateImage(ctx, CreateParams{
		Tenant:           "tenant-1",
		Filename:         "photo.png",
		OriginalFilename: "photo.png",
		ContentType:      "image/png",
		StoreBehavior:    StoreBehaviorPermanent,
	}, make([]byte, 8192), ImageMetadata{})
	if err != nil {
		t.Fatalf("CreateImage failed: %v", err)
	}

	if !m.StorePermanently {
		t.Error("expected store_permanently=true")
	}
	if m.ExpiresAt != nil {
		t.Error("expected nil expires_at for permanent media")
	}
	if m.FileSize != 8192 {
		t.Errorf("expected file_size=8192, got %d", m.FileSize)
	}

	got, err := repo.Get(ctx, "tenant-1", m.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ID != m.ID {
		t.Errorf("expected id %s, got %s", m.ID, got.ID)
	}
}

func TestGetCrossTenantReturnsNotFound(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	m, err := repo.CreateImage(ctx, CreateParams{
		Tenant:           "tenant-1",
		Filename:         "a.png",
		OriginalFilename: "a.png",
		ContentType:      "image/png",
		StoreBehavior:    StoreBehaviorPermanent,
	}, []byte("data"), ImageMetadata{})
	if err != nil {
		t.Fatalf("CreateImage failed: %v", err)
	}

	if _, err := repo.Get(ctx, "tenant-2", m.ID); err == nil {
		t.Fatal("expected NotFound for cross-tenant lookup")
	}
}

func TestDeleteRemovesBytesAndRow(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	m, err := repo.CreateImage(ctx, CreateParams{
		Tenant:           "tenant-1",
		Filename:         "a.png",
		OriginalFilename: "a.png",
		ContentType:      "image/png",
		StoreBehavior:    StoreBehaviorEphemeral,
	}, []byte("data"), ImageMetadata{})
	if err != nil {
		t.Fatalf("CreateImage failed: %v", err)
	}
	if m.ExpiresAt == nil {
		t.Fatal("expected non-nil expires_at for ephemeral media")
	}

	key := m.StorageLocation.Key
	if err := repo.Delete(ctx, "tenant-1", m.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := repo.Get(ctx, "tenant-1", m.ID); err == nil {
		t.Fatal("expected NotFound after delete")
	}

	exists, err := repo.store.Exists(ctx, key)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Error("expected storage bytes to be gone after delete")
	}
}

func TestSetUserMetadataRejectsInvalidKey(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	m, err := repo.CreateImage(ctx, CreateParams{
		Tenant:           "tenant-1",
		Filename:         "a.png",
		OriginalFilename: "a.png",
		ContentType:      "image/png",
		StoreBehavior:    StoreBehaviorPermanent,
	}, []byte("data"), ImageMetadata{})
	if err != nil {
		t.Fatalf("CreateImage failed: %v", err)
	}

	err = repo.SetUserMetadata(ctx, "tenant-1", m.ID, map[string]json.RawMessage{
		"bad key!": json.RawMessage(`"x"`),
	})
	if err == nil {
		t.Fatal("expected error for invalid metadata key charset")
	}
}

func TestSetPluginMetadataCommutesAcrossNamespaces(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	m, err := repo.CreateImage(ctx, CreateParams{
		Tenant:           "tenant-1",
		Filename:         "a.png",
		OriginalFilename: "a.png",
		ContentType:      "image/png",
		StoreBehavior:    StoreBehaviorPermanent,
	}, []byte("data"), ImageMetadata{})
	if err != nil {
		t.Fatalf("CreateImage failed: %v", err)
	}

	if err := repo.SetPluginMetadata(ctx, "tenant-1", m.ID, "vision", map[string]json.RawMessage{
		"label": json.RawMessage(`"cat"`),
	}); err != nil {
		t.Fatalf("SetPluginMetadata(vision) failed: %v", err)
	}
	if err := repo.SetPluginMetadata(ctx, "tenant-1", m.ID, "embeddings", map[string]json.RawMessage{
		"dims": json.RawMessage(`768`),
	}); err != nil {
		t.Fatalf("SetPluginMetadata(embeddings) failed: %v", err)
	}

	got, err := repo.Get(ctx, "tenant-1", m.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if _, ok := got.Metadata.Plugins["vision"]; !ok {
		t.Error("expected vision namespace to survive embeddings write")
	}
	if _, ok := got.Metadata.Plugins["embeddings"]; !ok {
		t.Error("expected embeddings namespace to be present")
	}
}
