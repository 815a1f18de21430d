// Package lifecycle implements the Media Lifecycle Service: best-effort
// cleanup of a media item's derived artifacts, invoked immediately before
// media.Repository.Delete removes the row and its primary object (spec
// §4.7).
package lifecycle

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/jeremybastin1207/mindia/internal/logger"
	"github.com/jeremybastin1207/mindia/pkg/media"
	"github.com/jeremybastin1207/mindia/pkg/objectstore"
)

// MaxSegmentsPerVariant bounds the per-rung segment sweep
// (segment_000..segment_998), carried from the original's media_lifecycle
// cleanup routine (SPEC_FULL.md §C).
const MaxSegmentsPerVariant = 999

// MaxConcurrentDeletes bounds the fan-out of concurrent segment deletes
// per variant rung (spec §4.7: "≈ 64 in flight").
const MaxConcurrentDeletes = 64

// EmbeddingStore is the optional audio-embedding subsystem collaborator.
// When nil, audio cleanup is a no-op (spec §4.7: "if the embedding
// subsystem is enabled").
type EmbeddingStore interface {
	DeleteEmbedding(ctx context.Context, tenant, mediaID string) error
}

// Service performs best-effort pre-deletion cleanup of a media item's
// derived artifacts. Every failure is logged; none are returned to the
// caller, since cleanup failures must never block the delete pipeline
// (spec §4.7: "All failures within this service are logged; none halt
// the overall delete pipeline").
type Service struct {
	store      objectstore.Store
	embeddings EmbeddingStore
}

// NewService constructs a Service. embeddings may be nil.
func NewService(store objectstore.Store, embeddings EmbeddingStore) *Service {
	return &Service{store: store, embeddings: embeddings}
}

// CleanupBeforeDelete removes m's derived artifacts ahead of its row and
// primary object being deleted. It never returns an error: every failure
// is logged and swallowed so the caller's delete always proceeds.
func (s *Service) CleanupBeforeDelete(ctx context.Context, m *media.Media) {
	switch m.Kind {
	case media.KindVideo:
		s.cleanupVideo(ctx, m)
	case media.KindAudio:
		s.cleanupAudio(ctx, m)
	case media.KindImage, media.KindDocument:
		// No derived artifacts.
	}
}

func (s *Service) cleanupVideo(ctx context.Context, m *media.Media) {
	vm, err := m.TypeMetadata.Video()
	if err != nil {
		logger.WarnCtx(ctx, "lifecycle: decode video metadata failed", "media_id", m.ID, "error", err)
		return
	}

	if vm.MasterPlaylistKey != nil {
		s.deleteBestEffort(ctx, m.ID, *vm.MasterPlaylistKey)
	}

	for _, rung := range vm.Variants {
		s.cleanupVariantRung(ctx, m.ID, rung)
	}
}

func (s *Service) cleanupVariantRung(ctx context.Context, mediaID string, rung media.VariantLadderRung) {
	if rung.PlaylistKey != "" {
		s.deleteBestEffort(ctx, mediaID, rung.PlaylistKey)
	}

	segmentCount := rung.SegmentCount
	if segmentCount <= 0 || segmentCount > MaxSegmentsPerVariant {
		segmentCount = MaxSegmentsPerVariant
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxConcurrentDeletes)
	for i := 0; i < segmentCount; i++ {
		key := segmentKey(rung.PlaylistKey, i)
		g.Go(func() error {
			if err := s.store.Delete(gctx, key); err != nil {
				logger.WarnCtx(ctx, "lifecycle: segment delete failed",
					"media_id", mediaID, "rung", rung.Name, "key", key, "error", err)
			}
			return nil
		})
	}
	// errgroup.Wait never returns a non-nil error here: every Go closure
	// swallows its own failure and always returns nil.
	_ = g.Wait()
}

func (s *Service) cleanupAudio(ctx context.Context, m *media.Media) {
	if s.embeddings == nil {
		return
	}
	if err := s.embeddings.DeleteEmbedding(ctx, m.Tenant, m.ID); err != nil {
		logger.WarnCtx(ctx, "lifecycle: embedding delete failed", "media_id", m.ID, "error", err)
	}
}

func (s *Service) deleteBestEffort(ctx context.Context, mediaID, key string) {
	if err := s.store.Delete(ctx, key); err != nil {
		logger.WarnCtx(ctx, "lifecycle: artifact delete failed", "media_id", mediaID, "key", key, "error", err)
	}
}

// segmentKey derives a rung's Nth segment key from its playlist key's
// directory, following the original's segment_NNN naming convention
// (SPEC_FULL.md §C).
func segmentKey(playlistKey string, index int) string {
	dir := dirOf(playlistKey)
	return fmt.Sprintf("%ssegment_%03d.ts", dir, index)
}

func dirOf(key string) string {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '/' {
			return key[:i+1]
		}
	}
	return ""
}
