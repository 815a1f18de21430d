// Package cleanup implements the Cleanup / Reconciliation Service: periodic
// sweeps invoked by the surrounding runtime rather than the scheduler
// itself (spec §4.9).
package cleanup

import (
	"context"
	"strings"
	"time"

	"github.com/jeremybastin1207/mindia/internal/logger"
	"github.com/jeremybastin1207/mindia/internal/telemetry"
	"github.com/jeremybastin1207/mindia/pkg/lifecycle"
	"github.com/jeremybastin1207/mindia/pkg/media"
	"github.com/jeremybastin1207/mindia/pkg/task"
)

// DefaultOrphanSafetyWindow is the minimum object age before an
// orphan-reconciliation sweep is allowed to delete it, guarding against a
// race with a create that is still mid-flight (spec §4.9: "e.g. 24 h").
const DefaultOrphanSafetyWindow = 24 * time.Hour

// PrefixLister is the narrow object-store capability the orphan sweep
// needs beyond objectstore.Store: listing keys under "uploads/". Both the
// S3 and the local filesystem stores implement it; internal/app passes
// only an S3 store, so Local deployments skip the sweep.
type PrefixLister interface {
	ListByPrefix(ctx context.Context, prefix string) ([]string, error)
	DeleteByPrefix(ctx context.Context, prefix string) error
}

// Config bounds each sweep's batch size and sets the finished-task
// retention (spec §4.9: "Bounded batch size per run").
type Config struct {
	ExpiredMediaBatchSize  int
	FinishedTaskRetentionDays int
	OrphanReconcileEnabled bool
	OrphanSafetyWindow     time.Duration
}

// Service runs the three periodic sweeps named in spec §4.9.
type Service struct {
	cfg       Config
	media     map[media.Kind]*media.Repository
	lifecycle *lifecycle.Service
	tasks     *task.Repository
	orphans   PrefixLister
}

// NewService constructs a Service. mediaRepo is registered under every
// Kind in the Service's per-kind map; SweepExpiredMedia reads only the
// KindImage entry, so expired media of every kind is swept through that
// one repository. orphans may be nil (Local backend deployments skip the
// orphan sweep).
func NewService(cfg Config, mediaRepo *media.Repository, lifecycleSvc *lifecycle.Service, taskRepo *task.Repository, orphans PrefixLister) *Service {
	if cfg.OrphanSafetyWindow <= 0 {
		cfg.OrphanSafetyWindow = DefaultOrphanSafetyWindow
	}
	return &Service{
		cfg:       cfg,
		media:     map[media.Kind]*media.Repository{media.KindImage: mediaRepo, media.KindVideo: mediaRepo, media.KindAudio: mediaRepo, media.KindDocument: mediaRepo},
		lifecycle: lifecycleSvc,
		tasks:     taskRepo,
		orphans:   orphans,
	}
}

// SweepExpiredMedia loads expired rows and deletes each through the
// storage-first Media Repository path, running the Lifecycle Service's
// best-effort cleanup first (spec §4.9, §4.7).
func (s *Service) SweepExpiredMedia(ctx context.Context) (deleted int, err error) {
	ctx, span := telemetry.StartSpan(ctx, "cleanup.sweep_expired_media")
	defer span.End()

	repo := s.media[media.KindImage] // all kinds share one repository in this deployment
	rows, err := repo.ListExpired(ctx, s.cfg.ExpiredMediaBatchSize)
	if err != nil {
		return 0, err
	}

	for _, m := range rows {
		if s.lifecycle != nil {
			s.lifecycle.CleanupBeforeDelete(ctx, m)
		}
		if err := repo.Delete(ctx, m.Tenant, m.ID); err != nil {
			logger.WarnCtx(ctx, "cleanup: expired media delete failed", "media_id", m.ID, "error", err)
			continue
		}
		deleted++
	}
	return deleted, nil
}

// SweepFinishedTasks deletes terminal task rows past the retention window
// (spec §4.9: "delete-old-finished(retention-days) at a lower frequency").
func (s *Service) SweepFinishedTasks(ctx context.Context) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "cleanup.sweep_finished_tasks")
	defer span.End()

	return s.tasks.DeleteOldFinished(ctx, s.cfg.FinishedTaskRetentionDays)
}

// ReconcileStorageOrphans lists keys under "uploads/" and removes any
// object older than OrphanSafetyWindow that has no corresponding media
// row — the rare "step-3-failed" case from spec §4.2 where bytes land but
// the database insert never completes. Optional: no-op when the
// configured object store doesn't implement PrefixLister or the sweep is
// disabled.
func (s *Service) ReconcileStorageOrphans(ctx context.Context, knownKeys map[string]bool) (removed int, err error) {
	if !s.cfg.OrphanReconcileEnabled || s.orphans == nil {
		return 0, nil
	}
	ctx, span := telemetry.StartSpan(ctx, "cleanup.reconcile_storage_orphans")
	defer span.End()

	keys, err := s.orphans.ListByPrefix(ctx, "uploads/")
	if err != nil {
		return 0, err
	}

	for _, key := range keys {
		if knownKeys[key] {
			continue
		}
		if strings.Contains(key, "/chunked/") {
			// Chunk objects are cleaned up by the coordinator itself
			// (spec §4.4 step 8); the orphan sweep only targets final
			// objects under uploads/.
			continue
		}
		if err := s.orphans.DeleteByPrefix(ctx, key); err != nil {
			logger.WarnCtx(ctx, "cleanup: orphan delete failed", "key", key, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}
