package task

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jeremybastin1207/mindia/internal/dbstore"
)

// Repository is the Task Repository (spec §4.5): persists tasks, offers
// the atomic claim-next-ready-task operation, and the stale-task reaper.
type Repository struct {
	db         *gorm.DB
	isPostgres bool
}

// NewRepository constructs a Repository over an already-migrated GORM
// connection. isPostgres selects between the Postgres FOR UPDATE SKIP
// LOCKED claim path and the SQLite serialized-transaction fallback
// (SPEC_FULL.md §E.4).
func NewRepository(store *dbstore.GORMStore) *Repository {
	return &Repository{db: store.DB(), isPostgres: store.IsPostgres()}
}

// Create inserts a new task and emits a best-effort NOTIFY on
// NotifyChannel so workers wake without waiting for the next poll tick
// (spec §4.5). The notify failing never fails the create: pollers
// guarantee eventual progress.
func (r *Repository) Create(ctx context.Context, p CreateParams) (*Task, error) {
	if p.Kind == "" {
		return nil, errInvalidInput("task.Create", fmt.Errorf("kind is required"))
	}
	scheduledAt := time.Now()
	if p.ScheduledAt != nil {
		scheduledAt = *p.ScheduledAt
	}
	maxRetries := p.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}

	t := &Task{
		ID:                 uuid.NewString(),
		Tenant:             p.Tenant,
		Kind:               p.Kind,
		Status:             StatusPending,
		Priority:           p.Priority,
		Payload:            p.Payload,
		ScheduledAt:        scheduledAt,
		MaxRetries:         maxRetries,
		TimeoutSeconds:     p.TimeoutSeconds,
		CancelOnDepFailure: p.CancelOnDepFailure,
	}
	t.SetDependsOn(p.DependsOn)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(t).Error; err != nil {
			return errDatabase("task.Create", err)
		}
		if r.isPostgres {
			// Best-effort: a notify failure never aborts the create.
			tx.Exec("SELECT pg_notify(?, ?)", NotifyChannel, t.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Get loads a tenant-scoped task, or NotFound if absent.
func (r *Repository) Get(ctx context.Context, tenant, id string) (*Task, error) {
	var t Task
	err := r.db.WithContext(ctx).Where("id = ? AND tenant = ?", id, tenant).First(&t).Error
	if err != nil {
		return nil, errNotFound("task.Get", dbstore.ConvertNotFoundError(err, fmt.Errorf("task %s not found", id)))
	}
	return &t, nil
}

// ListFilter narrows List's result set; zero-valued fields are unfiltered.
type ListFilter struct {
	Kind     string
	Status   Status
	Limit    int
	Offset   int
}

// List returns tenant-scoped tasks matching filter, newest-created first.
func (r *Repository) List(ctx context.Context, tenant string, filter ListFilter) ([]*Task, error) {
	q := r.db.WithContext(ctx).Where("tenant = ?", tenant)
	if filter.Kind != "" {
		q = q.Where("kind = ?", filter.Kind)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	q = q.Order("created_at DESC")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	var tasks []*Task
	if err := q.Find(&tasks).Error; err != nil {
		return nil, errDatabase("task.List", err)
	}
	return tasks, nil
}

// Stats summarizes a tenant's tasks by status, for the Task API's stats
// operation (spec §6).
type Stats struct {
	Pending   int64
	Scheduled int64
	Running   int64
	Completed int64
	Failed    int64
	Cancelled int64
}

// Stats computes per-status counts for a tenant.
func (r *Repository) Stats(ctx context.Context, tenant string) (*Stats, error) {
	var rows []struct {
		Status Status
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&Task{}).
		Select("status, count(*) as count").
		Where("tenant = ?", tenant).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, errDatabase("task.Stats", err)
	}
	s := &Stats{}
	for _, row := range rows {
		switch row.Status {
		case StatusPending:
			s.Pending = row.Count
		case StatusScheduled:
			s.Scheduled = row.Count
		case StatusRunning:
			s.Running = row.Count
		case StatusCompleted:
			s.Completed = row.Count
		case StatusFailed:
			s.Failed = row.Count
		case StatusCancelled:
			s.Cancelled = row.Count
		}
	}
	return s, nil
}

// claimableStatuses is the set of statuses ClaimNext considers.
var claimableStatuses = []Status{StatusPending, StatusScheduled}

// ClaimNext atomically dequeues the highest-priority, earliest-scheduled
// ready task across all tenants (workers are tenant-agnostic; handlers
// enforce tenant checks, spec §4.5). Returns (nil, nil) when no task is
// ready. On Postgres this uses SELECT ... FOR UPDATE SKIP LOCKED; on
// SQLite it relies on single-writer transaction serialization
// (SPEC_FULL.md §E.4).
func (r *Repository) ClaimNext(ctx context.Context) (*Task, error) {
	var claimed *Task
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var t Task
		q := tx.Where("status IN ? AND scheduled_at <= ?", claimableStatuses, time.Now()).
			Order("priority DESC, scheduled_at ASC").
			Limit(1)
		if r.isPostgres {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		err := q.First(&t).Error
		if err != nil {
			if dbstore.ConvertNotFoundError(err, nil) == nil {
				return nil // no ready task
			}
			return errDatabase("task.ClaimNext", err)
		}

		now := time.Now()
		result := tx.Model(&Task{}).
			Where("id = ? AND status IN ?", t.ID, claimableStatuses).
			Updates(map[string]any{"status": StatusRunning, "started_at": now})
		if result.Error != nil {
			return errDatabase("task.ClaimNext", result.Error)
		}
		if result.RowsAffected == 0 {
			// Another claimer (SQLite: impossible under serialization;
			// Postgres: guarded by SKIP LOCKED already) won the race.
			return nil
		}
		t.Status = StatusRunning
		t.StartedAt = &now
		claimed = &t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// CheckDepsCompleted returns true iff every listed task is Completed.
func (r *Repository) CheckDepsCompleted(ctx context.Context, ids []string) (bool, error) {
	if len(ids) == 0 {
		return true, nil
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&Task{}).
		Where("id IN ? AND status = ?", ids, StatusCompleted).
		Count(&count).Error
	if err != nil {
		return false, errDatabase("task.CheckDepsCompleted", err)
	}
	return int(count) == len(ids), nil
}

// CheckAnyDepFailedOrCancelled returns true iff any listed task is Failed
// or Cancelled.
func (r *Repository) CheckAnyDepFailedOrCancelled(ctx context.Context, ids []string) (bool, error) {
	if len(ids) == 0 {
		return false, nil
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&Task{}).
		Where("id IN ? AND status IN ?", ids, []Status{StatusFailed, StatusCancelled}).
		Count(&count).Error
	if err != nil {
		return false, errDatabase("task.CheckAnyDepFailedOrCancelled", err)
	}
	return count > 0, nil
}

// MarkCompleted transitions a Running task to Completed, recording result
// and completed-at.
func (r *Repository) MarkCompleted(ctx context.Context, id string, result []byte) error {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&Task{}).
		Where("id = ? AND status = ?", id, StatusRunning).
		Updates(map[string]any{"status": StatusCompleted, "result": string(result), "completed_at": now})
	if res.Error != nil {
		return errDatabase("task.MarkCompleted", res.Error)
	}
	if res.RowsAffected == 0 {
		return errConflict("task.MarkCompleted", fmt.Errorf("task %s is not Running", id))
	}
	return nil
}

// MarkFailed transitions a Running task to Failed, recording result
// (typically an error summary) and completed-at.
func (r *Repository) MarkFailed(ctx context.Context, id string, result []byte) error {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&Task{}).
		Where("id = ? AND status = ?", id, StatusRunning).
		Updates(map[string]any{"status": StatusFailed, "result": string(result), "completed_at": now})
	if res.Error != nil {
		return errDatabase("task.MarkFailed", res.Error)
	}
	if res.RowsAffected == 0 {
		return errConflict("task.MarkFailed", fmt.Errorf("task %s is not Running", id))
	}
	return nil
}

// IncrementRetry moves a Running task to Scheduled for another attempt:
// clears started-at, bumps retry-count, and sets scheduled-at to the
// backoff-delayed retry time (spec §4.5, §4.6).
func (r *Repository) IncrementRetry(ctx context.Context, id string, retryAt time.Time) error {
	res := r.db.WithContext(ctx).Model(&Task{}).
		Where("id = ? AND status = ?", id, StatusRunning).
		Updates(map[string]any{
			"status":       StatusScheduled,
			"started_at":   nil,
			"retry_count":  gorm.Expr("retry_count + 1"),
			"scheduled_at": retryAt,
		})
	if res.Error != nil {
		return errDatabase("task.IncrementRetry", res.Error)
	}
	if res.RowsAffected == 0 {
		return errConflict("task.IncrementRetry", fmt.Errorf("task %s is not Running", id))
	}
	return nil
}

// UpdateStatus sets a task's status unconditionally — used by the
// dependency-cancellation path (Running→Cancelled) and the re-queue path
// (Running→Pending when deps aren't all complete yet).
func (r *Repository) UpdateStatus(ctx context.Context, id string, status Status) error {
	updates := map[string]any{"status": status}
	if status.terminal() {
		updates["completed_at"] = time.Now()
	}
	if err := r.db.WithContext(ctx).Model(&Task{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return errDatabase("task.UpdateStatus", err)
	}
	return nil
}

// CancelTask cancels a task, only from Pending/Scheduled (spec §4.5, §7).
func (r *Repository) CancelTask(ctx context.Context, tenant, id string) error {
	res := r.db.WithContext(ctx).Model(&Task{}).
		Where("id = ? AND tenant = ? AND status IN ?", id, tenant, claimableStatuses).
		Updates(map[string]any{"status": StatusCancelled, "completed_at": time.Now()})
	if res.Error != nil {
		return errDatabase("task.CancelTask", res.Error)
	}
	if res.RowsAffected == 0 {
		return errConflict("task.CancelTask", fmt.Errorf("task %s is not Pending/Scheduled", id))
	}
	return nil
}

// RetryTask re-queues a Failed task, zeroing its counters (spec §4.5).
func (r *Repository) RetryTask(ctx context.Context, tenant, id string) error {
	res := r.db.WithContext(ctx).Model(&Task{}).
		Where("id = ? AND tenant = ? AND status = ?", id, tenant, StatusFailed).
		Updates(map[string]any{
			"status":       StatusPending,
			"retry_count":  0,
			"started_at":   nil,
			"completed_at": nil,
			"scheduled_at": time.Now(),
		})
	if res.Error != nil {
		return errDatabase("task.RetryTask", res.Error)
	}
	if res.RowsAffected == 0 {
		return errConflict("task.RetryTask", fmt.Errorf("task %s is not Failed", id))
	}
	return nil
}

// ReapStaleRunning finds Running tasks whose deadline (timeout-seconds +
// grace) has elapsed and reverts them to Pending (if retry budget
// remains) or Failed — repairing the "worker died holding a task" case
// (spec §4.5, §4.8).
func (r *Repository) ReapStaleRunning(ctx context.Context, graceSeconds int, defaultTimeoutSeconds int) (reclaimed int, err error) {
	var stale []Task
	if err := r.db.WithContext(ctx).Where("status = ?", StatusRunning).Find(&stale).Error; err != nil {
		return 0, errDatabase("task.ReapStaleRunning", err)
	}

	now := time.Now()
	for _, t := range stale {
		if t.StartedAt == nil {
			continue
		}
		timeout := defaultTimeoutSeconds
		if t.TimeoutSeconds != nil {
			timeout = *t.TimeoutSeconds
		}
		deadline := t.StartedAt.Add(time.Duration(timeout+graceSeconds) * time.Second)
		if now.Before(deadline) {
			continue
		}

		var updates map[string]any
		if t.RetryCount < t.MaxRetries {
			updates = map[string]any{
				"status":      StatusPending,
				"started_at":  nil,
				"retry_count": gorm.Expr("retry_count + 1"),
			}
		} else {
			updates = map[string]any{
				"status":       StatusFailed,
				"completed_at": now,
			}
		}
		res := r.db.WithContext(ctx).Model(&Task{}).Where("id = ? AND status = ?", t.ID, StatusRunning).Updates(updates)
		if res.Error != nil {
			return reclaimed, errDatabase("task.ReapStaleRunning", res.Error)
		}
		if res.RowsAffected > 0 {
			reclaimed++
		}
	}
	return reclaimed, nil
}

// DeleteOldFinished removes terminal rows older than retentionDays,
// bounding unbounded growth of the finished-task table (spec §4.5, §4.9).
func (r *Repository) DeleteOldFinished(ctx context.Context, retentionDays int) (deleted int64, err error) {
	cutoff := time.Now().Add(-time.Duration(retentionDays) * 24 * time.Hour)
	res := r.db.WithContext(ctx).
		Where("status IN ? AND completed_at <= ?", []Status{StatusCompleted, StatusFailed, StatusCancelled}, cutoff).
		Delete(&Task{})
	if res.Error != nil {
		return 0, errDatabase("task.DeleteOldFinished", res.Error)
	}
	return res.RowsAffected, nil
}
