// Package scheduler implements the Task Scheduler / Worker Pool: the
// long-running supervisor that drives task execution by combining poll
// and wake-on-notify, enforcing per-worker concurrency, rate limits,
// capacity, timeouts, retries, dependency completion, and
// cancel-on-dep-failure propagation (spec §2, §4.6).
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jeremybastin1207/mindia/internal/logger"
	"github.com/jeremybastin1207/mindia/internal/merrors"
	"github.com/jeremybastin1207/mindia/internal/telemetry"
	"github.com/jeremybastin1207/mindia/pkg/capacity"
	"github.com/jeremybastin1207/mindia/pkg/ratelimit"
	"github.com/jeremybastin1207/mindia/pkg/task"
	"github.com/jeremybastin1207/mindia/pkg/webhook"
)

// Config configures a Scheduler's worker pool, polling cadence, and the
// stale-running reaper (spec §4.6, §4.8).
type Config struct {
	WorkerCount           int
	PollInterval          time.Duration
	DefaultTimeoutSeconds int
	StaleReapInterval     time.Duration
	StaleReapGraceSeconds int
	// PostgresDSN, when non-empty, enables the LISTEN/NOTIFY wake path
	// (Postgres-only per SPEC_FULL.md §E.4). Left empty for SQLite
	// deployments, which run poll-only.
	PostgresDSN string
}

func (c Config) normalized() Config {
	if c.WorkerCount < 1 {
		c.WorkerCount = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.DefaultTimeoutSeconds <= 0 {
		c.DefaultTimeoutSeconds = 300
	}
	if c.StaleReapInterval <= 0 {
		c.StaleReapInterval = time.Minute
	}
	if c.StaleReapGraceSeconds <= 0 {
		c.StaleReapGraceSeconds = 30
	}
	return c
}

// Scheduler is the single long-lived supervisor described by spec §4.6.
type Scheduler struct {
	cfg     Config
	repo    *task.Repository
	holder  *task.ContextHolder
	limiter *ratelimit.Limiter
	gate    capacity.Gate
	emitter webhook.Emitter

	permits  chan struct{}
	notifier *pqNotifier

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	wg           sync.WaitGroup
}

// New constructs a Scheduler. holder is the "weak reference" to the
// handler context (SPEC_FULL.md §E.3); gate and limiter may be
// capacity.AlwaysAccept{} / a no-op-acquiring ratelimit.Limiter when those
// collaborators are disabled by config.
func New(cfg Config, repo *task.Repository, holder *task.ContextHolder, limiter *ratelimit.Limiter, gate capacity.Gate, emitter webhook.Emitter) *Scheduler {
	cfg = cfg.normalized()
	if gate == nil {
		gate = capacity.AlwaysAccept{}
	}
	if emitter == nil {
		emitter = webhook.NullEmitter{}
	}
	return &Scheduler{
		cfg:        cfg,
		repo:       repo,
		holder:     holder,
		limiter:    limiter,
		gate:       gate,
		emitter:    emitter,
		permits:    make(chan struct{}, cfg.WorkerCount),
		shutdownCh: make(chan struct{}),
	}
}

// Start launches the supervisor's main loop and the stale-reaper loop as
// background goroutines, then returns immediately. Call Shutdown to stop
// claiming; in-flight workers drain on their own (spec §4.6 "Shutdown").
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.PostgresDSN != "" {
		n, err := newPQNotifier(s.cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("scheduler: start listener: %w", err)
		}
		s.notifier = n
	}

	s.wg.Add(2)
	go s.mainLoop(ctx)
	go s.reapLoop(ctx)
	return nil
}

// Shutdown signals the supervisor to stop claiming. It returns
// immediately; in-flight workers drain naturally (spec §4.6). Safe to
// call more than once.
func (s *Scheduler) Shutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdownCh)
		s.holder.Drop()
		if s.notifier != nil {
			s.notifier.Close()
		}
	})
}

// Wait blocks until the supervisor's background loops have returned.
func (s *Scheduler) Wait() { s.wg.Wait() }

func (s *Scheduler) mainLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	var notifyCh <-chan struct{}
	if s.notifier != nil {
		notifyCh = s.notifier.wake
	}

	for {
		select {
		case <-s.shutdownCh:
			return
		case <-ctx.Done():
			return
		case <-notifyCh:
			s.tryClaimOne(ctx)
		case <-ticker.C:
			s.tryClaimOne(ctx)
		}
	}
}

func (s *Scheduler) reapLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.StaleReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdownCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.repo.ReapStaleRunning(ctx, s.cfg.StaleReapGraceSeconds, s.cfg.DefaultTimeoutSeconds)
			if err != nil {
				logger.ErrorCtx(ctx, "scheduler: stale reap failed", "error", err)
				continue
			}
			if n > 0 {
				logger.InfoCtx(ctx, "scheduler: reclaimed stale running tasks", "count", n)
			}
		}
	}
}

// tryClaimOne implements spec §4.6's try-claim-one: capacity gate, then a
// non-blocking worker-permit acquisition, then claim-next, handing any
// claimed task to a worker goroutine that holds the permit for the
// duration of execution.
func (s *Scheduler) tryClaimOne(ctx context.Context) {
	if !s.gate.CanAcceptTask() {
		return
	}

	select {
	case s.permits <- struct{}{}:
	default:
		return // no worker permit available
	}

	t, err := s.repo.ClaimNext(ctx)
	if err != nil {
		<-s.permits
		logger.ErrorCtx(ctx, "scheduler: claim failed", "error", err)
		return
	}
	if t == nil {
		<-s.permits
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { <-s.permits }()
		s.runTask(ctx, t)
	}()
}

// runTask executes the full worker-side lifecycle for one claimed task
// (spec §4.6 "Worker execution for a task T").
func (s *Scheduler) runTask(ctx context.Context, t *task.Task) {
	ctx, span := telemetry.StartSpan(ctx, "scheduler.run_task")
	defer span.End()
	telemetry.SetAttributes(ctx, telemetry.TaskID(t.ID), telemetry.TaskKind(t.Kind), telemetry.TaskTenant(t.Tenant))

	if handled := s.handleDependencies(ctx, t); handled {
		return
	}

	if err := s.limiter.Acquire(ctx, t.Kind); err != nil {
		// Context cancelled while waiting on a token (shutdown); requeue
		// by leaving the task Running is wrong, so revert to Pending for
		// the next worker/process to pick up.
		if setErr := s.repo.UpdateStatus(ctx, t.ID, task.StatusPending); setErr != nil {
			logger.ErrorCtx(ctx, "scheduler: requeue after limiter cancel failed", "task_id", t.ID, "error", setErr)
		}
		return
	}

	hc, ok := s.holder.Get()
	if !ok {
		s.finishWithError(ctx, t, merrors.New(merrors.Unrecoverable, "scheduler.dispatch", fmt.Errorf("handler context unavailable: scheduler shutting down")))
		return
	}

	handler, ok := hc.Registry.Lookup(t.Kind)
	if !ok {
		s.finishWithError(ctx, t, merrors.New(merrors.Unrecoverable, "scheduler.dispatch", fmt.Errorf("no handler registered for kind %q", t.Kind)))
		return
	}

	timeout := s.cfg.DefaultTimeoutSeconds
	if t.TimeoutSeconds != nil {
		timeout = *t.TimeoutSeconds
	}
	dispatchCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	result, err := handler.Dispatch(dispatchCtx, t)
	if err != nil {
		if dispatchCtx.Err() == context.DeadlineExceeded {
			// Deadline elapse is a recoverable error, same retry rules
			// (spec §4.6 step 9).
			err = merrors.New(merrors.Timeout, "scheduler.dispatch", dispatchCtx.Err())
		}
		s.finishWithError(ctx, t, err)
		return
	}

	if err := s.repo.MarkCompleted(ctx, t.ID, result); err != nil {
		logger.ErrorCtx(ctx, "scheduler: mark completed failed", "task_id", t.ID, "error", err)
		return
	}
	s.emitter.TriggerEvent(ctx, t.Tenant, webhook.EventWorkflowCompleted, map[string]any{"task_id": t.ID, "kind": t.Kind}, "scheduler")
}

// handleDependencies implements spec §4.6 step 1. Returns true if the
// task was terminally handled here (cancelled or re-queued) and the
// caller should not proceed to dispatch.
func (s *Scheduler) handleDependencies(ctx context.Context, t *task.Task) bool {
	deps := t.GetDependsOn()
	if len(deps) == 0 {
		return false
	}

	allCompleted, err := s.repo.CheckDepsCompleted(ctx, deps)
	if err != nil {
		logger.ErrorCtx(ctx, "scheduler: dep check failed", "task_id", t.ID, "error", err)
		_ = s.repo.UpdateStatus(ctx, t.ID, task.StatusPending)
		return true
	}
	if allCompleted {
		return false
	}

	if t.CancelOnDepFailure {
		anyFailed, err := s.repo.CheckAnyDepFailedOrCancelled(ctx, deps)
		if err != nil {
			logger.ErrorCtx(ctx, "scheduler: dep-failure check failed", "task_id", t.ID, "error", err)
			_ = s.repo.UpdateStatus(ctx, t.ID, task.StatusPending)
			return true
		}
		if anyFailed {
			if err := s.repo.UpdateStatus(ctx, t.ID, task.StatusCancelled); err != nil {
				logger.ErrorCtx(ctx, "scheduler: cancel-on-dep-failure failed", "task_id", t.ID, "error", err)
			}
			s.emitter.TriggerEvent(ctx, t.Tenant, webhook.EventWorkflowFailed, map[string]any{"task_id": t.ID, "reason": "dependency failed"}, "scheduler")
			return true
		}
	}

	// Deps not all complete yet, and not cancelling: re-queue for later.
	if err := s.repo.UpdateStatus(ctx, t.ID, task.StatusPending); err != nil {
		logger.ErrorCtx(ctx, "scheduler: re-queue pending-deps task failed", "task_id", t.ID, "error", err)
	}
	return true
}

// finishWithError implements spec §4.6 steps 6-9: unrecoverable errors
// fail immediately; recoverable errors retry with exponential backoff
// until the retry budget is exhausted, then fail.
func (s *Scheduler) finishWithError(ctx context.Context, t *task.Task, err error) {
	unrecoverable := !merrors.Recoverable(err)

	if unrecoverable {
		result, _ := json.Marshal(map[string]any{"error": err.Error(), "unrecoverable": true})
		if markErr := s.repo.MarkFailed(ctx, t.ID, result); markErr != nil {
			logger.ErrorCtx(ctx, "scheduler: mark failed (unrecoverable) failed", "task_id", t.ID, "error", markErr)
		}
		s.emitter.TriggerEvent(ctx, t.Tenant, webhook.EventWorkflowFailed, map[string]any{"task_id": t.ID, "error": err.Error()}, "scheduler")
		return
	}

	if t.RetryCount < t.MaxRetries {
		backoff := task.ComputeRetryBackoffSeconds(t.RetryCount)
		retryAt := time.Now().Add(time.Duration(backoff) * time.Second)
		if retryErr := s.repo.IncrementRetry(ctx, t.ID, retryAt); retryErr != nil {
			logger.ErrorCtx(ctx, "scheduler: increment retry failed", "task_id", t.ID, "error", retryErr)
		}
		return
	}

	result, _ := json.Marshal(map[string]any{"error": err.Error(), "unrecoverable": false})
	if markErr := s.repo.MarkFailed(ctx, t.ID, result); markErr != nil {
		logger.ErrorCtx(ctx, "scheduler: mark failed (retries exhausted) failed", "task_id", t.ID, "error", markErr)
	}
	s.emitter.TriggerEvent(ctx, t.Tenant, webhook.EventWorkflowFailed, map[string]any{"task_id": t.ID, "error": err.Error()}, "scheduler")
}
