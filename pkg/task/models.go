// Package task implements the persistent, priority-ordered,
// dependency-aware work queue driving all asynchronous media processing
// (spec §3, §4.5, §4.6).
package task

import (
	"encoding/json"
	"time"
)

// NotifyChannel is the relational store's publish/subscribe channel the
// Task Repository notifies on every create, and the Task Scheduler listens
// on for wake-on-insert semantics (spec §6, §4.5).
const NotifyChannel = "mindia_new_task"

// MaxRetryBackoffSeconds bounds the exponential retry backoff (spec §6, §8).
const MaxRetryBackoffSeconds = 300

// Status is the task's lifecycle state (spec §3, §4.6).
type Status string

const (
	StatusPending   Status = "pending"
	StatusScheduled Status = "scheduled"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

func (s Status) terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// DependsOn is a list of task ids, stored as a JSON array column.
type DependsOn []string

// Task is one unit of asynchronous work (spec §3).
type Task struct {
	ID                 string          `gorm:"primaryKey;size:36" json:"id"`
	Tenant             string          `gorm:"not null;size:255;index:idx_task_tenant" json:"tenant"`
	Kind               string          `gorm:"not null;size:100;index" json:"kind"`
	Status             Status          `gorm:"not null;size:20;index:idx_task_claim" json:"status"`
	Priority           int             `gorm:"not null;index:idx_task_claim" json:"priority"`
	Payload            json.RawMessage `gorm:"type:text" json:"payload,omitempty"`
	Result             json.RawMessage `gorm:"type:text" json:"result,omitempty"`
	ScheduledAt        time.Time       `gorm:"not null;index:idx_task_claim" json:"scheduled_at"`
	StartedAt          *time.Time      `json:"started_at,omitempty"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
	RetryCount         int             `gorm:"not null" json:"retry_count"`
	MaxRetries         int             `gorm:"not null" json:"max_retries"`
	TimeoutSeconds     *int            `json:"timeout_seconds,omitempty"`
	DependsOnJSON      string          `gorm:"column:depends_on;type:text" json:"-"`
	CancelOnDepFailure bool            `gorm:"not null" json:"cancel_on_dep_failure"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Task) TableName() string { return "tasks" }

// GetDependsOn decodes the persisted dependency list.
func (t *Task) GetDependsOn() DependsOn {
	if t.DependsOnJSON == "" {
		return nil
	}
	var ids DependsOn
	_ = json.Unmarshal([]byte(t.DependsOnJSON), &ids)
	return ids
}

// SetDependsOn encodes ids into the persisted dependency column.
func (t *Task) SetDependsOn(ids DependsOn) {
	if len(ids) == 0 {
		t.DependsOnJSON = ""
		return
	}
	data, _ := json.Marshal(ids)
	t.DependsOnJSON = string(data)
}

// AllModels returns every model internal/dbstore.New must AutoMigrate for
// this package's repository to function.
func AllModels() []interface{} {
	return []interface{}{&Task{}}
}

// CreateParams carries the fields callers supply when submitting a task
// (spec §6 Task API's submit operation).
type CreateParams struct {
	Tenant             string
	Kind               string
	Payload            json.RawMessage
	Priority           int
	ScheduledAt        *time.Time
	DependsOn          DependsOn
	CancelOnDepFailure bool
	MaxRetries         int
	TimeoutSeconds     *int
}

// ComputeRetryBackoffSeconds implements spec §4.6/§8's backoff formula:
// min(2^retry_count, MaxRetryBackoffSeconds). Carried as a standalone
// exported function (rather than inlined in the scheduler) per
// SPEC_FULL.md §C, with the original's boundary values as its test cases.
func ComputeRetryBackoffSeconds(retryCount int) int {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount >= 9 {
		// 2^9 = 512 already exceeds the 300s cap; avoid overflowing int
		// for large retry counts by short-circuiting once the exponent
		// alone guarantees the cap applies.
		return MaxRetryBackoffSeconds
	}
	backoff := 1 << uint(retryCount)
	if backoff > MaxRetryBackoffSeconds {
		return MaxRetryBackoffSeconds
	}
	return backoff
}
