package models

import (
	"time"

	"github.com/google/uuid"
)

// RunKind identifies what a sync run did
type RunKind string

const (
	RunKindSync   RunKind = "sync"
	RunKindImport RunKind = "import"
)

// RunStatus represents the lifecycle of a sync run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// SyncRun is the history row of one sync batch or import call
type SyncRun struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Kind   RunKind   `gorm:"type:varchar(20);not null;index:idx_sync_runs_kind" json:"kind"`
	Status RunStatus `gorm:"type:varchar(20);not null;default:'running'" json:"status"`

	// Batch window, zero for imports
	Offset int `gorm:"column:batch_offset" json:"offset"`
	Limit  int `gorm:"column:batch_limit" json:"limit"`

	TotalItems   int    `json:"totalItems"`
	SuccessCount int    `json:"successCount"`
	FailedCount  int    `json:"failedCount"`
	ErrorMessage string `gorm:"type:text" json:"errorMessage,omitempty"`

	StartedAt   time.Time  `gorm:"not null;index:idx_sync_runs_started" json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name for SyncRun
func (SyncRun) TableName() string {
	return "sync_runs"
}
