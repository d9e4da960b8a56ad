package services

import (
	"context"
	"time"

	"catalog-sync-service/internal/models"
	"catalog-sync-service/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	defaultRunListLimit = 20
	maxRunListLimit     = 100
)

// RunHistory records one row per sync batch or import and lists them back.
// Write failures are logged only; the history never fails a run.
type RunHistory struct {
	repo   *repository.SyncRunRepository
	logger *logrus.Entry
}

// NewRunHistory creates a new run history
func NewRunHistory(repo *repository.SyncRunRepository, logger *logrus.Entry) *RunHistory {
	return &RunHistory{
		repo:   repo,
		logger: logger.WithField("component", "run_history"),
	}
}

// Start creates the running row for id
func (h *RunHistory) Start(ctx context.Context, id uuid.UUID, kind models.RunKind, offset, limit int) {
	if h == nil {
		return
	}
	run := &models.SyncRun{
		ID:        id,
		Kind:      kind,
		Status:    models.RunStatusRunning,
		Offset:    offset,
		Limit:     limit,
		StartedAt: time.Now().UTC(),
	}
	if err := h.repo.CreateRun(ctx, run); err != nil {
		h.logger.WithError(err).WithField("run_id", id).Warn("Failed to record run start")
	}
}

// Finish marks the run completed, or failed when runErr is set
func (h *RunHistory) Finish(ctx context.Context, id uuid.UUID, summary models.Summary, runErr error) {
	if h == nil {
		return
	}
	status, message := models.RunStatusCompleted, ""
	if runErr != nil {
		status, message = models.RunStatusFailed, runErr.Error()
	}
	if err := h.repo.CompleteRun(ctx, id, status, summary, message); err != nil {
		h.logger.WithError(err).WithField("run_id", id).Warn("Failed to record run result")
	}
}

// List returns runs newest first. limit defaults to 20 and is capped at 100.
func (h *RunHistory) List(ctx context.Context, opts repository.RunListOptions) ([]models.SyncRun, int64, error) {
	if opts.Offset < 0 {
		return nil, 0, &ValidationError{Field: "offset", Message: "must not be negative"}
	}
	switch kind := models.RunKind(opts.Kind); kind {
	case "", models.RunKindSync, models.RunKindImport:
	default:
		return nil, 0, &ValidationError{Field: "kind", Message: "must be sync or import"}
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultRunListLimit
	}
	if opts.Limit > maxRunListLimit {
		opts.Limit = maxRunListLimit
	}
	return h.repo.ListRuns(ctx, opts)
}
