package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"catalog-sync-service/internal/clients"
	"catalog-sync-service/internal/config"
	"catalog-sync-service/internal/models"
	"catalog-sync-service/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// maxStoredSyncErrors bounds the sync_errors setting
const maxStoredSyncErrors = 50

// SyncService pushes pages of local items to the remote catalog
type SyncService struct {
	itemRepo     *repository.ItemRepository
	settingsRepo *repository.SettingsRepository
	credentials  *CredentialService
	lock         RunLock
	runs         *RunHistory
	newClient    ClientFactory
	categories   *CategoryReconciler
	upserter     *ItemUpserter
	images       *ImageSyncer
	inventory    *InventoryPusher
	diagnostics  *Diagnostics
	config       *config.Config
	logger       *logrus.Entry
}

// NewSyncService creates a new sync service. Image files and the diagnostics
// log are accessed through fs.
func NewSyncService(
	itemRepo *repository.ItemRepository,
	settingsRepo *repository.SettingsRepository,
	credentials *CredentialService,
	lock RunLock,
	runs *RunHistory,
	fs afero.Fs,
	cfg *config.Config,
	logger *logrus.Entry,
) *SyncService {
	return &SyncService{
		itemRepo:     itemRepo,
		settingsRepo: settingsRepo,
		credentials:  credentials,
		lock:         lock,
		runs:         runs,
		newClient:    NewClientFactory(cfg),
		categories:   NewCategoryReconciler(logger),
		upserter:     NewItemUpserter(clients.NewConflictRetrier(clients.DefaultRetryConfig()), logger),
		images:       NewImageSyncer(itemRepo, fs, cfg.ImageRoot, logger),
		inventory:    NewInventoryPusher(logger),
		diagnostics:  NewDiagnostics(fs, cfg.DiagnosticsLogPath, cfg.DiagnosticsEnabled, logger),
		config:       cfg,
		logger:       logger.WithField("component", "sync"),
	}
}

// SetClientFactory replaces how remote clients are built
func (s *SyncService) SetClientFactory(factory ClientFactory) {
	s.newClient = factory
}

// Sync pushes the page [offset, offset+limit) of items ordered by sku. Item
// failures are reported in the results; only settings resolution and local
// reads fail the whole call.
func (s *SyncService) Sync(ctx context.Context, offset, limit int) (*models.SyncBatchResult, error) {
	if offset < 0 {
		return nil, &ValidationError{Field: "offset", Message: "must not be negative"}
	}
	if limit <= 0 {
		return nil, &ValidationError{Field: "limit", Message: "must be positive"}
	}
	if s.config.SyncMaxLimit > 0 && limit > s.config.SyncMaxLimit {
		return nil, &ValidationError{Field: "limit", Message: fmt.Sprintf("must not exceed %d", s.config.SyncMaxLimit)}
	}

	release, err := s.lock.Acquire(ctx, RunLockName, s.config.SyncLockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	// A started batch runs to completion even if the caller goes away
	ctx = context.WithoutCancel(ctx)

	runID := uuid.New()
	s.runs.Start(ctx, runID, models.RunKindSync, offset, limit)

	result, err := s.syncBatch(ctx, runID.String(), offset, limit)
	var summary models.Summary
	if result != nil {
		summary = result.Summary
	}
	s.runs.Finish(ctx, runID, summary, err)
	return result, err
}

// syncBatch runs one locked batch under runID
func (s *SyncService) syncBatch(ctx context.Context, runID string, offset, limit int) (*models.SyncBatchResult, error) {
	settings, err := s.credentials.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	log := s.logger.WithFields(logrus.Fields{
		"run_id":      runID,
		"environment": settings.Environment,
		"offset":      offset,
		"limit":       limit,
	})
	client := s.newClient(settings)
	keys := NewIdempotencyKeys(runID)

	names, err := s.itemRepo.DistinctCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	categories := s.categories.Reconcile(ctx, client, keys, names)

	total, err := s.itemRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count items: %w", err)
	}
	page, err := s.itemRepo.ListPage(ctx, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load items: %w", err)
	}

	start := time.Now()
	results := make([]models.SyncResult, len(page))

	workers := s.config.SyncWorkers
	if workers <= 0 {
		workers = 1
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for i := range page {
		g.Go(func() error {
			results[i] = s.syncItem(ctx, client, settings, keys, page[i], categories)
			return nil
		})
	}
	_ = g.Wait()

	s.recordRun(ctx, results)
	s.diagnostics.RecordBatch(BatchRecord{
		Environment: settings.Environment,
		Offset:      offset,
		Limit:       limit,
		TotalItems:  int(total),
		Results:     results,
	})

	summary := models.SummarizeSync(results)
	summary.Total = int(total)

	log.WithFields(logrus.Fields{
		"success":  summary.Success,
		"failed":   summary.Failed,
		"total":    total,
		"duration": time.Since(start).String(),
	}).Info("Sync batch completed")

	return &models.SyncBatchResult{
		Success: true,
		Results: results,
		Pagination: models.Pagination{
			HasMore:    offset+len(page) < int(total),
			NextOffset: offset + limit,
			TotalItems: int(total),
		},
		Summary: summary,
	}, nil
}

// syncItem runs upsert, image and inventory for one item
func (s *SyncService) syncItem(ctx context.Context, client clients.CatalogClient, settings *SyncSettings, keys IdempotencyKeys, item models.LocalItem, categories CategoryMap) models.SyncResult {
	outcome, err := s.upserter.Upsert(ctx, client, settings, keys, item, categories)
	if err != nil {
		s.logger.WithError(err).WithField("sku", item.SKU).Warn("Item sync failed")
		return models.SyncResult{
			SKU:    item.SKU,
			Action: models.ActionFailed,
			Status: models.StatusFailed,
			Error:  err.Error(),
		}
	}

	imageAction := s.images.Sync(ctx, client, keys, item.SKU, outcome.ItemID, outcome.ImageIDs)
	inventoryAction := s.inventory.Push(ctx, client, settings, keys, item.SKU, outcome.VariationID, item.StockQuantity)

	return models.SyncResult{
		SKU:             item.SKU,
		Action:          outcome.Action,
		Status:          models.StatusSuccess,
		ItemID:          outcome.ItemID,
		VariationID:     outcome.VariationID,
		ImageAction:     imageAction,
		InventoryAction: inventoryAction,
	}
}

// recordRun persists the watermark and failed items. These writes do not
// fail the batch since the remote side has already been changed.
func (s *SyncService) recordRun(ctx context.Context, results []models.SyncResult) {
	now := time.Now()
	if err := s.settingsRepo.SetLastSync(ctx, now); err != nil {
		s.logger.WithError(err).Warn("Failed to persist last_sync")
	}

	var failures []models.SyncErrorEntry
	for _, r := range results {
		if !r.Succeeded() {
			failures = append(failures, models.SyncErrorEntry{SKU: r.SKU, Error: r.Error, Timestamp: now.UTC()})
		}
	}
	if err := s.settingsRepo.AppendSyncErrors(ctx, failures, maxStoredSyncErrors); err != nil {
		s.logger.WithError(err).Warn("Failed to persist sync errors")
	}
}

// Status reports the watermark, local item count, and recent failures
func (s *SyncService) Status(ctx context.Context) (*models.SyncStatusReport, error) {
	lastSync, err := s.settingsRepo.GetLastSync(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Ignoring unreadable last_sync")
		lastSync = nil
	}
	total, err := s.itemRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count items: %w", err)
	}
	syncErrors, err := s.settingsRepo.GetSyncErrors(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load sync errors: %w", err)
	}

	recent := syncErrors
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}

	return &models.SyncStatusReport{
		LastSync:     lastSync,
		TotalItems:   total,
		RecentErrors: recent,
		ErrorCount:   len(syncErrors),
	}, nil
}

// TestConnection lists the merchant's locations with the resolved credentials
func (s *SyncService) TestConnection(ctx context.Context) (*models.ConnectionTestResult, error) {
	settings, err := s.credentials.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	locations, err := s.newClient(settings).ListLocations(ctx)
	if err != nil {
		s.diagnostics.RecordConnectionTest(settings.Environment, false, err.Error())
		if errors.Is(err, clients.ErrUnauthorized) {
			s.logger.WithField("environment", settings.Environment).Warn("Connection test rejected credentials")
		}
		return nil, &RemoteError{Op: "list locations", Err: err}
	}
	s.diagnostics.RecordConnectionTest(settings.Environment, true, "Connection successful")

	result := &models.ConnectionTestResult{
		Success:       true,
		Environment:   settings.Environment,
		Locations:     make([]models.Location, 0, len(locations)),
		LocationCount: len(locations),
	}
	for _, l := range locations {
		result.Locations = append(result.Locations, models.Location{
			ID:       l.ID,
			Name:     l.Name,
			Status:   l.Status,
			Currency: l.Currency,
			Country:  l.Country,
		})
	}
	return result, nil
}
