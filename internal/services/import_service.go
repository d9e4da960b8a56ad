package services

import (
	"context"
	"strings"
	"time"

	"catalog-sync-service/internal/clients"
	"catalog-sync-service/internal/config"
	"catalog-sync-service/internal/models"
	"catalog-sync-service/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	importedCategory = "Imported"
	importedName     = "Imported Item"
)

// ImportService pulls remote ITEM objects into the local store
type ImportService struct {
	itemRepo     *repository.ItemRepository
	settingsRepo *repository.SettingsRepository
	credentials  *CredentialService
	lock         RunLock
	runs         *RunHistory
	newClient    ClientFactory
	config       *config.Config
	logger       *logrus.Entry
}

// NewImportService creates a new import service
func NewImportService(
	itemRepo *repository.ItemRepository,
	settingsRepo *repository.SettingsRepository,
	credentials *CredentialService,
	lock RunLock,
	runs *RunHistory,
	cfg *config.Config,
	logger *logrus.Entry,
) *ImportService {
	return &ImportService{
		itemRepo:     itemRepo,
		settingsRepo: settingsRepo,
		credentials:  credentials,
		lock:         lock,
		runs:         runs,
		newClient:    NewClientFactory(cfg),
		config:       cfg,
		logger:       logger.WithField("component", "import"),
	}
}

// SetClientFactory replaces how remote clients are built
func (s *ImportService) SetClientFactory(factory ClientFactory) {
	s.newClient = factory
}

// Import lists every remote item and upserts it locally by sku. Existing rows
// keep their category and stock; only name, description and price change.
func (s *ImportService) Import(ctx context.Context) (*models.ImportBatchResult, error) {
	release, err := s.lock.Acquire(ctx, RunLockName, s.config.SyncLockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx = context.WithoutCancel(ctx)
	runID := uuid.New()
	s.runs.Start(ctx, runID, models.RunKindImport, 0, 0)

	result, err := s.importAll(ctx)
	var summary models.Summary
	if result != nil {
		summary = result.Summary
	}
	s.runs.Finish(ctx, runID, summary, err)
	return result, err
}

func (s *ImportService) importAll(ctx context.Context) (*models.ImportBatchResult, error) {
	settings, err := s.credentials.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	client := s.newClient(settings)

	objects, err := s.listItems(ctx, client)
	if err != nil {
		return nil, &RemoteError{Op: "list catalog", Err: err}
	}

	results := make([]models.ImportResult, 0, len(objects))
	for i := range objects {
		item := ConvertToLocal(&objects[i])
		if err := s.itemRepo.UpsertImported(ctx, item); err != nil {
			s.logger.WithError(err).WithField("object_id", objects[i].ID).Warn("Failed to import item")
			results = append(results, models.ImportResult{
				ObjectID: objects[i].ID,
				Status:   models.StatusFailed,
				Error:    err.Error(),
			})
			continue
		}
		results = append(results, models.ImportResult{SKU: item.SKU, Status: models.StatusSuccess})
	}

	if err := s.settingsRepo.SetLastSync(ctx, time.Now()); err != nil {
		s.logger.WithError(err).Warn("Failed to persist last_sync")
	}

	summary := models.SummarizeImport(results)
	s.logger.WithFields(logrus.Fields{
		"environment": settings.Environment,
		"total":       summary.Total,
		"success":     summary.Success,
		"failed":      summary.Failed,
	}).Info("Catalog import completed")

	return &models.ImportBatchResult{
		Success: true,
		Results: results,
		Summary: summary,
	}, nil
}

// listItems follows the listing cursor until it is exhausted
func (s *ImportService) listItems(ctx context.Context, client clients.CatalogClient) ([]clients.CatalogObject, error) {
	var objects []clients.CatalogObject
	seen := map[string]bool{}
	cursor := ""
	for {
		page, err := client.ListCatalog(ctx, []clients.ObjectType{clients.ObjectTypeItem}, cursor)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Objects {
			if obj.Type == clients.ObjectTypeItem && !obj.IsDeleted {
				objects = append(objects, obj)
			}
		}
		if page.Cursor == "" || seen[page.Cursor] {
			return objects, nil
		}
		seen[page.Cursor] = true
		cursor = page.Cursor
	}
}

// ConvertToLocal maps a remote ITEM onto a new local row
func ConvertToLocal(obj *clients.CatalogObject) *models.LocalItem {
	item := &models.LocalItem{
		Name:          importedName,
		Category:      importedCategory,
		StockQuantity: 0,
	}
	if obj.ItemData != nil {
		if name := strings.TrimSpace(obj.ItemData.Name); name != "" {
			item.Name = name
		}
		item.Description = obj.ItemData.Description
	}

	if v := obj.FirstVariation(); v != nil && v.ItemVariationData != nil {
		item.SKU = v.ItemVariationData.SKU
		if v.ItemVariationData.PriceMoney != nil {
			item.RetailPrice = FromMinorUnits(v.ItemVariationData.PriceMoney.Amount)
		}
	}
	if item.SKU == "" {
		id := obj.ID
		if len(id) > 8 {
			id = id[len(id)-8:]
		}
		item.SKU = "SQ-" + id
	}
	return item
}
