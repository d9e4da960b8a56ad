package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"catalog-sync-service/internal/clients"
	"catalog-sync-service/internal/models"
	"catalog-sync-service/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSync_CreatesThenUpdatesWithoutDuplicates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addItem(t, "A-001", "Widget", "Tools", "12.99", 7)
	env.addImage(t, "A-001", "items/widget.jpg", true, true)

	first, err := env.syncService.Sync(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, first.Results, 1)

	created := first.Results[0]
	assert.Equal(t, models.ActionCreated, created.Action)
	assert.Equal(t, models.StatusSuccess, created.Status)
	assert.Equal(t, models.ImageUploaded, created.ImageAction)
	assert.Equal(t, models.InventorySynced, created.InventoryAction)
	assert.NotEmpty(t, created.ItemID)
	assert.NotEmpty(t, created.VariationID)

	categories := env.server.Categories()
	require.Len(t, categories, 1)
	assert.Equal(t, "Tools", categories[0].CategoryData.Name)

	items := env.server.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "Widget", items[0].ItemData.Name)
	assert.Equal(t, categories[0].ID, items[0].ItemData.CategoryID)
	variation := items[0].FirstVariation()
	require.NotNil(t, variation)
	assert.Equal(t, "A-001", variation.ItemVariationData.SKU)
	assert.Equal(t, "FIXED_PRICING", variation.ItemVariationData.PricingType)
	require.NotNil(t, variation.ItemVariationData.PriceMoney)
	assert.Equal(t, int64(1299), variation.ItemVariationData.PriceMoney.Amount)
	assert.Equal(t, "USD", variation.ItemVariationData.PriceMoney.Currency)

	qty, ok := env.server.InventoryCount(created.VariationID)
	require.True(t, ok)
	assert.Equal(t, "7", qty)
	assert.Equal(t, []string{"widget.jpg"}, env.server.Uploads())

	second, err := env.syncService.Sync(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, second.Results, 1)

	updated := second.Results[0]
	assert.Equal(t, models.ActionUpdated, updated.Action)
	assert.Equal(t, models.StatusSuccess, updated.Status)
	assert.Equal(t, models.ImageExistsRemote, updated.ImageAction)
	assert.Equal(t, created.ItemID, updated.ItemID)
	assert.Equal(t, created.VariationID, updated.VariationID)

	assert.Len(t, env.server.Items(), 1)
	assert.Len(t, env.server.Categories(), 1)
	assert.Len(t, env.server.Uploads(), 1)

	// the update must keep the image attached
	item, ok := env.server.Object(created.ItemID)
	require.True(t, ok)
	assert.Len(t, item.ItemData.ImageIDs, 1)
}

func TestSync_ItemFailuresDoNotAbortBatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addItem(t, "A-001", "Alpha", "", "1.00", 1)
	env.addItem(t, "B-002", "Bravo", "", "2.00", 2)
	env.addItem(t, "C-003", "Charlie", "", "3.00", 3)
	env.server.FailSKU("B-002", http.StatusInternalServerError)

	result, err := env.syncService.Sync(ctx, 0, 10)
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, result.Results, 3)

	assert.Equal(t, "A-001", result.Results[0].SKU)
	assert.Equal(t, models.StatusSuccess, result.Results[0].Status)

	failed := result.Results[1]
	assert.Equal(t, "B-002", failed.SKU)
	assert.Equal(t, models.ActionFailed, failed.Action)
	assert.Equal(t, models.StatusFailed, failed.Status)
	assert.Contains(t, failed.Error, "injected failure for B-002")
	assert.Empty(t, failed.ImageAction)
	assert.Empty(t, failed.InventoryAction)

	assert.Equal(t, "C-003", result.Results[2].SKU)
	assert.Equal(t, models.StatusSuccess, result.Results[2].Status)

	assert.Equal(t, models.Summary{Total: 3, Success: 2, Failed: 1}, result.Summary)
	assert.Len(t, env.server.Items(), 2)

	status, err := env.syncService.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, status.LastSync)
	assert.Equal(t, int64(3), status.TotalItems)
	assert.Equal(t, 1, status.ErrorCount)
	require.Len(t, status.RecentErrors, 1)
	assert.Equal(t, "B-002", status.RecentErrors[0].SKU)
}

func TestSync_TransportFailureIsPerItem(t *testing.T) {
	env := newTestEnv(t)
	env.addItem(t, "A-001", "Alpha", "", "1.00", 1)
	env.addItem(t, "B-002", "Bravo", "", "2.00", 2)
	env.server.FailSKU("A-001", 0)

	result, err := env.syncService.Sync(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, result.Results, 2)

	assert.Equal(t, models.StatusFailed, result.Results[0].Status)
	assert.NotEmpty(t, result.Results[0].Error)
	assert.Equal(t, models.StatusSuccess, result.Results[1].Status)
}

func TestSync_Pagination(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for i := 1; i <= 7; i++ {
		env.addItem(t, fmt.Sprintf("SKU-%02d", i), fmt.Sprintf("Item %d", i), "", "1.00", i)
	}

	page1, err := env.syncService.Sync(ctx, 0, 5)
	require.NoError(t, err)
	require.Len(t, page1.Results, 5)
	assert.Equal(t, "SKU-01", page1.Results[0].SKU)
	assert.Equal(t, "SKU-05", page1.Results[4].SKU)
	assert.Equal(t, models.Pagination{HasMore: true, NextOffset: 5, TotalItems: 7}, page1.Pagination)
	assert.Equal(t, 7, page1.Summary.Total)
	assert.Equal(t, 5, page1.Summary.Success)

	page2, err := env.syncService.Sync(ctx, page1.Pagination.NextOffset, 5)
	require.NoError(t, err)
	require.Len(t, page2.Results, 2)
	assert.Equal(t, "SKU-06", page2.Results[0].SKU)
	assert.Equal(t, models.Pagination{HasMore: false, NextOffset: 10, TotalItems: 7}, page2.Pagination)

	assert.Len(t, env.server.Items(), 7)
}

func TestSync_RejectsLimitAboveMax(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.SyncMaxLimit = 2
	env.addItem(t, "SKU-01", "Item", "", "1.00", 1)

	_, err := env.syncService.Sync(context.Background(), 0, 3)
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "limit", validationErr.Field)
	assert.Empty(t, env.server.Requests())

	_, total, err := env.runs.List(context.Background(), repository.RunListOptions{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestSync_PagingVisitsEveryItemOnce(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.SyncMaxLimit = 3
	for i := 1; i <= 7; i++ {
		env.addItem(t, fmt.Sprintf("SKU-%02d", i), "Item", "", "1.00", 1)
	}

	var synced []string
	offset, limit := 0, 3
	for {
		result, err := env.syncService.Sync(context.Background(), offset, limit)
		require.NoError(t, err)
		for _, r := range result.Results {
			synced = append(synced, r.SKU)
		}
		if !result.Pagination.HasMore {
			assert.GreaterOrEqual(t, result.Pagination.NextOffset, result.Pagination.TotalItems)
			break
		}
		offset += limit
	}

	assert.Equal(t, []string{"SKU-01", "SKU-02", "SKU-03", "SKU-04", "SKU-05", "SKU-06", "SKU-07"}, synced)
	assert.Len(t, env.server.Items(), 7)
}

func TestSync_CallerCancellationDoesNotStopBatch(t *testing.T) {
	env := newTestEnv(t)
	env.addItem(t, "A-1", "Alpha", "", "1.00", 1)
	env.addItem(t, "B-2", "Bravo", "", "2.00", 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	factory := NewClientFactory(env.cfg)
	env.syncService.SetClientFactory(func(settings *SyncSettings) clients.CatalogClient {
		// the caller goes away once the batch is underway
		cancel()
		return factory(settings)
	})

	result, err := env.syncService.Sync(ctx, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Summary.Success)
	assert.Len(t, env.server.Items(), 2)

	lastSync, err := env.settings.GetLastSync(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, lastSync)

	runs, _, err := env.runs.List(context.Background(), repository.RunListOptions{Kind: string(models.RunKindSync)})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunStatusCompleted, runs[0].Status)
	assert.Equal(t, 2, runs[0].SuccessCount)
}

func TestSync_RejectsInvalidPage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var validationErr *ValidationError
	_, err := env.syncService.Sync(ctx, -1, 5)
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "offset", validationErr.Field)

	_, err = env.syncService.Sync(ctx, 0, 0)
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "limit", validationErr.Field)

	assert.Empty(t, env.server.Requests())
}

func TestSync_DisabledIntegration(t *testing.T) {
	env := newTestEnv(t)
	env.addItem(t, "A-001", "Alpha", "", "1.00", 1)
	env.saveSettings(t, map[string]interface{}{"square_enabled": false})

	_, err := env.syncService.Sync(context.Background(), 0, 5)
	var configErr *ConfigError
	require.ErrorAs(t, err, &configErr)
	assert.Empty(t, env.server.Requests())
}

func TestSync_CategoryFailureSyncsWithoutCategory(t *testing.T) {
	env := newTestEnv(t)
	env.addItem(t, "A-001", "Hammer", "Tools", "9.50", 1)
	env.addItem(t, "B-002", "Cup", "Kitchen", "3.25", 1)
	env.server.FailCategory("Tools")

	result, err := env.syncService.Sync(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, result.Results, 2)
	assert.Equal(t, models.StatusSuccess, result.Results[0].Status)
	assert.Equal(t, models.StatusSuccess, result.Results[1].Status)

	categories := env.server.Categories()
	require.Len(t, categories, 1)
	assert.Equal(t, "Kitchen", categories[0].CategoryData.Name)

	hammer, ok := env.server.Object(result.Results[0].ItemID)
	require.True(t, ok)
	assert.Empty(t, hammer.ItemData.CategoryID)

	cup, ok := env.server.Object(result.Results[1].ItemID)
	require.True(t, ok)
	assert.Equal(t, categories[0].ID, cup.ItemData.CategoryID)
}

func TestSync_ReusesExistingRemoteCategory(t *testing.T) {
	env := newTestEnv(t)
	env.addItem(t, "A-001", "Hammer", "Tools", "9.50", 1)

	_, err := env.syncService.Sync(context.Background(), 0, 10)
	require.NoError(t, err)
	_, err = env.syncService.Sync(context.Background(), 0, 10)
	require.NoError(t, err)

	assert.Len(t, env.server.Categories(), 1)
}

func TestSync_RetriesVersionConflictOnce(t *testing.T) {
	env := newTestEnv(t)
	itemID, variationID := env.server.SeedItem("Old name", "A-001", 500)
	env.addItem(t, "A-001", "New name", "", "6.00", 4)
	env.server.ConflictOnUpdate(itemID, 1)

	result, err := env.syncService.Sync(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, result.Results, 1)

	r := result.Results[0]
	assert.Equal(t, models.StatusSuccess, r.Status)
	assert.Equal(t, models.ActionUpdated, r.Action)
	assert.Equal(t, itemID, r.ItemID)
	assert.Equal(t, variationID, r.VariationID)

	assert.Equal(t, 2, env.server.CountRequests(http.MethodPost, "/v2/catalog/object"))
	assert.Equal(t, 2, env.server.CountRequests(http.MethodPost, "/v2/catalog/search"))

	item, ok := env.server.Object(itemID)
	require.True(t, ok)
	assert.Equal(t, "New name", item.ItemData.Name)
	assert.Equal(t, int64(600), item.FirstVariation().ItemVariationData.PriceMoney.Amount)
}

func TestSync_PersistentConflictFailsItem(t *testing.T) {
	env := newTestEnv(t)
	itemID, _ := env.server.SeedItem("Old name", "A-001", 500)
	env.addItem(t, "A-001", "New name", "", "6.00", 4)
	env.server.ConflictOnUpdate(itemID, 2)

	result, err := env.syncService.Sync(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.Equal(t, models.StatusFailed, result.Results[0].Status)
	assert.Contains(t, result.Results[0].Error, "VERSION_MISMATCH")

	item, _ := env.server.Object(itemID)
	assert.Equal(t, "Old name", item.ItemData.Name)
}

func TestSync_PriceSyncDisabled(t *testing.T) {
	env := newTestEnv(t)
	env.saveSettings(t, map[string]interface{}{"price_sync_enabled": false})
	existingID, _ := env.server.SeedItem("Existing", "A-001", 500)
	env.addItem(t, "A-001", "Existing", "", "99.99", 1)
	env.addItem(t, "B-002", "Fresh", "", "42.00", 1)

	result, err := env.syncService.Sync(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, result.Results, 2)

	existing, _ := env.server.Object(existingID)
	v := existing.FirstVariation().ItemVariationData
	assert.Equal(t, "FIXED_PRICING", v.PricingType)
	require.NotNil(t, v.PriceMoney)
	assert.Equal(t, int64(500), v.PriceMoney.Amount)

	fresh, _ := env.server.Object(result.Results[1].ItemID)
	fv := fresh.FirstVariation().ItemVariationData
	assert.Equal(t, "VARIABLE_PRICING", fv.PricingType)
	assert.Nil(t, fv.PriceMoney)
}

func TestSync_InventoryOutcomes(t *testing.T) {
	t.Run("skipped without location", func(t *testing.T) {
		env := newTestEnv(t)
		env.saveSettings(t, map[string]interface{}{"square_sandbox_location_id": ""})
		env.addItem(t, "A-001", "Alpha", "", "1.00", 3)

		result, err := env.syncService.Sync(context.Background(), 0, 5)
		require.NoError(t, err)
		assert.Equal(t, models.InventorySkipped, result.Results[0].InventoryAction)
		assert.Zero(t, env.server.CountRequests(http.MethodPost, "/v2/inventory"))
	})

	t.Run("skipped when disabled", func(t *testing.T) {
		env := newTestEnv(t)
		env.saveSettings(t, map[string]interface{}{"inventory_sync_enabled": false})
		env.addItem(t, "A-001", "Alpha", "", "1.00", 3)

		result, err := env.syncService.Sync(context.Background(), 0, 5)
		require.NoError(t, err)
		assert.Equal(t, models.InventorySkipped, result.Results[0].InventoryAction)
	})

	t.Run("failure keeps item successful", func(t *testing.T) {
		env := newTestEnv(t)
		env.server.FailInventory()
		env.addItem(t, "A-001", "Alpha", "", "1.00", 3)

		result, err := env.syncService.Sync(context.Background(), 0, 5)
		require.NoError(t, err)
		assert.Equal(t, models.StatusSuccess, result.Results[0].Status)
		assert.Equal(t, models.InventoryFailed, result.Results[0].InventoryAction)
	})
}

func TestSync_ImageOutcomes(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(t *testing.T, env *testEnv)
		expect models.ImageAction
	}{
		{
			name:   "no local image",
			setup:  func(t *testing.T, env *testEnv) {},
			expect: models.ImageNoLocalImage,
		},
		{
			name: "empty path",
			setup: func(t *testing.T, env *testEnv) {
				env.addImage(t, "A-001", "   ", true, false)
			},
			expect: models.ImageNoValidImage,
		},
		{
			name: "missing file",
			setup: func(t *testing.T, env *testEnv) {
				env.addImage(t, "A-001", "items/gone.jpg", true, false)
			},
			expect: models.ImageFileNotFound,
		},
		{
			name: "upload failure",
			setup: func(t *testing.T, env *testEnv) {
				env.addImage(t, "A-001", "items/widget.jpg", true, true)
				env.server.FailImageUploads()
			},
			expect: models.ImageFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.addItem(t, "A-001", "Alpha", "", "1.00", 1)
			tt.setup(t, env)

			result, err := env.syncService.Sync(context.Background(), 0, 5)
			require.NoError(t, err)
			require.Len(t, result.Results, 1)
			assert.Equal(t, models.StatusSuccess, result.Results[0].Status)
			assert.Equal(t, tt.expect, result.Results[0].ImageAction)
		})
	}
}

func TestSync_ConcurrentRunRejected(t *testing.T) {
	env := newTestEnv(t)
	env.addItem(t, "A-001", "Alpha", "", "1.00", 1)

	release, err := env.lock.Acquire(context.Background(), RunLockName, env.cfg.SyncLockTTL)
	require.NoError(t, err)

	_, err = env.syncService.Sync(context.Background(), 0, 5)
	assert.True(t, errors.Is(err, ErrSyncInProgress))

	_, err = env.importer.Import(context.Background())
	assert.True(t, errors.Is(err, ErrSyncInProgress))

	release()
	_, err = env.syncService.Sync(context.Background(), 0, 5)
	assert.NoError(t, err)
}

func TestSync_WritesDiagnostics(t *testing.T) {
	env := newTestEnv(t)
	env.addItem(t, "A-001", "Alpha", "", "1.00", 1)
	env.addItem(t, "B-002", "Bravo", "", "1.00", 1)
	env.server.FailSKU("B-002", http.StatusInternalServerError)

	_, err := env.syncService.Sync(context.Background(), 0, 5)
	require.NoError(t, err)

	log := env.diagnosticsLog(t)
	assert.Contains(t, log, "=== Square Sync Batch ===")
	assert.Contains(t, log, "Environment: sandbox")
	assert.Contains(t, log, "Batch Offset: 0  Limit: 5")
	assert.Contains(t, log, "Batch Result: 1 successful, 1 failed")
	assert.Contains(t, log, "Total Items in Queue: 2  Has More: no")
	assert.Contains(t, log, "✅ SKU: A-001 - created (success) [Inv: synced] [Img: no_local_image]")
	assert.Contains(t, log, "❌ SKU: B-002 - failed (failed)")
	assert.Contains(t, log, "    Error: ")
}

func TestStatus_Empty(t *testing.T) {
	env := newTestEnv(t)

	status, err := env.syncService.Status(context.Background())
	require.NoError(t, err)
	assert.Nil(t, status.LastSync)
	assert.Zero(t, status.TotalItems)
	assert.Empty(t, status.RecentErrors)
	assert.Zero(t, status.ErrorCount)
}

func TestStatus_KeepsLastFiveErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var entries []models.SyncErrorEntry
	for i := 0; i < 8; i++ {
		entries = append(entries, models.SyncErrorEntry{SKU: fmt.Sprintf("SKU-%d", i), Error: "boom"})
	}
	require.NoError(t, env.settings.AppendSyncErrors(ctx, entries, maxStoredSyncErrors))

	status, err := env.syncService.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, status.ErrorCount)
	require.Len(t, status.RecentErrors, 5)
	assert.Equal(t, "SKU-3", status.RecentErrors[0].SKU)
	assert.Equal(t, "SKU-7", status.RecentErrors[4].SKU)
}

func TestTestConnection(t *testing.T) {
	t.Run("lists locations", func(t *testing.T) {
		env := newTestEnv(t)

		result, err := env.syncService.TestConnection(context.Background())
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, EnvironmentSandbox, result.Environment)
		assert.Equal(t, 1, result.LocationCount)
		require.Len(t, result.Locations, 1)
		assert.Equal(t, "Main Street", result.Locations[0].Name)
		assert.Equal(t, "US", result.Locations[0].Country)

		assert.Contains(t, env.diagnosticsLog(t), "Connection test (sandbox): success - Connection successful")
	})

	t.Run("rejected token", func(t *testing.T) {
		env := newTestEnv(t)
		env.saveSettings(t, map[string]interface{}{"square_sandbox_access_token": "wrong"})

		_, err := env.syncService.TestConnection(context.Background())
		var remoteErr *RemoteError
		require.ErrorAs(t, err, &remoteErr)
		assert.ErrorIs(t, err, clients.ErrUnauthorized)

		assert.Contains(t, env.diagnosticsLog(t), "Connection test (sandbox): error - ")
	})
}
