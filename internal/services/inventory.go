package services

import (
	"context"
	"strconv"
	"time"

	"catalog-sync-service/internal/clients"
	"catalog-sync-service/internal/models"
	"github.com/sirupsen/logrus"
)

// InventoryPusher overwrites the remote stock count with the local one
type InventoryPusher struct {
	now    func() time.Time
	logger *logrus.Entry
}

// NewInventoryPusher creates a new pusher
func NewInventoryPusher(logger *logrus.Entry) *InventoryPusher {
	return &InventoryPusher{
		now:    time.Now,
		logger: logger.WithField("component", "inventory"),
	}
}

// Push sends one absolute physical count for the variation at the
// configured location. It is skipped when inventory sync is off or there
// is no location or variation to count against.
func (p *InventoryPusher) Push(ctx context.Context, client clients.CatalogClient, settings *SyncSettings, keys IdempotencyKeys, sku, variationID string, quantity int) models.InventoryAction {
	if !settings.InventorySyncEnabled || settings.LocationID == "" || variationID == "" {
		return models.InventorySkipped
	}

	occurredAt := p.now().UTC()
	change := clients.InventoryChange{
		Type: "PHYSICAL_COUNT",
		PhysicalCount: &clients.PhysicalCount{
			CatalogObjectID: variationID,
			State:           "IN_STOCK",
			LocationID:      settings.LocationID,
			Quantity:        strconv.Itoa(quantity),
			OccurredAt:      occurredAt.Format(time.RFC3339),
		},
	}

	key := keys.Key("inventory", variationID+"/"+strconv.Itoa(quantity), occurredAt.UnixNano())
	if err := client.BatchChangeInventory(ctx, key, []clients.InventoryChange{change}); err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"sku":          sku,
			"variation_id": variationID,
		}).Warn("Inventory push failed")
		return models.InventoryFailed
	}

	return models.InventorySynced
}
