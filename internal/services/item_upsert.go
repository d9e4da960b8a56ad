package services

import (
	"context"
	"fmt"

	"catalog-sync-service/internal/clients"
	"catalog-sync-service/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	pricingFixed    = "FIXED_PRICING"
	pricingVariable = "VARIABLE_PRICING"
	variationName   = "Regular"
)

// UpsertOutcome identifies the remote objects written for one item
type UpsertOutcome struct {
	ItemID      string
	VariationID string
	ImageIDs    []string
	Action      models.SyncAction
}

// ItemUpserter creates or updates the remote ITEM for a local item
type ItemUpserter struct {
	retrier *clients.ConflictRetrier
	logger  *logrus.Entry
}

// NewItemUpserter creates a new upserter; conflicts are retried per retrier
func NewItemUpserter(retrier *clients.ConflictRetrier, logger *logrus.Entry) *ItemUpserter {
	return &ItemUpserter{retrier: retrier, logger: logger.WithField("component", "item_upsert")}
}

// Upsert finds the remote variation by SKU and updates its parent item, or
// creates a new item when none exists. A version conflict re-reads the
// remote state and retries.
func (u *ItemUpserter) Upsert(ctx context.Context, client clients.CatalogClient, settings *SyncSettings, keys IdempotencyKeys, item models.LocalItem, categories CategoryMap) (*UpsertOutcome, error) {
	var outcome *UpsertOutcome

	result := u.retrier.Do(ctx, "upsert "+item.SKU, func(ctx context.Context, attempt int) error {
		if attempt > 0 {
			u.logger.WithFields(logrus.Fields{"sku": item.SKU, "attempt": attempt}).Info("Version conflict, re-reading remote item")
		}
		o, err := u.upsertOnce(ctx, client, settings, keys, item, categories)
		if err != nil {
			return err
		}
		outcome = o
		return nil
	})
	if result.LastError != nil {
		return nil, result.LastError
	}
	return outcome, nil
}

func (u *ItemUpserter) upsertOnce(ctx context.Context, client clients.CatalogClient, settings *SyncSettings, keys IdempotencyKeys, item models.LocalItem, categories CategoryMap) (*UpsertOutcome, error) {
	candidate := BuildCandidate(item, settings, categories)

	existing, err := findVariationBySKU(ctx, client, item.SKU)
	if err != nil {
		return nil, fmt.Errorf("failed to search for sku %s: %w", item.SKU, err)
	}
	if existing == nil {
		return u.create(ctx, client, keys, item.SKU, candidate)
	}

	parent, err := client.RetrieveObject(ctx, existing.ItemVariationData.ItemID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve item %s: %w", existing.ItemVariationData.ItemID, err)
	}
	if parent.ItemData == nil {
		return nil, fmt.Errorf("remote object %s is not an item", parent.ID)
	}

	return u.update(ctx, client, keys, item.SKU, candidate, parent)
}

func (u *ItemUpserter) create(ctx context.Context, client clients.CatalogClient, keys IdempotencyKeys, sku string, candidate *clients.CatalogObject) (*UpsertOutcome, error) {
	itemTempID := "#item-" + sku
	variationTempID := "#variation-" + sku

	candidate.ID = itemTempID
	variation := candidate.FirstVariation()
	variation.ID = variationTempID
	variation.ItemVariationData.ItemID = itemTempID

	result, err := client.UpsertObject(ctx, keys.Key("create_item", sku, 0), candidate)
	if err != nil {
		return nil, fmt.Errorf("failed to create item: %w", err)
	}

	outcome := &UpsertOutcome{
		ItemID: result.Object.ID,
		Action: models.ActionCreated,
	}
	if outcome.ItemID == "" {
		outcome.ItemID = result.IDMappings[itemTempID]
	}
	if v := result.Object.FirstVariation(); v != nil {
		outcome.VariationID = v.ID
	}
	if outcome.VariationID == "" {
		outcome.VariationID = result.IDMappings[variationTempID]
	}

	u.logger.WithFields(logrus.Fields{"sku": sku, "item_id": outcome.ItemID}).Debug("Created remote item")
	return outcome, nil
}

func (u *ItemUpserter) update(ctx context.Context, client clients.CatalogClient, keys IdempotencyKeys, sku string, candidate, parent *clients.CatalogObject) (*UpsertOutcome, error) {
	candidate.ID = parent.ID
	candidate.Version = parent.Version
	// Images attached remotely are dropped unless carried forward.
	candidate.ItemData.ImageIDs = parent.ItemData.ImageIDs

	variation := candidate.FirstVariation()
	variation.ItemVariationData.ItemID = parent.ID
	if remote := variationForSKU(parent, sku); remote != nil {
		variation.ID = remote.ID
		variation.Version = remote.Version
		if variation.ItemVariationData.PriceMoney == nil && remote.ItemVariationData != nil {
			variation.ItemVariationData.PricingType = remote.ItemVariationData.PricingType
			variation.ItemVariationData.PriceMoney = remote.ItemVariationData.PriceMoney
		}
	}

	result, err := client.UpsertObject(ctx, keys.Key("update_item", sku, parent.Version), candidate)
	if err != nil {
		return nil, fmt.Errorf("failed to update item %s: %w", parent.ID, err)
	}

	outcome := &UpsertOutcome{
		ItemID:      parent.ID,
		VariationID: variation.ID,
		ImageIDs:    parent.ItemData.ImageIDs,
		Action:      models.ActionUpdated,
	}
	if v := variationForSKU(&result.Object, sku); v != nil {
		outcome.VariationID = v.ID
	}

	u.logger.WithFields(logrus.Fields{"sku": sku, "item_id": outcome.ItemID}).Debug("Updated remote item")
	return outcome, nil
}

// BuildCandidate converts a local item into the remote ITEM to write
func BuildCandidate(item models.LocalItem, settings *SyncSettings, categories CategoryMap) *clients.CatalogObject {
	variationData := &clients.ItemVariationData{
		Name:        variationName,
		SKU:         item.SKU,
		PricingType: pricingVariable,
	}
	if settings.PriceSyncEnabled && settings.SyncsField("price") {
		variationData.PricingType = pricingFixed
		variationData.PriceMoney = &clients.Money{
			Amount:   ToMinorUnits(item.RetailPrice),
			Currency: settings.Currency,
		}
	}

	itemData := &clients.ItemData{
		Name: item.Name,
		Variations: []clients.CatalogObject{{
			Type:              clients.ObjectTypeItemVariation,
			ItemVariationData: variationData,
		}},
	}
	if settings.SyncsField("description") {
		itemData.Description = item.Description
	}
	if settings.SyncsField("category") && item.Category != "" {
		if id, ok := categories[item.Category]; ok {
			itemData.CategoryID = id
		}
	}

	return &clients.CatalogObject{
		Type:     clients.ObjectTypeItem,
		ItemData: itemData,
	}
}

// ToMinorUnits converts a price to cents, rounding half away from zero
func ToMinorUnits(price decimal.Decimal) int64 {
	return price.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// FromMinorUnits converts cents to a price
func FromMinorUnits(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}

// findVariationBySKU returns the first live variation whose SKU matches exactly
func findVariationBySKU(ctx context.Context, client clients.CatalogClient, sku string) (*clients.CatalogObject, error) {
	found, err := client.SearchCatalogObjects(ctx, &clients.SearchRequest{
		ObjectTypes:    []clients.ObjectType{clients.ObjectTypeItemVariation},
		AttributeName:  "sku",
		AttributeValue: sku,
	})
	if err != nil {
		return nil, err
	}
	for i := range found {
		v := &found[i]
		if v.IsDeleted || v.ItemVariationData == nil {
			continue
		}
		if v.ItemVariationData.SKU == sku && v.ItemVariationData.ItemID != "" {
			return v, nil
		}
	}
	return nil, nil
}

// variationForSKU picks the item's variation carrying sku, else its first
func variationForSKU(item *clients.CatalogObject, sku string) *clients.CatalogObject {
	if item == nil || item.ItemData == nil {
		return nil
	}
	for i := range item.ItemData.Variations {
		v := &item.ItemData.Variations[i]
		if v.ItemVariationData != nil && v.ItemVariationData.SKU == sku {
			return v
		}
	}
	return item.FirstVariation()
}
