package services

import (
	"context"
	"fmt"

	"catalog-sync-service/internal/clients"
	"github.com/sirupsen/logrus"
)

// CategoryMap maps a local category name to its remote id. It is built once
// per batch and only read afterwards.
type CategoryMap map[string]string

// CategoryReconciler ensures every local category exists remotely
type CategoryReconciler struct {
	logger *logrus.Entry
}

// NewCategoryReconciler creates a new reconciler
func NewCategoryReconciler(logger *logrus.Entry) *CategoryReconciler {
	return &CategoryReconciler{logger: logger.WithField("component", "categories")}
}

// Reconcile finds or creates a remote category for each distinct name. A
// name that fails is logged and left out of the map so its items sync
// without a category.
func (r *CategoryReconciler) Reconcile(ctx context.Context, client clients.CatalogClient, keys IdempotencyKeys, names []string) CategoryMap {
	categories := make(CategoryMap, len(names))

	for _, name := range names {
		if name == "" {
			continue
		}
		if _, done := categories[name]; done {
			continue
		}

		id, err := r.findOrCreate(ctx, client, keys, name)
		if err != nil {
			r.logger.WithError(err).WithField("category", name).Warn("Category reconciliation failed, items sync without it")
			continue
		}
		categories[name] = id
	}

	return categories
}

func (r *CategoryReconciler) findOrCreate(ctx context.Context, client clients.CatalogClient, keys IdempotencyKeys, name string) (string, error) {
	found, err := client.SearchCatalogObjects(ctx, &clients.SearchRequest{
		ObjectTypes:    []clients.ObjectType{clients.ObjectTypeCategory},
		AttributeName:  "name",
		AttributeValue: name,
	})
	if err != nil {
		return "", fmt.Errorf("search: %w", err)
	}
	for _, obj := range found {
		if obj.CategoryData != nil && obj.CategoryData.Name == name && !obj.IsDeleted {
			return obj.ID, nil
		}
	}

	result, err := client.UpsertObject(ctx, keys.Key("create_category", name, 0), &clients.CatalogObject{
		Type:         clients.ObjectTypeCategory,
		ID:           "#new_cat",
		CategoryData: &clients.CategoryData{Name: name},
	})
	if err != nil {
		return "", fmt.Errorf("create: %w", err)
	}
	if result.Object.ID == "" {
		return "", fmt.Errorf("create returned no id")
	}

	r.logger.WithFields(logrus.Fields{"category": name, "id": result.Object.ID}).Info("Created remote category")
	return result.Object.ID, nil
}
