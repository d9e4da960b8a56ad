package clients

import (
	"context"
	"encoding/json"
	"io"
)

// CatalogClient defines the remote catalog operations the sync engine consumes
type CatalogClient interface {
	// Call performs a raw authenticated request and returns the response body
	Call(ctx context.Context, method, path string, body interface{}) (json.RawMessage, int, error)

	// Catalog objects
	SearchCatalogObjects(ctx context.Context, req *SearchRequest) ([]CatalogObject, error)
	RetrieveObject(ctx context.Context, objectID string) (*CatalogObject, error)
	BatchRetrieveObjects(ctx context.Context, objectIDs []string) ([]CatalogObject, error)
	UpsertObject(ctx context.Context, idempotencyKey string, object *CatalogObject) (*UpsertResult, error)
	ListCatalog(ctx context.Context, types []ObjectType, cursor string) (*ListResult, error)

	// Images
	CreateImage(ctx context.Context, req *ImageUpload) (*CatalogObject, error)

	// Inventory
	BatchChangeInventory(ctx context.Context, idempotencyKey string, changes []InventoryChange) error

	// Locations
	ListLocations(ctx context.Context) ([]Location, error)
}

// ObjectType discriminates remote catalog objects
type ObjectType string

const (
	ObjectTypeItem          ObjectType = "ITEM"
	ObjectTypeItemVariation ObjectType = "ITEM_VARIATION"
	ObjectTypeCategory      ObjectType = "CATEGORY"
	ObjectTypeImage         ObjectType = "IMAGE"
)

// CatalogObject is the remote discriminated union; exactly one *Data field is
// populated according to Type.
type CatalogObject struct {
	Type              ObjectType         `json:"type"`
	ID                string             `json:"id"`
	Version           int64              `json:"version,omitempty"`
	IsDeleted         bool               `json:"is_deleted,omitempty"`
	ItemData          *ItemData          `json:"item_data,omitempty"`
	ItemVariationData *ItemVariationData `json:"item_variation_data,omitempty"`
	CategoryData      *CategoryData      `json:"category_data,omitempty"`
	ImageData         *ImageData         `json:"image_data,omitempty"`
}

// ItemData is the payload of an ITEM object
type ItemData struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	CategoryID  string          `json:"category_id,omitempty"`
	Variations  []CatalogObject `json:"variations,omitempty"`
	ImageIDs    []string        `json:"image_ids,omitempty"`
}

// ItemVariationData is the payload of an ITEM_VARIATION object
type ItemVariationData struct {
	ItemID      string `json:"item_id,omitempty"`
	Name        string `json:"name"`
	SKU         string `json:"sku,omitempty"`
	PricingType string `json:"pricing_type,omitempty"`
	PriceMoney  *Money `json:"price_money,omitempty"`
}

// CategoryData is the payload of a CATEGORY object
type CategoryData struct {
	Name string `json:"name"`
}

// ImageData is the payload of an IMAGE object
type ImageData struct {
	Name    string `json:"name,omitempty"`
	URL     string `json:"url,omitempty"`
	Caption string `json:"caption,omitempty"`
}

// Money is an amount in minor currency units
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// FirstVariation returns the first variation of an ITEM, if any
func (o *CatalogObject) FirstVariation() *CatalogObject {
	if o == nil || o.ItemData == nil || len(o.ItemData.Variations) == 0 {
		return nil
	}
	return &o.ItemData.Variations[0]
}

// Caption returns the dedup fingerprint of an IMAGE object
func (o *CatalogObject) Caption() string {
	if o == nil || o.ImageData == nil {
		return ""
	}
	return o.ImageData.Caption
}

// SearchRequest is an exact-attribute catalog search
type SearchRequest struct {
	ObjectTypes    []ObjectType `json:"object_types"`
	AttributeName  string       `json:"-"`
	AttributeValue string       `json:"-"`
	Limit          int          `json:"-"`
}

// UpsertResult contains the stored object and temporary-id mappings
type UpsertResult struct {
	Object     CatalogObject     `json:"catalog_object"`
	IDMappings map[string]string `json:"-"`
}

// ListResult contains one page of the catalog listing
type ListResult struct {
	Objects []CatalogObject `json:"objects"`
	Cursor  string          `json:"cursor,omitempty"`
}

// ImageUpload describes a multipart image creation attached to an item
type ImageUpload struct {
	IdempotencyKey string
	ObjectID       string
	Caption        string
	FileName       string
	ContentType    string
	Content        io.Reader
}

// InventoryChange is a single inventory change; only physical counts are used
type InventoryChange struct {
	Type          string         `json:"type"`
	PhysicalCount *PhysicalCount `json:"physical_count,omitempty"`
}

// PhysicalCount overwrites the remote quantity with an absolute count
type PhysicalCount struct {
	CatalogObjectID string `json:"catalog_object_id"`
	State           string `json:"state"`
	LocationID      string `json:"location_id"`
	Quantity        string `json:"quantity"`
	OccurredAt      string `json:"occurred_at"`
}

// Location is a remote business location
type Location struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Status   string `json:"status,omitempty"`
	Currency string `json:"currency,omitempty"`
	Country  string `json:"country,omitempty"`
}
