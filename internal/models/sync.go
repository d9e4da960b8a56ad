package models

import "time"

// SyncAction is the outcome of pushing one item's catalog object
type SyncAction string

const (
	ActionCreated SyncAction = "created"
	ActionUpdated SyncAction = "updated"
	ActionFailed  SyncAction = "failed"
)

// ImageAction is the outcome of the image step for one item
type ImageAction string

const (
	ImageNoLocalImage ImageAction = "no_local_image"
	ImageNoValidImage ImageAction = "no_valid_image"
	ImageExistsRemote ImageAction = "exists_remote"
	ImageFileNotFound ImageAction = "file_not_found"
	ImageUploaded     ImageAction = "uploaded"
	ImageFailed       ImageAction = "failed"
	ImageSkipped      ImageAction = "skipped"
)

// InventoryAction is the outcome of the inventory step for one item
type InventoryAction string

const (
	InventorySynced  InventoryAction = "synced"
	InventoryFailed  InventoryAction = "failed"
	InventorySkipped InventoryAction = "skipped"
)

// Result status values
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// SyncResult is the per-item outcome of a push batch
type SyncResult struct {
	SKU             string          `json:"sku"`
	Action          SyncAction      `json:"action"`
	Status          string          `json:"status"`
	ItemID          string          `json:"item_id,omitempty"`
	VariationID     string          `json:"variation_id,omitempty"`
	ImageAction     ImageAction     `json:"image_action,omitempty"`
	InventoryAction InventoryAction `json:"inventory_action,omitempty"`
	Error           string          `json:"error,omitempty"`
}

// Succeeded reports whether the item's catalog object was written
func (r SyncResult) Succeeded() bool {
	return r.Status == StatusSuccess
}

// Pagination tells the caller how to request the next batch
type Pagination struct {
	HasMore    bool `json:"has_more"`
	NextOffset int  `json:"next_offset"`
	TotalItems int  `json:"total_items"`
}

// Summary counts the results of a batch or import
type Summary struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// SyncBatchResult is returned by a push batch
type SyncBatchResult struct {
	Success    bool         `json:"success"`
	Results    []SyncResult `json:"results"`
	Pagination Pagination   `json:"pagination"`
	Summary    Summary      `json:"summary"`
}

// ImportResult is the per-item outcome of a reverse import
type ImportResult struct {
	SKU      string `json:"sku,omitempty"`
	ObjectID string `json:"id,omitempty"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

// ImportBatchResult is returned by a reverse import
type ImportBatchResult struct {
	Success bool           `json:"success"`
	Results []ImportResult `json:"results"`
	Summary Summary        `json:"summary"`
}

// SyncErrorEntry is one persisted failure in the sync_errors setting
type SyncErrorEntry struct {
	SKU       string    `json:"sku"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// SyncStatusReport is returned by the status endpoint
type SyncStatusReport struct {
	LastSync     *time.Time       `json:"last_sync"`
	TotalItems   int64            `json:"total_items"`
	RecentErrors []SyncErrorEntry `json:"recent_errors"`
	ErrorCount   int              `json:"error_count"`
}

// ConnectionTestResult is returned by the connection test
type ConnectionTestResult struct {
	Success       bool       `json:"success"`
	Environment   string     `json:"environment"`
	Locations     []Location `json:"locations"`
	LocationCount int        `json:"location_count"`
}

// Location is a remote business location as reported to callers
type Location struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Status   string `json:"status,omitempty"`
	Currency string `json:"currency,omitempty"`
	Country  string `json:"country,omitempty"`
}

// SummarizeSync counts successes and failures over results
func SummarizeSync(results []SyncResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		if r.Succeeded() {
			s.Success++
		} else {
			s.Failed++
		}
	}
	return s
}

// SummarizeImport counts successes and failures over import results
func SummarizeImport(results []ImportResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		if r.Status == StatusSuccess {
			s.Success++
		} else {
			s.Failed++
		}
	}
	return s
}
