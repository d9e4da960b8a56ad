package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"catalog-sync-service/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const diagnosticsTimeLayout = "2006-01-02 15:04:05"

// Diagnostics appends human readable run records to a log file. Write
// failures are logged and never reach the caller.
type Diagnostics struct {
	fs      afero.Fs
	path    string
	enabled bool
	now     func() time.Time
	mu      sync.Mutex
	logger  *logrus.Entry
}

// NewDiagnostics creates a diagnostics log at path on fs
func NewDiagnostics(fs afero.Fs, path string, enabled bool, logger *logrus.Entry) *Diagnostics {
	return &Diagnostics{
		fs:      fs,
		path:    path,
		enabled: enabled,
		now:     time.Now,
		logger:  logger.WithField("component", "diagnostics"),
	}
}

// BatchRecord is everything written about one push batch
type BatchRecord struct {
	Environment string
	Offset      int
	Limit       int
	TotalItems  int
	Results     []models.SyncResult
}

// RecordBatch appends a push batch record
func (d *Diagnostics) RecordBatch(rec BatchRecord) {
	d.append(FormatBatch(d.now(), rec))
}

// RecordConnectionTest appends a one-line connection test record
func (d *Diagnostics) RecordConnectionTest(environment string, success bool, message string) {
	status := "success"
	if !success {
		status = "error"
	}
	d.append(fmt.Sprintf("[%s] Connection test (%s): %s - %s\n",
		d.now().Format(diagnosticsTimeLayout), environment, status, message))
}

// FormatBatch renders a batch record
func FormatBatch(at time.Time, rec BatchRecord) string {
	summary := models.SummarizeSync(rec.Results)
	hasMore := "no"
	if rec.Offset+len(rec.Results) < rec.TotalItems {
		hasMore = "yes"
	}

	lines := []string{
		"=== Square Sync Batch ===",
		"Timestamp: " + at.Format(diagnosticsTimeLayout),
		"Environment: " + rec.Environment,
		fmt.Sprintf("Batch Offset: %d  Limit: %d", rec.Offset, rec.Limit),
		fmt.Sprintf("Batch Result: %d successful, %d failed", summary.Success, summary.Failed),
		fmt.Sprintf("Total Items in Queue: %d  Has More: %s", rec.TotalItems, hasMore),
		"",
		"--- Item Details ---",
	}

	for _, r := range rec.Results {
		icon := "❌"
		if r.Succeeded() {
			icon = "✅"
		}
		line := fmt.Sprintf("%s SKU: %s - %s (%s)", icon, r.SKU, r.Action, r.Status)
		if r.InventoryAction != "" {
			line += " [Inv: " + string(r.InventoryAction) + "]"
		}
		if r.ImageAction != "" {
			line += " [Img: " + string(r.ImageAction) + "]"
		}
		lines = append(lines, line)
		if r.Error != "" {
			lines = append(lines, "    Error: "+r.Error)
		}
	}
	lines = append(lines, "")

	return strings.Join(lines, "\n") + "\n"
}

func (d *Diagnostics) append(text string) {
	if !d.enabled {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.fs.MkdirAll(filepath.Dir(d.path), 0o755); err != nil {
		d.logger.WithError(err).Warn("Failed to create diagnostics directory")
		return
	}
	f, err := d.fs.OpenFile(d.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		d.logger.WithError(err).Warn("Failed to open diagnostics log")
		return
	}
	defer f.Close()

	if _, err := f.WriteString(text); err != nil {
		d.logger.WithError(err).Warn("Failed to write diagnostics log")
	}
}
