package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"catalog-sync-service/internal/clients/square/squaretest"
	"catalog-sync-service/internal/config"
	"catalog-sync-service/internal/models"
	"catalog-sync-service/internal/repository"
	"catalog-sync-service/internal/secrets"
	"catalog-sync-service/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testEnv struct {
	db           *gorm.DB
	server       *squaretest.Server
	fs           afero.Fs
	cfg          *config.Config
	items        *repository.ItemRepository
	settings     *repository.SettingsRepository
	store        secrets.Store
	lock         RunLock
	runs         *RunHistory
	credentials  *CredentialService
	syncService  *SyncService
	importer     *ImportService
	diagnostics  string
	imageRootDir string
}

func newTestConfig(baseURL string) *config.Config {
	return &config.Config{
		Environment:        "test",
		ImageRoot:          "/srv/uploads",
		DiagnosticsLogPath: "/var/log/square_sync.log",
		DiagnosticsEnabled: true,
		SyncDefaultLimit:   5,
		SyncMaxLimit:       100,
		SyncWorkers:        4,
		SyncLockTTL:        time.Minute,
		BaseURLOverride:    baseURL,
		HTTPTimeout:        5 * time.Second,
	}
}

// newTestEnv wires the sync engine against a fake remote API with an
// enabled sandbox configuration
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.NewDB(t)
	server := squaretest.NewServer(t)
	fs := afero.NewMemMapFs()
	cfg := newTestConfig(server.URL)
	logger := testutil.NewLogger()

	env := &testEnv{
		db:           db,
		server:       server,
		fs:           fs,
		cfg:          cfg,
		items:        repository.NewItemRepository(db),
		settings:     repository.NewSettingsRepository(db),
		store:        secrets.NewDBStore(repository.NewSecretRepository(db), "test-passphrase"),
		lock:         NewDBRunLock(repository.NewLockRepository(db), logger),
		runs:         NewRunHistory(repository.NewSyncRunRepository(db), logger),
		diagnostics:  cfg.DiagnosticsLogPath,
		imageRootDir: cfg.ImageRoot,
	}
	env.credentials = NewCredentialService(env.settings, env.store, cfg.BaseURLOverride, logger)
	env.syncService = NewSyncService(env.items, env.settings, env.credentials, env.lock, env.runs, fs, cfg, logger)
	env.importer = NewImportService(env.items, env.settings, env.credentials, env.lock, env.runs, cfg, logger)

	env.saveSettings(t, map[string]interface{}{
		"square_enabled":                true,
		"square_environment":            "sandbox",
		"square_sandbox_access_token":   server.Token,
		"square_sandbox_location_id":    "LOC-1",
		"square_sandbox_application_id": "sandbox-app",
	})
	return env
}

func (e *testEnv) saveSettings(t *testing.T, input map[string]interface{}) {
	t.Helper()
	_, err := e.credentials.Save(context.Background(), input)
	require.NoError(t, err)
}

func (e *testEnv) addItem(t *testing.T, sku, name, category, price string, stock int) {
	t.Helper()
	require.NoError(t, e.items.Create(context.Background(), &models.LocalItem{
		SKU:           sku,
		Name:          name,
		Description:   name + " description",
		Category:      category,
		RetailPrice:   decimal.RequireFromString(price),
		StockQuantity: stock,
	}))
}

// addImage registers an image row and writes its file under the image root
func (e *testEnv) addImage(t *testing.T, sku, imagePath string, primary, writeFile bool) {
	t.Helper()
	require.NoError(t, e.items.AddImage(context.Background(), &models.LocalImage{
		SKU:       sku,
		ImagePath: imagePath,
		IsPrimary: primary,
	}))
	if writeFile {
		full := filepath.Join(e.imageRootDir, imagePath)
		require.NoError(t, e.fs.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, afero.WriteFile(e.fs, full, jpegBytes, 0o644))
	}
}

func (e *testEnv) diagnosticsLog(t *testing.T) string {
	t.Helper()
	data, err := afero.ReadFile(e.fs, e.diagnostics)
	require.NoError(t, err)
	return string(data)
}

// jpegBytes is enough of a JPEG header for content sniffing
var jpegBytes = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x01, 0x01, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0xFF, 0xD9}
