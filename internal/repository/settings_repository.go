package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"catalog-sync-service/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingsRepository handles database operations for business settings
type SettingsRepository struct {
	db *gorm.DB
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// GetCategory returns every row of a category keyed by setting key
func (r *SettingsRepository) GetCategory(ctx context.Context, category string) (map[string]models.BusinessSetting, error) {
	var rows []models.BusinessSetting
	if err := r.db.WithContext(ctx).Where("category = ?", category).Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make(map[string]models.BusinessSetting, len(rows))
	for _, row := range rows {
		out[row.SettingKey] = row
	}
	return out, nil
}

// Get returns a single setting value and whether the row exists
func (r *SettingsRepository) Get(ctx context.Context, category, key string) (string, bool, error) {
	var row models.BusinessSetting
	err := r.db.WithContext(ctx).
		Where("category = ? AND setting_key = ?", category, key).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return row.SettingValue, true, nil
}

// Upsert writes a single setting row
func (r *SettingsRepository) Upsert(ctx context.Context, setting *models.BusinessSetting) error {
	return upsertSetting(r.db.WithContext(ctx), setting)
}

// UpsertMany writes every row in one transaction
func (r *SettingsRepository) UpsertMany(ctx context.Context, settings []models.BusinessSetting) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range settings {
			if err := upsertSetting(tx, &settings[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertSetting(db *gorm.DB, setting *models.BusinessSetting) error {
	if setting.SettingType == "" {
		setting.SettingType = models.SettingTypeText
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "category"}, {Name: "setting_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"setting_value", "setting_type", "display_name", "description", "updated_at"}),
	}).Create(setting).Error
}

// SetLastSync stores the sync watermark
func (r *SettingsRepository) SetLastSync(ctx context.Context, at time.Time) error {
	return r.Upsert(ctx, &models.BusinessSetting{
		Category:     models.SettingsCategorySquare,
		SettingKey:   "last_sync",
		SettingValue: at.UTC().Format(time.RFC3339),
		SettingType:  models.SettingTypeText,
		DisplayName:  "Last Sync",
	})
}

// GetLastSync returns the sync watermark, nil when never synced
func (r *SettingsRepository) GetLastSync(ctx context.Context) (*time.Time, error) {
	value, ok, err := r.Get(ctx, models.SettingsCategorySquare, "last_sync")
	if err != nil || !ok || value == "" {
		return nil, err
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid last_sync value %q", value)
}

// GetSyncErrors returns the persisted sync failures, oldest first
func (r *SettingsRepository) GetSyncErrors(ctx context.Context) ([]models.SyncErrorEntry, error) {
	value, ok, err := r.Get(ctx, models.SettingsCategorySquare, "sync_errors")
	if err != nil || !ok || value == "" {
		return []models.SyncErrorEntry{}, err
	}
	var entries []models.SyncErrorEntry
	if err := json.Unmarshal([]byte(value), &entries); err != nil {
		return []models.SyncErrorEntry{}, nil
	}
	return entries, nil
}

// AppendSyncErrors adds failures and keeps only the newest keep entries
func (r *SettingsRepository) AppendSyncErrors(ctx context.Context, entries []models.SyncErrorEntry, keep int) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := &SettingsRepository{db: tx}
		existing, err := txRepo.GetSyncErrors(ctx)
		if err != nil {
			return err
		}
		all := append(existing, entries...)
		if len(all) > keep {
			all = all[len(all)-keep:]
		}
		data, err := json.Marshal(all)
		if err != nil {
			return err
		}
		return upsertSetting(tx, &models.BusinessSetting{
			Category:     models.SettingsCategorySquare,
			SettingKey:   "sync_errors",
			SettingValue: string(data),
			SettingType:  models.SettingTypeJSON,
			DisplayName:  "Sync Errors",
		})
	})
}
