package repository

import (
	"context"
	"errors"

	"catalog-sync-service/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SecretRepository persists encrypted secrets
type SecretRepository struct {
	db *gorm.DB
}

// NewSecretRepository creates a new secret repository
func NewSecretRepository(db *gorm.DB) *SecretRepository {
	return &SecretRepository{db: db}
}

// Get returns the stored secret or nil when absent
func (r *SecretRepository) Get(ctx context.Context, key string) (*models.StoredSecret, error) {
	var secret models.StoredSecret
	err := r.db.WithContext(ctx).First(&secret, "secret_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &secret, nil
}

// Put creates or replaces a stored secret
func (r *SecretRepository) Put(ctx context.Context, secret *models.StoredSecret) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "secret_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"ciphertext", "nonce", "algorithm", "updated_at"}),
	}).Create(secret).Error
}

// Delete removes a stored secret
func (r *SecretRepository) Delete(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Delete(&models.StoredSecret{}, "secret_key = ?", key).Error
}
