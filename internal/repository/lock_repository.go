package repository

import (
	"context"
	"time"

	"catalog-sync-service/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LockRepository stores named run locks with an expiry
type LockRepository struct {
	db *gorm.DB
}

// NewLockRepository creates a new lock repository
func NewLockRepository(db *gorm.DB) *LockRepository {
	return &LockRepository{db: db}
}

// TryAcquire takes the lock when it is free or expired. It reports false when
// another owner holds an unexpired lock.
func (r *LockRepository) TryAcquire(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	now := time.Now()
	acquired := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("name = ? AND expires_at < ?", name, now).
			Delete(&models.SyncLock{}).Error; err != nil {
			return err
		}

		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.SyncLock{
			Name:      name,
			Owner:     owner,
			ExpiresAt: now.Add(ttl),
		})
		if result.Error != nil {
			return result.Error
		}
		acquired = result.RowsAffected == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	return acquired, nil
}

// Release drops the lock if owner still holds it
func (r *LockRepository) Release(ctx context.Context, name, owner string) error {
	return r.db.WithContext(ctx).
		Where("name = ? AND owner = ?", name, owner).
		Delete(&models.SyncLock{}).Error
}
