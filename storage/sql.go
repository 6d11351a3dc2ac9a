package storage

import (
	"context"
	"errors"
	"time"

	"socialclient/db"
	"socialclient/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SQLStore struct {
	orm *gorm.DB
}

func NewSQLStore(orm *gorm.DB) *SQLStore {
	return &SQLStore{orm: orm}
}

// Get reads from the master. A lagging replica could hand back a token pair
// that was already rotated.
func (s *SQLStore) Get(ctx context.Context, key string) (string, bool, error) {
	var entry models.KVEntry
	err := db.GetWriteDB(ctx, s.orm).Where(&models.KVEntry{Key: key}).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return entry.Value, true, nil
}

func (s *SQLStore) SetMany(ctx context.Context, values map[string]string) error {
	return db.GetWriteDB(ctx, s.orm).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		for k, v := range values {
			entry := models.KVEntry{Key: k, Value: v, UpdatedAt: now}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
			}).Create(&entry).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return db.GetWriteDB(ctx, s.orm).
		Where(map[string]interface{}{"key": keys}).
		Delete(&models.KVEntry{}).Error
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.orm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
