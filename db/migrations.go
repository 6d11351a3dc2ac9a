package db

import (
	"fmt"
	"socialclient/models"

	"gorm.io/gorm"
)

// Migrate creates the key-value table used by the SQL credential store.
func Migrate(orm *gorm.DB) error {
	if err := orm.AutoMigrate(&models.KVEntry{}); err != nil {
		return fmt.Errorf("failed to migrate kv_entry: %w", err)
	}
	return nil
}
