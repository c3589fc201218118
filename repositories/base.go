package repositories

import (
	"fmt"

	"zkteco-hub/repositories/base"

	"gorm.io/gorm"
)

// --- Generic Repository Helper Functions ---

// ExistsByField checks if a record of type T exists by a specific field.
func ExistsByField[T any](db *gorm.DB, fieldName string, value interface{}) (bool, error) {
	var count int64
	err := db.Model(new(T)).Where(fmt.Sprintf("%s = ?", fieldName), value).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check existence for %T by %s: %w", *new(T), fieldName, err)
	}
	return count > 0, nil
}

// applyLimit caps a listing query, using def when limit is not positive.
func applyLimit(query *gorm.DB, limit, def int) *gorm.DB {
	if limit <= 0 {
		limit = def
	}
	return query.Limit(limit)
}

// requireRow turns a zero-row update into a not-found error.
func requireRow(result *gorm.DB, table, identifier string) error {
	if result.Error != nil {
		return base.WrapDBError("update", table, result.Error)
	}
	if result.RowsAffected == 0 {
		return base.NewEntityNotFoundError(table, identifier)
	}
	return nil
}
