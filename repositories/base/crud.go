package base

import (
	"fmt"

	"gorm.io/gorm"
)

// ===================================================================
// COMMON CRUD PATTERNS
// ===================================================================

// BaseCRUDRepository provides the by-ID operations shared by the operator
// managed tables.
type BaseCRUDRepository[T any] struct {
	db        *gorm.DB
	tableName string
}

func NewBaseCRUDRepository[T any](db *gorm.DB, tableName string) *BaseCRUDRepository[T] {
	return &BaseCRUDRepository[T]{
		db:        db,
		tableName: tableName,
	}
}

// Create inserts entity within tx, filling its primary key.
func (r *BaseCRUDRepository[T]) Create(tx *gorm.DB, entity *T) error {
	if err := tx.Create(entity).Error; err != nil {
		return WrapDBError("create", r.tableName, err)
	}
	return nil
}

// UpdateAndGet applies updates within tx and returns the fresh row.
func (r *BaseCRUDRepository[T]) UpdateAndGet(tx *gorm.DB, id uint, updates map[string]interface{}) (*T, error) {
	if err := r.checkEntityExists(tx, id); err != nil {
		return nil, err
	}
	if len(updates) > 0 {
		if err := tx.Model(new(T)).Where("id = ?", id).Updates(updates).Error; err != nil {
			return nil, WrapDBError("update", r.tableName, err)
		}
	}
	return r.getByID(tx, id)
}

// GetByID retrieves entity by ID with standard error handling
func (r *BaseCRUDRepository[T]) GetByID(id uint) (*T, error) {
	return r.getByID(r.db, id)
}

func (r *BaseCRUDRepository[T]) getByID(db *gorm.DB, id uint) (*T, error) {
	var entity T
	if err := db.Where("id = ?", id).First(&entity).Error; err != nil {
		return nil, HandleDBError("get", r.tableName, fmt.Sprintf("ID %d", id), err)
	}
	return &entity, nil
}

// ListWithPagination retrieves entities with pagination
func (r *BaseCRUDRepository[T]) ListWithPagination(limit, offset int, orderBy string) ([]T, error) {
	var entities []T
	query := r.db.Model(new(T))

	if orderBy != "" {
		query = query.Order(orderBy)
	} else {
		query = query.Order("id desc")
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Find(&entities).Error; err != nil {
		return nil, WrapDBError("list", r.tableName, err)
	}
	return entities, nil
}

// DeleteWithValidation deletes entity within tx after an existence check.
func (r *BaseCRUDRepository[T]) DeleteWithValidation(tx *gorm.DB, id uint) error {
	if err := r.checkEntityExists(tx, id); err != nil {
		return err
	}
	if err := tx.Delete(new(T), id).Error; err != nil {
		return WrapDBError("delete", r.tableName, err)
	}
	return nil
}

// FilterByField lists entities whose field equals value.
func (r *BaseCRUDRepository[T]) FilterByField(field string, value interface{}, limit, offset int) ([]T, error) {
	var entities []T
	query := r.db.Where(fmt.Sprintf("%s = ?", field), value).Order("id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Find(&entities).Error; err != nil {
		return nil, WrapDBError("filter", r.tableName, err)
	}
	return entities, nil
}

// FindOneByField returns the single entity whose field equals value.
func (r *BaseCRUDRepository[T]) FindOneByField(field string, value interface{}) (*T, error) {
	var entity T
	err := r.db.Where(fmt.Sprintf("%s = ?", field), value).First(&entity).Error
	if err != nil {
		return nil, HandleDBError("get", r.tableName, fmt.Sprintf("%s '%v'", field, value), err)
	}
	return &entity, nil
}

func (r *BaseCRUDRepository[T]) checkEntityExists(db *gorm.DB, id uint) error {
	var count int64
	if err := db.Model(new(T)).Where("id = ?", id).Count(&count).Error; err != nil {
		return WrapDBError("check existence", r.tableName, err)
	}
	if count == 0 {
		return NewEntityNotFoundError(r.tableName, fmt.Sprintf("ID %d", id))
	}
	return nil
}
