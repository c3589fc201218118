package database

import (
	"gorm.io/gorm"
)

// UnitOfWorkInterface defines the contract for our unit of work.
// It abstracts the transaction handling logic from the business layer.
type UnitOfWorkInterface interface {
	Begin() *gorm.DB
	Commit(tx *gorm.DB) error
	Rollback(tx *gorm.DB)
	// DB returns the non-transactional handle for single-statement writes.
	DB() *gorm.DB
	// Transaction runs fn in a transaction, rolling back when fn fails.
	Transaction(fn func(tx *gorm.DB) error) error
}

// unitOfWork implements the UnitOfWorkInterface.
type unitOfWork struct {
	db *gorm.DB
}

// NewUnitOfWork creates a new UnitOfWork.
func NewUnitOfWork(db *gorm.DB) UnitOfWorkInterface {
	return &unitOfWork{db: db}
}

// Begin starts a new transaction.
func (uow *unitOfWork) Begin() *gorm.DB {
	return uow.db.Begin()
}

// Commit commits the transaction.
func (uow *unitOfWork) Commit(tx *gorm.DB) error {
	return tx.Commit().Error
}

// Rollback rolls back the transaction.
func (uow *unitOfWork) Rollback(tx *gorm.DB) {
	// Only roll back if the transaction hasn't been committed or already rolled back.
	if tx.Error == nil {
		tx.Rollback()
	}
}

func (uow *unitOfWork) DB() *gorm.DB {
	return uow.db
}

func (uow *unitOfWork) Transaction(fn func(tx *gorm.DB) error) error {
	tx := uow.Begin()
	if tx.Error != nil {
		return tx.Error
	}
	defer func() {
		if r := recover(); r != nil {
			uow.Rollback(tx)
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		uow.Rollback(tx)
		return err
	}
	return uow.Commit(tx)
}
