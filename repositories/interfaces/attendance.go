package interfaces

import (
	"time"

	"zkteco-hub/models"

	"gorm.io/gorm"
)

// AttendanceRepositoryInterface defines the contract for attendance events
// and operation logs.
type AttendanceRepositoryInterface interface {
	// CreateIfAbsent inserts the event unless its (serial, PIN, device time)
	// key already exists. It reports whether a row was inserted.
	CreateIfAbsent(tx *gorm.DB, event *models.AttendanceEvent) (bool, error)

	GetEvent(id uint) (*models.AttendanceEvent, error)
	ListEvents(query models.EventQuery) ([]models.AttendanceEvent, error)

	// ListPending returns events not yet forwarded, oldest first.
	ListPending(limit int) ([]models.AttendanceEvent, error)
	CountPending() (int64, error)

	// MarkForwarded sets forwarded=true and clears any previous error.
	MarkForwarded(tx *gorm.DB, id uint, at time.Time) error

	// MarkForwardError records the final failure of a delivery attempt.
	MarkForwardError(tx *gorm.DB, id uint, message string) error
}

// OperationLogRepositoryInterface defines the contract for OPERLOG lines.
type OperationLogRepositoryInterface interface {
	CreateLogs(tx *gorm.DB, logs []models.OperationLog) error
	ListLogs(serial string, limit int) ([]models.OperationLog, error)
}
