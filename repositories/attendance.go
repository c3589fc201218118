package repositories

import (
	"fmt"
	"time"

	"zkteco-hub/models"
	"zkteco-hub/repositories/base"
	"zkteco-hub/repositories/interfaces"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultEventLimit = 500
	maxEventLimit     = 5000
)

// AttendanceRepository implements AttendanceRepositoryInterface.
type AttendanceRepository struct {
	db *gorm.DB
}

// NewAttendanceRepository creates a new instance of AttendanceRepository.
func NewAttendanceRepository(db *gorm.DB) interfaces.AttendanceRepositoryInterface {
	return &AttendanceRepository{db: db}
}

// CreateIfAbsent relies on the unique dedup index: a conflicting insert is
// dropped by the database, so concurrent uploads of the same line cannot
// both land.
func (ar *AttendanceRepository) CreateIfAbsent(tx *gorm.DB, event *models.AttendanceEvent) (bool, error) {
	result := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_serial"}, {Name: "pin"}, {Name: "device_time"}},
		DoNothing: true,
	}).Create(event)
	if result.Error != nil {
		return false, base.WrapDBError("create", "attendance_events", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (ar *AttendanceRepository) GetEvent(id uint) (*models.AttendanceEvent, error) {
	var event models.AttendanceEvent
	if err := ar.db.First(&event, id).Error; err != nil {
		return nil, base.HandleDBError("get", "attendance_events", fmt.Sprintf("ID %d", id), err)
	}
	return &event, nil
}

func (ar *AttendanceRepository) ListEvents(q models.EventQuery) ([]models.AttendanceEvent, error) {
	var events []models.AttendanceEvent
	query := ar.db.Order("id desc")
	if q.ClientID != 0 {
		query = query.Where("device_serial IN (?)",
			ar.db.Model(&models.Device{}).Select("serial_number").Where("client_id = ?", q.ClientID))
	}
	if q.DeviceSerial != "" {
		query = query.Where("device_serial = ?", q.DeviceSerial)
	}
	if q.Forwarded != nil {
		query = query.Where("forwarded = ?", *q.Forwarded)
	}
	limit := q.Limit
	if limit > maxEventLimit {
		limit = maxEventLimit
	}
	if err := applyLimit(query, limit, defaultEventLimit).Find(&events).Error; err != nil {
		return nil, base.WrapDBError("list", "attendance_events", err)
	}
	return events, nil
}

func (ar *AttendanceRepository) ListPending(limit int) ([]models.AttendanceEvent, error) {
	var events []models.AttendanceEvent
	query := ar.db.Where("forwarded = ?", false).Order("id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&events).Error; err != nil {
		return nil, base.WrapDBError("list pending", "attendance_events", err)
	}
	return events, nil
}

func (ar *AttendanceRepository) CountPending() (int64, error) {
	var count int64
	if err := ar.db.Model(&models.AttendanceEvent{}).Where("forwarded = ?", false).Count(&count).Error; err != nil {
		return 0, base.WrapDBError("count pending", "attendance_events", err)
	}
	return count, nil
}

func (ar *AttendanceRepository) MarkForwarded(tx *gorm.DB, id uint, at time.Time) error {
	return requireRow(
		tx.Model(&models.AttendanceEvent{}).Where("id = ?", id).Updates(map[string]interface{}{
			"forwarded":     true,
			"forwarded_at":  at,
			"forward_error": nil,
		}),
		"attendance_events", fmt.Sprintf("ID %d", id),
	)
}

func (ar *AttendanceRepository) MarkForwardError(tx *gorm.DB, id uint, message string) error {
	return requireRow(
		tx.Model(&models.AttendanceEvent{}).Where("id = ?", id).Update("forward_error", message),
		"attendance_events", fmt.Sprintf("ID %d", id),
	)
}

// OperationLogRepository implements OperationLogRepositoryInterface.
type OperationLogRepository struct {
	db *gorm.DB
}

func NewOperationLogRepository(db *gorm.DB) interfaces.OperationLogRepositoryInterface {
	return &OperationLogRepository{db: db}
}

func (or *OperationLogRepository) CreateLogs(tx *gorm.DB, logs []models.OperationLog) error {
	if len(logs) == 0 {
		return nil
	}
	if err := tx.Create(&logs).Error; err != nil {
		return base.WrapDBError("create", "operation_logs", err)
	}
	return nil
}

func (or *OperationLogRepository) ListLogs(serial string, limit int) ([]models.OperationLog, error) {
	var logs []models.OperationLog
	query := or.db.Order("id desc")
	if serial != "" {
		query = query.Where("device_serial = ?", serial)
	}
	if err := applyLimit(query, limit, defaultEventLimit).Find(&logs).Error; err != nil {
		return nil, base.WrapDBError("list", "operation_logs", err)
	}
	return logs, nil
}
