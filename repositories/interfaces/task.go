package interfaces

import (
	"time"

	"zkteco-hub/models"

	"gorm.io/gorm"
)

// ScheduledTaskRepositoryInterface defines the contract for scheduled
// command tasks.
type ScheduledTaskRepositoryInterface interface {
	CreateTask(tx *gorm.DB, task *models.ScheduledTask) (*models.ScheduledTask, error)
	GetTask(id uint) (*models.ScheduledTask, error)
	ListTasks(serial string) ([]models.ScheduledTask, error)
	UpdateTask(tx *gorm.DB, id uint, updates map[string]interface{}) (*models.ScheduledTask, error)
	DeleteTask(tx *gorm.DB, id uint) error

	// ListDueTasks returns enabled tasks with next_run_at <= now.
	ListDueTasks(now time.Time, limit int) ([]models.ScheduledTask, error)

	// AdvanceTask moves a task past a run, but only while its next_run_at
	// still equals expected. It reports false when another writer won.
	AdvanceTask(tx *gorm.DB, id uint, expected time.Time, ranAt time.Time, next *time.Time, enabled bool) (bool, error)
}
