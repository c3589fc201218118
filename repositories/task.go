package repositories

import (
	"time"

	"zkteco-hub/models"
	"zkteco-hub/repositories/base"
	"zkteco-hub/repositories/interfaces"

	"gorm.io/gorm"
)

// ScheduledTaskRepository implements ScheduledTaskRepositoryInterface.
type ScheduledTaskRepository struct {
	*base.BaseCRUDRepository[models.ScheduledTask]
	db *gorm.DB
}

// NewScheduledTaskRepository creates a new instance of ScheduledTaskRepository.
func NewScheduledTaskRepository(db *gorm.DB) interfaces.ScheduledTaskRepositoryInterface {
	return &ScheduledTaskRepository{
		BaseCRUDRepository: base.NewBaseCRUDRepository[models.ScheduledTask](db, "scheduled_tasks"),
		db:                 db,
	}
}

func (tr *ScheduledTaskRepository) CreateTask(tx *gorm.DB, task *models.ScheduledTask) (*models.ScheduledTask, error) {
	if err := tr.Create(tx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (tr *ScheduledTaskRepository) GetTask(id uint) (*models.ScheduledTask, error) {
	return tr.GetByID(id)
}

func (tr *ScheduledTaskRepository) ListTasks(serial string) ([]models.ScheduledTask, error) {
	if serial != "" {
		return tr.FilterByField("device_serial", serial, 0, 0)
	}
	return tr.ListWithPagination(0, 0, "id asc")
}

func (tr *ScheduledTaskRepository) UpdateTask(tx *gorm.DB, id uint, updates map[string]interface{}) (*models.ScheduledTask, error) {
	return tr.UpdateAndGet(tx, id, updates)
}

func (tr *ScheduledTaskRepository) DeleteTask(tx *gorm.DB, id uint) error {
	return tr.DeleteWithValidation(tx, id)
}

func (tr *ScheduledTaskRepository) ListDueTasks(now time.Time, limit int) ([]models.ScheduledTask, error) {
	var tasks []models.ScheduledTask
	query := tr.db.
		Where("enabled = ? AND next_run_at IS NOT NULL AND next_run_at <= ?", true, now.UTC()).
		Order("next_run_at asc, id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&tasks).Error; err != nil {
		return nil, base.WrapDBError("list due", "scheduled_tasks", err)
	}
	return tasks, nil
}

// AdvanceTask stores times in UTC so SQLite's textual comparison in
// ListDueTasks stays ordered.
func (tr *ScheduledTaskRepository) AdvanceTask(tx *gorm.DB, id uint, expected time.Time, ranAt time.Time, next *time.Time, enabled bool) (bool, error) {
	if next != nil {
		utc := next.UTC()
		next = &utc
	}
	result := tx.Model(&models.ScheduledTask{}).
		Where("id = ? AND next_run_at = ?", id, expected.UTC()).
		Updates(map[string]interface{}{
			"last_run_at": ranAt.UTC(),
			"next_run_at": next,
			"enabled":     enabled,
		})
	if result.Error != nil {
		return false, base.WrapDBError("advance", "scheduled_tasks", result.Error)
	}
	return result.RowsAffected > 0, nil
}
