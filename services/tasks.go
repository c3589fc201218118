package services

import (
	"strings"
	"time"

	"zkteco-hub/database"
	"zkteco-hub/models"
	"zkteco-hub/repositories/base"
	"zkteco-hub/utils"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// TaskService manages scheduled command tasks. Every create or edit checks
// that the command encodes and computes the first run.
type TaskService struct {
	db       *database.Database
	commands *CommandService
	loc      *time.Location
	logger   zerolog.Logger
	now      func() time.Time
}

func NewTaskService(db *database.Database, commands *CommandService, loc *time.Location, logger zerolog.Logger) *TaskService {
	if loc == nil {
		loc = time.Local
	}
	return &TaskService{
		db:       db,
		commands: commands,
		loc:      loc,
		logger:   logger.With().Str("component", "task_service").Logger(),
		now:      time.Now,
	}
}

// prepare validates req against the registry and the command encoder.
func (ts *TaskService) prepare(req *models.ScheduledTaskRequest) (*models.ScheduledTask, error) {
	if _, err := ts.db.DeviceRepo.GetDeviceBySerial(req.DeviceSerial); err != nil {
		return nil, err
	}

	params, err := utils.NormalizeJSONObject(req.CommandParams)
	if err != nil {
		return nil, base.NewValidationError("commandParams", string(req.CommandParams), "must be a JSON object")
	}
	if _, err := ts.commands.Build(strings.ToUpper(strings.TrimSpace(req.CommandType)), []byte(params)); err != nil {
		return nil, err
	}

	return buildTask(req, params, ts.now(), ts.loc)
}

func (ts *TaskService) Create(req *models.ScheduledTaskRequest) (*models.ScheduledTask, error) {
	task, err := ts.prepare(req)
	if err != nil {
		return nil, err
	}

	var created *models.ScheduledTask
	err = ts.db.UoW.Transaction(func(tx *gorm.DB) error {
		var err error
		created, err = ts.db.TaskRepo.CreateTask(tx, task)
		return err
	})
	if err != nil {
		return nil, err
	}

	ts.logger.Info().
		Uint("task_id", created.ID).
		Str("serial", created.DeviceSerial).
		Str("schedule", created.ScheduleType).
		Time("next_run_at", *created.NextRunAt).
		Msg("Scheduled task created")
	return created, nil
}

func (ts *TaskService) Get(id uint) (*models.ScheduledTask, error) {
	return ts.db.TaskRepo.GetTask(id)
}

// List returns tasks, all of them when serial is empty.
func (ts *TaskService) List(serial string) ([]models.ScheduledTask, error) {
	return ts.db.TaskRepo.ListTasks(serial)
}

// Update replaces a task's definition and recomputes its next run.
func (ts *TaskService) Update(id uint, req *models.ScheduledTaskRequest) (*models.ScheduledTask, error) {
	if _, err := ts.db.TaskRepo.GetTask(id); err != nil {
		return nil, err
	}
	task, err := ts.prepare(req)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"name":             task.Name,
		"device_serial":    task.DeviceSerial,
		"command_type":     task.CommandType,
		"command_params":   task.CommandParams,
		"schedule_type":    task.ScheduleType,
		"run_at":           task.RunAt,
		"interval_minutes": task.IntervalMinutes,
		"time_of_day":      task.TimeOfDay,
		"days_of_week":     task.DaysOfWeek,
		"enabled":          task.Enabled,
		"next_run_at":      task.NextRunAt,
	}

	var updated *models.ScheduledTask
	err = ts.db.UoW.Transaction(func(tx *gorm.DB) error {
		var err error
		updated, err = ts.db.TaskRepo.UpdateTask(tx, id, updates)
		return err
	})
	if err != nil {
		return nil, err
	}
	ts.logger.Info().Uint("task_id", id).Msg("Scheduled task updated")
	return updated, nil
}

// SetEnabled toggles a task. Enabling recomputes the next run from now; a
// one_time task whose moment has passed fires on the next tick.
func (ts *TaskService) SetEnabled(id uint, enabled bool) (*models.ScheduledTask, error) {
	task, err := ts.db.TaskRepo.GetTask(id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{"enabled": enabled}
	if enabled {
		next, err := FirstRun(task, ts.now(), ts.loc)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, base.NewValidationError("scheduleType", task.ScheduleType, "task has no next run")
		}
		updates["next_run_at"] = next
	}

	var updated *models.ScheduledTask
	err = ts.db.UoW.Transaction(func(tx *gorm.DB) error {
		var err error
		updated, err = ts.db.TaskRepo.UpdateTask(tx, id, updates)
		return err
	})
	if err != nil {
		return nil, err
	}
	ts.logger.Info().Uint("task_id", id).Bool("enabled", enabled).Msg("Scheduled task toggled")
	return updated, nil
}

func (ts *TaskService) Delete(id uint) error {
	err := ts.db.UoW.Transaction(func(tx *gorm.DB) error {
		return ts.db.TaskRepo.DeleteTask(tx, id)
	})
	if err != nil {
		return err
	}
	ts.logger.Info().Uint("task_id", id).Msg("Scheduled task deleted")
	return nil
}
