package handlers

import (
	"zkteco-hub/handlers/base"
	"zkteco-hub/models"
	"zkteco-hub/services"

	"github.com/labstack/echo/v4"
)

type TaskHandler struct {
	tasks *services.TaskService
}

func NewTaskHandler(tasks *services.TaskService) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

// enabledRequest toggles a task without touching its schedule.
type enabledRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

func (h *TaskHandler) ListTasks(c echo.Context) error {
	tasks, err := h.tasks.List(base.ExtractOptionalStringParam(c, "serial", ""))
	return base.SendResult(c, tasks, err)
}

func (h *TaskHandler) GetTask(c echo.Context) error {
	id, err := base.ExtractID(c)
	if err != nil {
		return err
	}
	task, err := h.tasks.Get(id)
	return base.SendResult(c, task, err)
}

func (h *TaskHandler) CreateTask(c echo.Context) error {
	var req models.ScheduledTaskRequest
	if err := base.BindAndValidateJSON(c, &req); err != nil {
		return err
	}
	task, err := h.tasks.Create(&req)
	return base.SendCreationResult(c, task, err)
}

// UpdateTask replaces the task definition and recomputes its next run.
func (h *TaskHandler) UpdateTask(c echo.Context) error {
	id, err := base.ExtractID(c)
	if err != nil {
		return err
	}
	var req models.ScheduledTaskRequest
	if err := base.BindAndValidateJSON(c, &req); err != nil {
		return err
	}
	task, err := h.tasks.Update(id, &req)
	return base.SendResult(c, task, err)
}

func (h *TaskHandler) SetTaskEnabled(c echo.Context) error {
	id, err := base.ExtractID(c)
	if err != nil {
		return err
	}
	var req enabledRequest
	if err := base.BindAndValidateJSON(c, &req); err != nil {
		return err
	}
	task, err := h.tasks.SetEnabled(id, *req.Enabled)
	return base.SendResult(c, task, err)
}

func (h *TaskHandler) DeleteTask(c echo.Context) error {
	id, err := base.ExtractID(c)
	if err != nil {
		return err
	}
	return base.SendDeletionResult(c, h.tasks.Delete(id))
}
