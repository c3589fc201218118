package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"zkteco-hub/config"
	"zkteco-hub/database"
	"zkteco-hub/logging"
	"zkteco-hub/models"
	"zkteco-hub/protocol"
	"zkteco-hub/redis"
	"zkteco-hub/repositories/base"
)

type schedulerFixture struct {
	db        *database.Database
	commands  *CommandService
	tasks     *TaskService
	scheduler *Scheduler
	locks     *redis.MemoryStore
}

func newSchedulerFixture(t *testing.T, now time.Time) *schedulerFixture {
	t.Helper()
	db := openTestDB(t)
	seedDevice(t, db, "SN1", nil)

	commands := NewCommandService(db, logging.Nop())
	tasks := NewTaskService(db, commands, time.UTC, logging.Nop())
	tasks.now = fixedClock(now)

	locks := redis.NewMemoryStore()
	scheduler := NewScheduler(db, commands, locks, config.SchedulerConfig{
		TickInterval: time.Minute,
		LockTTL:      time.Minute,
	}, time.UTC, logging.Nop())

	return &schedulerFixture{db: db, commands: commands, tasks: tasks, scheduler: scheduler, locks: locks}
}

func (f *schedulerFixture) tickAt(t *testing.T, at time.Time) int {
	t.Helper()
	f.scheduler.now = fixedClock(at)
	fired, err := f.scheduler.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	return fired
}

func (f *schedulerFixture) pending(t *testing.T) []protocol.PendingLine {
	t.Helper()
	lines, err := f.commands.Drain("SN1")
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	return lines
}

func TestSchedulerIntervalTask(t *testing.T) {
	f := newSchedulerFixture(t, monday0800)

	task, err := f.tasks.Create(&models.ScheduledTaskRequest{
		Name:            "sync clock",
		DeviceSerial:    "SN1",
		CommandType:     "check",
		ScheduleType:    models.ScheduleInterval,
		IntervalMinutes: 15,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if want := monday0800.Add(15 * time.Minute); !task.NextRunAt.Equal(want) {
		t.Fatalf("first run = %v, want %v", task.NextRunAt, want)
	}

	if fired := f.tickAt(t, monday0800.Add(10*time.Minute)); fired != 0 {
		t.Fatalf("fired %d before due", fired)
	}

	runAt := monday0800.Add(16 * time.Minute)
	if fired := f.tickAt(t, runAt); fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
	lines := f.pending(t)
	if len(lines) != 1 || lines[0].Command != "CHECK" {
		t.Fatalf("pending = %+v", lines)
	}

	stored, err := f.tasks.Get(task.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if want := runAt.Add(15 * time.Minute); stored.NextRunAt == nil || !stored.NextRunAt.Equal(want) {
		t.Fatalf("next run = %v, want %v", stored.NextRunAt, want)
	}
	if stored.LastRunAt == nil || !stored.LastRunAt.Equal(runAt) || !stored.Enabled {
		t.Fatalf("task after run = %+v", stored)
	}

	// Same instant again: nothing is due any more.
	if fired := f.tickAt(t, runAt); fired != 0 {
		t.Fatalf("fired %d on a repeated tick", fired)
	}
}

func TestSchedulerOneTimeTaskDisables(t *testing.T) {
	f := newSchedulerFixture(t, monday0800)
	runAt := monday0800.Add(5 * time.Minute)

	task, err := f.tasks.Create(&models.ScheduledTaskRequest{
		DeviceSerial:  "SN1",
		CommandType:   "DATA_DEL_USER",
		CommandParams: json.RawMessage(`{"pin":"42"}`),
		ScheduleType:  models.ScheduleOneTime,
		RunAt:         &runAt,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if fired := f.tickAt(t, monday0800.Add(6*time.Minute)); fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
	stored, err := f.tasks.Get(task.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Enabled || stored.NextRunAt != nil {
		t.Fatalf("one_time task should be disabled after firing: %+v", stored)
	}
	if fired := f.tickAt(t, monday0800.Add(time.Hour)); fired != 0 {
		t.Fatalf("one_time task fired again")
	}
	if lines := f.pending(t); len(lines) != 1 {
		t.Fatalf("pending = %+v", lines)
	}
}

func TestSchedulerSkipsWhenLockHeld(t *testing.T) {
	f := newSchedulerFixture(t, monday0800)
	if _, err := f.tasks.Create(&models.ScheduledTaskRequest{
		DeviceSerial: "SN1", CommandType: "REBOOT", ScheduleType: models.ScheduleInterval, IntervalMinutes: 1,
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	token, ok, err := f.locks.AcquireLock(context.Background(), "scheduler", time.Minute)
	if err != nil || !ok {
		t.Fatalf("AcquireLock: ok=%v err=%v", ok, err)
	}
	if fired := f.tickAt(t, monday0800.Add(2*time.Minute)); fired != 0 {
		t.Fatalf("fired %d while another replica holds the lock", fired)
	}

	if err := f.locks.ReleaseLock(context.Background(), "scheduler", token); err != nil {
		t.Fatalf("ReleaseLock: %v", err)
	}
	if fired := f.tickAt(t, monday0800.Add(2*time.Minute)); fired != 1 {
		t.Fatalf("fired = %d after the lock was released", fired)
	}
}

func TestSchedulerOverlappingTicksFireOnce(t *testing.T) {
	f := newSchedulerFixture(t, monday0800)
	if _, err := f.tasks.Create(&models.ScheduledTaskRequest{
		DeviceSerial: "SN1", CommandType: "REBOOT", ScheduleType: models.ScheduleInterval, IntervalMinutes: 1,
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// No external lock: only the in-process guard and the task CAS apply.
	scheduler := NewScheduler(f.db, f.commands, nil, config.SchedulerConfig{
		TickInterval: time.Minute,
	}, time.UTC, logging.Nop())
	scheduler.now = fixedClock(monday0800.Add(2 * time.Minute))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := scheduler.Tick(context.Background()); err != nil {
				t.Errorf("Tick: %v", err)
			}
		}()
	}
	wg.Wait()

	if lines := f.pending(t); len(lines) != 1 {
		t.Fatalf("queued %d commands, want 1: %+v", len(lines), lines)
	}
}

func TestSchedulerRunTaskCompareAndSet(t *testing.T) {
	f := newSchedulerFixture(t, monday0800)
	task, err := f.tasks.Create(&models.ScheduledTaskRequest{
		DeviceSerial: "SN1", CommandType: "REBOOT", ScheduleType: models.ScheduleDaily, TimeOfDay: "09:00",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Two replicas holding the same snapshot of the due task.
	snapshot := *task
	now := monday0800.Add(90 * time.Minute)
	if !f.scheduler.runTask(&snapshot, now) {
		t.Fatal("first run should fire")
	}
	if f.scheduler.runTask(&snapshot, now) {
		t.Fatal("stale snapshot should not fire")
	}
	if lines := f.pending(t); len(lines) != 1 {
		t.Fatalf("pending = %d, want 1", len(lines))
	}
}

func TestTaskCreateValidation(t *testing.T) {
	f := newSchedulerFixture(t, monday0800)

	_, err := f.tasks.Create(&models.ScheduledTaskRequest{
		DeviceSerial: "NOPE", CommandType: "REBOOT", ScheduleType: models.ScheduleInterval, IntervalMinutes: 5,
	})
	if !base.IsEntityNotFound(err) {
		t.Fatalf("unknown device: got %v", err)
	}

	_, err = f.tasks.Create(&models.ScheduledTaskRequest{
		DeviceSerial: "SN1", CommandType: "SELF_DESTRUCT", ScheduleType: models.ScheduleInterval, IntervalMinutes: 5,
	})
	if !errors.Is(err, protocol.ErrUnknownCommand) {
		t.Fatalf("unknown command: got %v", err)
	}

	_, err = f.tasks.Create(&models.ScheduledTaskRequest{
		DeviceSerial: "SN1", CommandType: "REBOOT", CommandParams: json.RawMessage(`[1,2]`),
		ScheduleType: models.ScheduleInterval, IntervalMinutes: 5,
	})
	if !base.IsValidationError(err) {
		t.Fatalf("non-object params: got %v", err)
	}

	_, err = f.tasks.Create(&models.ScheduledTaskRequest{
		DeviceSerial: "SN1", CommandType: "REBOOT", ScheduleType: models.ScheduleWeekly, TimeOfDay: "08:00",
	})
	if !base.IsValidationError(err) {
		t.Fatalf("weekly without days: got %v", err)
	}

	if tasks, _ := f.tasks.List(""); len(tasks) != 0 {
		t.Fatalf("no task should have been stored, got %d", len(tasks))
	}
}

func TestTaskUpdateAndToggle(t *testing.T) {
	f := newSchedulerFixture(t, monday0800)
	task, err := f.tasks.Create(&models.ScheduledTaskRequest{
		DeviceSerial: "SN1", CommandType: "REBOOT", ScheduleType: models.ScheduleDaily, TimeOfDay: "09:00",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, err := f.tasks.Update(task.ID, &models.ScheduledTaskRequest{
		DeviceSerial: "SN1", CommandType: "INFO", ScheduleType: models.ScheduleWeekly,
		TimeOfDay: "07:30", DaysOfWeek: []int{3, 1},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.DaysOfWeek != "1,3" || updated.CommandType != "INFO" {
		t.Fatalf("updated = %+v", updated)
	}
	if want := time.Date(2025, 1, 8, 7, 30, 0, 0, time.UTC); !updated.NextRunAt.Equal(want) {
		t.Fatalf("next run = %v, want %v", updated.NextRunAt, want)
	}

	disabled, err := f.tasks.SetEnabled(task.ID, false)
	if err != nil || disabled.Enabled {
		t.Fatalf("disable: %+v, %v", disabled, err)
	}
	if fired := f.tickAt(t, time.Date(2025, 1, 9, 0, 0, 0, 0, time.UTC)); fired != 0 {
		t.Fatalf("disabled task fired")
	}

	f.tasks.now = fixedClock(time.Date(2025, 1, 9, 0, 0, 0, 0, time.UTC))
	enabled, err := f.tasks.SetEnabled(task.ID, true)
	if err != nil || !enabled.Enabled {
		t.Fatalf("enable: %+v, %v", enabled, err)
	}
	if want := time.Date(2025, 1, 13, 7, 30, 0, 0, time.UTC); !enabled.NextRunAt.Equal(want) {
		t.Fatalf("next run after enabling = %v, want %v", enabled.NextRunAt, want)
	}

	if err := f.tasks.Delete(task.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.tasks.Get(task.ID); !base.IsEntityNotFound(err) {
		t.Fatalf("Get after delete: %v", err)
	}
}
