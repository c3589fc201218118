package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"zkteco-hub/config"
	"zkteco-hub/database"
	"zkteco-hub/metrics"
	"zkteco-hub/models"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const (
	schedulerLockName = "scheduler"
	dueBatchSize      = 200
)

// errTaskMoved rolls back a run whose task was advanced by another writer.
var errTaskMoved = errors.New("scheduled task already advanced")

// Scheduler materializes due tasks into queued device commands. Ticks never
// overlap inside a process; the shared lock keeps replicas from running the
// same tick, and the compare-and-set on next_run_at keeps a task from firing
// twice even when the lock expires mid-tick.
type Scheduler struct {
	db       *database.Database
	commands *CommandService
	locker   Locker
	cfg      config.SchedulerConfig
	loc      *time.Location
	logger   zerolog.Logger
	now      func() time.Time

	mu sync.Mutex
}

func NewScheduler(db *database.Database, commands *CommandService, locker Locker, cfg config.SchedulerConfig,
	loc *time.Location, logger zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 30 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = cfg.TickInterval
	}
	return &Scheduler{
		db:       db,
		commands: commands,
		locker:   locker,
		cfg:      cfg,
		loc:      loc,
		logger:   logger.With().Str("component", "scheduler").Logger(),
		now:      time.Now,
	}
}

// Tick runs every task due at the current time and returns how many fired.
// A tick that finds another one in progress returns immediately.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	if !s.mu.TryLock() {
		metrics.SchedulerTicks.WithLabelValues("overlap").Inc()
		return 0, nil
	}
	defer s.mu.Unlock()

	if s.locker != nil {
		token, ok, err := s.locker.AcquireLock(ctx, schedulerLockName, s.cfg.LockTTL)
		if err != nil {
			metrics.SchedulerTicks.WithLabelValues("error").Inc()
			return 0, err
		}
		if !ok {
			metrics.SchedulerTicks.WithLabelValues("locked").Inc()
			s.logger.Debug().Msg("Scheduler lock held elsewhere, skipping tick")
			return 0, nil
		}
		defer func() {
			if err := s.locker.ReleaseLock(context.Background(), schedulerLockName, token); err != nil {
				s.logger.Warn().Err(err).Msg("Failed to release scheduler lock")
			}
		}()
	}

	now := s.now()
	due, err := s.db.TaskRepo.ListDueTasks(now, dueBatchSize)
	if err != nil {
		metrics.SchedulerTicks.WithLabelValues("error").Inc()
		return 0, err
	}

	fired := 0
	for i := range due {
		if ctx.Err() != nil {
			break
		}
		if s.runTask(&due[i], now) {
			fired++
		}
	}
	metrics.SchedulerTicks.WithLabelValues("ok").Inc()
	if fired > 0 {
		s.logger.Info().Int("due", len(due)).Int("fired", fired).Msg("Scheduler tick completed")
	}
	return fired, nil
}

// runTask queues one task's command and advances the task in the same
// transaction. A task whose command no longer encodes is left untouched.
func (s *Scheduler) runTask(task *models.ScheduledTask, now time.Time) bool {
	logger := s.logger.With().Uint("task_id", task.ID).Str("serial", task.DeviceSerial).Logger()

	command, err := s.commands.Build(task.CommandType, []byte(task.CommandParams))
	if err != nil {
		metrics.ScheduledRuns.WithLabelValues("invalid").Inc()
		logger.Error().Err(err).Str("command_type", task.CommandType).Msg("Scheduled command does not encode, skipping")
		return false
	}

	next, err := NextRun(task, now, s.loc)
	if err != nil {
		metrics.ScheduledRuns.WithLabelValues("invalid").Inc()
		logger.Error().Err(err).Msg("Failed to compute next run, skipping")
		return false
	}
	enabled := next != nil

	err = s.db.UoW.Transaction(func(tx *gorm.DB) error {
		ok, err := s.db.TaskRepo.AdvanceTask(tx, task.ID, *task.NextRunAt, now, next, enabled)
		if err != nil {
			return err
		}
		if !ok {
			return errTaskMoved
		}
		_, err = s.commands.EnqueueTx(tx, task.DeviceSerial, command, OriginScheduler)
		return err
	})
	switch {
	case errors.Is(err, errTaskMoved):
		metrics.ScheduledRuns.WithLabelValues("skipped").Inc()
		logger.Debug().Msg("Task advanced by another writer")
		return false
	case err != nil:
		metrics.ScheduledRuns.WithLabelValues("error").Inc()
		logger.Error().Err(err).Msg("Failed to run scheduled task")
		return false
	}

	metrics.ScheduledRuns.WithLabelValues("fired").Inc()
	event := logger.Info().Str("command_type", task.CommandType)
	if next != nil {
		event = event.Time("next_run_at", *next)
	} else {
		event = event.Bool("disabled", true)
	}
	event.Msg("Scheduled task fired")
	return true
}

// Serve ticks until ctx is canceled. The first tick runs immediately.
func (s *Scheduler) Serve(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.cfg.TickInterval).Str("timezone", s.loc.String()).Msg("Scheduler started")

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("Scheduler tick failed")
		}
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) String() string { return "scheduler" }
