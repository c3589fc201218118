package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"zkteco-hub/config"
	"zkteco-hub/logging"
	"zkteco-hub/models"
	"zkteco-hub/repositories"
	"zkteco-hub/repositories/interfaces"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// gormLogger adapts zerolog to be used as a GORM logger.
type gormLogger struct {
	log   zerolog.Logger
	level logger.LogLevel
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	clone := *l
	clone.level = level
	return &clone
}
func (l *gormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Info {
		l.log.Info().Interface("gorm_data", data).Msg(msg)
	}
}
func (l *gormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Warn {
		l.log.Warn().Interface("gorm_data", data).Msg(msg)
	}
}
func (l *gormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Error {
		l.log.Error().Interface("gorm_data", data).Msg(msg)
	}
}
func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= logger.Error:
		l.log.Error().Err(err).Dur("latency", elapsed).Str("sql", sql).Int64("rows_affected", rows).Msg("GORM Trace")
	case elapsed > slowQueryThreshold && l.level >= logger.Warn:
		l.log.Warn().Dur("latency", elapsed).Str("sql", sql).Int64("rows_affected", rows).Msg("GORM slow query")
	case l.level >= logger.Info:
		l.log.Debug().Dur("latency", elapsed).Str("sql", sql).Int64("rows_affected", rows).Msg("GORM Trace")
	}
}

func parseGormLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

// Database holds the DB connection, all repository instances, and the UnitOfWork.
type Database struct {
	DB               *gorm.DB
	UoW              UnitOfWorkInterface
	ClientRepo       interfaces.ClientRepositoryInterface
	DeviceRepo       interfaces.DeviceRepositoryInterface
	AttendanceRepo   interfaces.AttendanceRepositoryInterface
	OperationLogRepo interfaces.OperationLogRepositoryInterface
	CommandRepo      interfaces.CommandRepositoryInterface
	TaskRepo         interfaces.ScheduledTaskRepositoryInterface
}

// NewDatabase opens the configured driver, migrates the schema and
// initializes repositories.
func NewDatabase(cfg config.DatabaseConfig, appLogger zerolog.Logger) (*Database, error) {
	dbLogger := logging.Component(appLogger, "database")

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dbLogger.Info().Str("path", cfg.Path).Msg("Opening SQLite database...")
		dialector = sqlite.Open(cfg.Path)
	default:
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
			cfg.Host, cfg.User, cfg.Password, cfg.Name, cfg.Port, cfg.SSLMode, cfg.TimeZone)
		dbLogger.Info().Str("host", cfg.Host).Str("port", cfg.Port).Str("user", cfg.User).Msg("Connecting to database...")
		dialector = postgres.Open(dsn)
	}

	gormConfig := &gorm.Config{
		Logger: (&gormLogger{log: dbLogger}).LogMode(parseGormLevel(cfg.LogLevel)),
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.Driver == "sqlite" {
		// One writer at a time; an in-memory database also lives only as
		// long as its single connection.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access sql.DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	dbLogger.Info().Msg("Database connected successfully")

	if err := Migrate(db); err != nil {
		return nil, err
	}
	dbLogger.Info().Msg("Database migration completed successfully")

	return New(db), nil
}

// Migrate creates or updates every table the hub uses.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Client{},
		&models.Device{},
		&models.AttendanceEvent{},
		&models.OperationLog{},
		&models.DeviceCommand{},
		&models.ScheduledTask{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// New wires repositories around an already opened connection.
func New(db *gorm.DB) *Database {
	return &Database{
		DB:               db,
		UoW:              NewUnitOfWork(db),
		ClientRepo:       repositories.NewClientRepository(db),
		DeviceRepo:       repositories.NewDeviceRepository(db),
		AttendanceRepo:   repositories.NewAttendanceRepository(db),
		OperationLogRepo: repositories.NewOperationLogRepository(db),
		CommandRepo:      repositories.NewCommandRepository(db),
		TaskRepo:         repositories.NewScheduledTaskRepository(db),
	}
}

// Ping checks connectivity for the health endpoint.
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
