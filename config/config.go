package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the YAML config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Redis      RedisConfig      `koanf:"redis"`
	MQTT       MQTTConfig       `koanf:"mqtt"`
	Logging    LoggingConfig    `koanf:"logging"`
	Forwarding ForwardingConfig `koanf:"forwarding"`
	Scheduler  SchedulerConfig  `koanf:"scheduler"`
	Protocol   ProtocolConfig   `koanf:"protocol"`
	Security   SecurityConfig   `koanf:"security"`
}

type ServerConfig struct {
	Addr            string        `koanf:"addr" validate:"required"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver   string `koanf:"driver" validate:"oneof=postgres sqlite"`
	Host     string `koanf:"host"`
	Port     string `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Name     string `koanf:"name"`
	SSLMode  string `koanf:"sslmode"`
	TimeZone string `koanf:"timezone"`
	// Path is the SQLite file; ":memory:" keeps everything in process.
	Path     string `koanf:"path"`
	LogLevel string `koanf:"log_level" validate:"oneof=silent error warn info"`
}

type RedisConfig struct {
	Host      string `koanf:"host"`
	Port      string `koanf:"port"`
	Password  string `koanf:"password"`
	DB        int    `koanf:"db"`
	KeyPrefix string `koanf:"key_prefix"`
}

// Enabled reports whether a Redis server is configured.
func (r RedisConfig) Enabled() bool { return r.Host != "" }

func (r RedisConfig) Addr() string { return fmt.Sprintf("%s:%s", r.Host, r.Port) }

type MQTTConfig struct {
	Broker      string `koanf:"broker"`
	ClientID    string `koanf:"client_id"`
	Username    string `koanf:"username"`
	Password    string `koanf:"password"`
	TopicPrefix string `koanf:"topic_prefix"`
	QoS         int    `koanf:"qos" validate:"min=0,max=2"`
}

// Enabled reports whether events should be published to a broker.
func (m MQTTConfig) Enabled() bool { return m.Broker != "" }

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

type ForwardingConfig struct {
	Workers              int           `koanf:"workers" validate:"min=1"`
	QueueSize            int           `koanf:"queue_size" validate:"min=1"`
	AttemptTimeout       time.Duration `koanf:"attempt_timeout" validate:"gt=0"`
	DefaultRetryAttempts int           `koanf:"default_retry_attempts" validate:"min=1"`
	DefaultRetryDelay    time.Duration `koanf:"default_retry_delay"`
	// BreakerFailures opens a per-URL breaker after that many consecutive
	// failures. Zero disables it.
	BreakerFailures      uint32        `koanf:"breaker_failures"`
	BreakerTimeout       time.Duration `koanf:"breaker_timeout"`
	UserAgent            string        `koanf:"user_agent"`
}

type SchedulerConfig struct {
	Enabled      bool          `koanf:"enabled"`
	TickInterval time.Duration `koanf:"tick_interval" validate:"gt=0"`
	LockTTL      time.Duration `koanf:"lock_ttl"`
	Timezone     string        `koanf:"timezone"`
}

// Location resolves the scheduler time zone, defaulting to the process
// local zone.
func (s SchedulerConfig) Location() (*time.Location, error) {
	if s.Timezone == "" || strings.EqualFold(s.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(s.Timezone)
}

type ProtocolConfig struct {
	ErrorDelay    int           `koanf:"error_delay"`
	Delay         int           `koanf:"delay"`
	TransTimes    string        `koanf:"trans_times"`
	TransInterval int           `koanf:"trans_interval"`
	TransFlag     string        `koanf:"trans_flag"`
	Realtime      bool          `koanf:"realtime"`
	Encrypt       bool          `koanf:"encrypt"`
	ServerVersion string        `koanf:"server_version"`
	TimeZone      string        `koanf:"timezone"`
	LogCapacity   int           `koanf:"log_capacity" validate:"min=1"`
	OnlineWindow  time.Duration `koanf:"online_window"`
}

type SecurityConfig struct {
	SessionSecret string `koanf:"session_secret" validate:"required"`
}

// Default returns the built-in configuration every layer is applied on.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:   "postgres",
			Host:     "localhost",
			Port:     "5432",
			User:     "postgres",
			Password: "password",
			Name:     "zkteco_hub",
			SSLMode:  "disable",
			TimeZone: "UTC",
			Path:     "zkteco-hub.db",
			LogLevel: "warn",
		},
		Redis: RedisConfig{
			Port:      "6379",
			KeyPrefix: "zkhub",
		},
		MQTT: MQTTConfig{
			ClientID:    "zkteco-hub",
			TopicPrefix: "zkteco",
			QoS:         1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Forwarding: ForwardingConfig{
			Workers:              4,
			QueueSize:            1024,
			AttemptTimeout:       15 * time.Second,
			DefaultRetryAttempts: 3,
			DefaultRetryDelay:    5 * time.Second,
			BreakerFailures:      0,
			BreakerTimeout:       60 * time.Second,
			UserAgent:            "zkteco-hub/1.0",
		},
		Scheduler: SchedulerConfig{
			Enabled:      true,
			TickInterval: 30 * time.Second,
			LockTTL:      25 * time.Second,
			Timezone:     "Local",
		},
		Protocol: ProtocolConfig{
			ErrorDelay:    60,
			Delay:         30,
			TransTimes:    "00:00;14:05",
			TransInterval: 1,
			TransFlag:     "TransData AttLog\tOpLog\tAttPhoto\tEnrollUser\tChgUser\tEnrollFP\tChgFP",
			Realtime:      true,
			Encrypt:       false,
			ServerVersion: "2.0.1",
			LogCapacity:   500,
			OnlineWindow:  5 * time.Minute,
		},
	}
}

// Load reads configuration in layers: defaults, then the optional YAML file
// at path (or $CONFIG_PATH), then environment variables. A .env file in the
// working directory is loaded into the environment first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv(ConfigPathEnvVar)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if _, err := c.Scheduler.Location(); err != nil {
		return fmt.Errorf("scheduler.timezone: %w", err)
	}
	return nil
}

var envMappings = map[string]string{
	"http_addr":                "server.addr",
	"http_read_timeout":        "server.read_timeout",
	"http_write_timeout":       "server.write_timeout",
	"http_shutdown_timeout":    "server.shutdown_timeout",
	"db_driver":                "database.driver",
	"db_host":                  "database.host",
	"db_port":                  "database.port",
	"db_user":                  "database.user",
	"db_password":              "database.password",
	"db_name":                  "database.name",
	"db_sslmode":               "database.sslmode",
	"db_timezone":              "database.timezone",
	"db_path":                  "database.path",
	"db_log_level":             "database.log_level",
	"redis_host":               "redis.host",
	"redis_port":               "redis.port",
	"redis_password":           "redis.password",
	"redis_db":                 "redis.db",
	"redis_key_prefix":         "redis.key_prefix",
	"mqtt_broker":              "mqtt.broker",
	"mqtt_client_id":           "mqtt.client_id",
	"mqtt_username":            "mqtt.username",
	"mqtt_password":            "mqtt.password",
	"mqtt_topic_prefix":        "mqtt.topic_prefix",
	"mqtt_qos":                 "mqtt.qos",
	"log_level":                "logging.level",
	"log_format":               "logging.format",
	"forward_workers":          "forwarding.workers",
	"forward_queue_size":       "forwarding.queue_size",
	"forward_attempt_timeout":  "forwarding.attempt_timeout",
	"forward_retry_attempts":   "forwarding.default_retry_attempts",
	"forward_retry_delay":      "forwarding.default_retry_delay",
	"forward_breaker_failures": "forwarding.breaker_failures",
	"forward_breaker_timeout":  "forwarding.breaker_timeout",
	"scheduler_enabled":        "scheduler.enabled",
	"scheduler_tick_interval":  "scheduler.tick_interval",
	"scheduler_lock_ttl":       "scheduler.lock_ttl",
	"scheduler_timezone":       "scheduler.timezone",
	"push_error_delay":         "protocol.error_delay",
	"push_delay":               "protocol.delay",
	"push_trans_times":         "protocol.trans_times",
	"push_trans_interval":      "protocol.trans_interval",
	"push_realtime":            "protocol.realtime",
	"push_server_version":      "protocol.server_version",
	"push_timezone":            "protocol.timezone",
	"protocol_log_capacity":    "protocol.log_capacity",
	"device_online_window":     "protocol.online_window",
	"session_secret":           "security.session_secret",
}

// envTransformFunc maps DB_HOST style variables to koanf paths. Unmapped and
// empty variables are skipped so they do not clobber file values.
func envTransformFunc(key, value string) (string, interface{}) {
	if value == "" {
		return "", nil
	}
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped, value
	}
	return "", nil
}
