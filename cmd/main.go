package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"zkteco-hub/config"
	"zkteco-hub/database"
	"zkteco-hub/handlers"
	"zkteco-hub/logging"
	"zkteco-hub/mqtt"
	"zkteco-hub/protocol"
	"zkteco-hub/protolog"
	"zkteco-hub/redis"
	"zkteco-hub/secrets"
	"zkteco-hub/services"
	"zkteco-hub/supervisor"
	"zkteco-hub/transport"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "zkteco-hub: %v\n", err)
		os.Exit(1)
	}
}

// store is the contact registry and scheduler lock backend: Redis when
// configured, otherwise the in-process fallback.
type store interface {
	services.ContactStore
	services.Locker
	handlers.Pinger
	Close() error
}

func run() error {
	var configPath string
	var migrateOnly bool

	flagSet := pflag.NewFlagSet("zkteco-hub", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to YAML config file (default: $"+config.ConfigPathEnvVar+")")
	flagSet.BoolVar(&migrateOnly, "migrate-only", false, "apply database migrations and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)

	db, err := database.NewDatabase(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	if migrateOnly {
		logger.Info().Msg("Migrations applied")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := map[string]handlers.Pinger{"database": db}

	var kv store = redis.NewMemoryStore()
	if cfg.Redis.Enabled() {
		client, err := redis.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		kv = client
		checks["redis"] = client
		logger.Info().Str("addr", cfg.Redis.Addr()).Msg("Connected to Redis")
	} else {
		logger.Warn().Msg("Redis not configured, using in-process contact registry and scheduler lock")
	}
	defer kv.Close()

	publisher := services.NopPublisher()
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled() {
		mqttClient, err = mqtt.NewClient(cfg.MQTT, logger)
		if err != nil {
			return err
		}
		publisher = mqttClient
	}

	cipher, err := secrets.New(cfg.Security.SessionSecret)
	if err != nil {
		return err
	}

	loc, err := cfg.Scheduler.Location()
	if err != nil {
		return fmt.Errorf("invalid scheduler timezone %q: %w", cfg.Scheduler.Timezone, err)
	}

	sender := transport.NewWebhookSender(cfg.Forwarding, logger)
	defer sender.Close()

	commands := services.NewCommandService(db, logger)
	sessions := services.NewSessionService(db, commands, kv, publisher, handshakeOptions(cfg.Protocol), logger)
	forwarding := services.NewForwardingService(db, sender, cipher, cfg.Forwarding, logger)
	dispatcher := services.NewForwardDispatcher(forwarding, cfg.Forwarding.QueueSize, cfg.Forwarding.Workers, logger)
	ingest := services.NewIngestService(db, sessions, dispatcher, publisher, logger)
	clients := services.NewClientService(db, cipher, cfg.Forwarding.DefaultRetryAttempts,
		int(cfg.Forwarding.DefaultRetryDelay.Milliseconds()), logger)
	devices := services.NewDeviceService(db, kv, cfg.Protocol.OnlineWindow, logger)
	tasks := services.NewTaskService(db, commands, loc, logger)

	if n, err := clients.EncryptPlaintextKeys(); err != nil {
		logger.Error().Err(err).Msg("Failed to encrypt stored client API keys")
	} else if n > 0 {
		logger.Info().Int("count", n).Msg("Encrypted plaintext client API keys")
	}

	protoLog := protolog.New(cfg.Protocol.LogCapacity)

	e := handlers.NewEcho(logger)
	handlers.RegisterRoutes(e, handlers.Handlers{
		Iclock:   handlers.NewIclockHandler(sessions, ingest, protoLog, logger),
		Clients:  handlers.NewClientHandler(clients, forwarding),
		Devices:  handlers.NewDeviceHandler(devices),
		Events:   handlers.NewEventHandler(ingest, forwarding),
		Commands: handlers.NewCommandHandler(commands),
		Tasks:    handlers.NewTaskHandler(tasks),
		System:   handlers.NewSystemHandler(checks, protoLog),
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      e,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	tree := supervisor.NewTree(logger, supervisor.TreeConfig{ShutdownTimeout: cfg.Server.ShutdownTimeout})
	tree.AddAPIService(supervisor.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	tree.AddWorkerService(dispatcher)
	if cfg.Scheduler.Enabled {
		tree.AddWorkerService(services.NewScheduler(db, commands, kv, cfg.Scheduler, loc, logger))
	}
	if mqttClient != nil {
		tree.AddWorkerService(mqttClient)
	}

	logStartup(logger, cfg)

	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("supervisor stopped: %w", err)
	}
	logger.Info().Msg("Shutdown complete")
	return nil
}

func handshakeOptions(p config.ProtocolConfig) protocol.HandshakeOptions {
	return protocol.HandshakeOptions{
		ErrorDelay:    p.ErrorDelay,
		Delay:         p.Delay,
		TransTimes:    p.TransTimes,
		TransInterval: p.TransInterval,
		TransFlag:     p.TransFlag,
		Realtime:      p.Realtime,
		Encrypt:       p.Encrypt,
		ServerVersion: p.ServerVersion,
		TimeZone:      p.TimeZone,
	}
}

func logStartup(logger zerolog.Logger, cfg *config.Config) {
	logger.Info().
		Str("addr", cfg.Server.Addr).
		Str("database", cfg.Database.Driver).
		Bool("redis", cfg.Redis.Enabled()).
		Bool("mqtt", cfg.MQTT.Enabled()).
		Bool("scheduler", cfg.Scheduler.Enabled).
		Int("forward_workers", cfg.Forwarding.Workers).
		Msg("zkteco-hub started")
}
