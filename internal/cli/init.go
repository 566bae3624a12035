// Package cli provides the initialization shared by cmd/spendesk and
// cmd/spendesk-worker.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Bota93/spendesk/internal/amqp"
	"github.com/Bota93/spendesk/internal/backend"
	"github.com/Bota93/spendesk/internal/config"
	"github.com/Bota93/spendesk/internal/events"
	"github.com/Bota93/spendesk/internal/log"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default.
func SetupLogger(cfg *config.Config) *log.Logger {
	lc := log.DefaultConfig()
	if cfg != nil {
		lc.Level = log.ParseLevel(cfg.LogLevel)
		lc.Format = cfg.LogFormat
	}
	logger := log.New(lc)
	log.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed",
			log.FieldError, err.Error(),
			log.FieldErrorType, log.ErrorTypeConfiguration)
		os.Exit(1)
	}
	return cfg
}

// Relay is the auth event plumbing of a process: the in-process bus and,
// when AMQP_URL is set, the broker link to the other processes.
type Relay struct {
	Bus  *events.Bus
	AMQP *amqp.Client
}

func NewRelay(cfg *config.Config, logger *log.Logger) *Relay {
	r := &Relay{Bus: events.NewBus()}
	if cfg.AMQPURL != "" {
		r.AMQP = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		logger.Info("AMQP auth event relay enabled",
			"exchange", cfg.AMQPExchange,
			"routing_key", cfg.AMQPQueue)
	}
	return r
}

// Publisher delivers locally first, then to the broker.
func (r *Relay) Publisher() events.Publisher {
	if r.AMQP == nil {
		return r.Bus
	}
	return events.Multi{r.Bus, r.AMQP}
}

// Forward feeds events from other processes into the local bus until ctx
// ends. Without a broker it just waits.
func (r *Relay) Forward(ctx context.Context) error {
	if r.AMQP == nil {
		<-ctx.Done()
		return nil
	}
	err := r.AMQP.ConsumeAuthEvents(ctx, func(e events.AuthEvent) {
		_ = r.Bus.PublishAuthEvent(context.Background(), e)
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (r *Relay) Close() error {
	if r.AMQP == nil {
		return nil
	}
	return r.AMQP.Close()
}

// OpenBackend creates the configured backend or exits the process.
func OpenBackend(ctx context.Context, cfg *config.Config, publisher events.Publisher, logger *log.Logger) *backend.BackendResult {
	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err.Error())
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger, publisher).CreateBackend(ctx, bc)
	if err != nil {
		logger.Error("Failed to initialize backend",
			log.FieldBackend, cfg.DataBackend,
			log.FieldError, err.Error())
		os.Exit(1)
	}
	return res
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		logger.Info("Shutdown signal received")
	}()
	return ctx, stop
}
