// Package engine parses engine command flags and launches the engine runtime.
package engine

import (
	"context"
	"flag"
	"time"

	"github.com/ironwill-app/ironwill/internal/app"
	entrypoint "github.com/ironwill-app/ironwill/internal/platform/cmd"
)

// Config holds engine command configuration.
type Config struct {
	HTTPPort        int           `env:"IRONWILL_ENGINE_HTTP_PORT" envDefault:"8080"`
	GRPCPort        int           `env:"IRONWILL_ENGINE_GRPC_PORT" envDefault:"8090"`
	DBPath          string        `env:"IRONWILL_ENGINE_DB_PATH" envDefault:"data/engine.db"`
	ProofDir        string        `env:"IRONWILL_ENGINE_PROOF_DIR" envDefault:"data/proofs"`
	WebhookEndpoint string        `env:"IRONWILL_ENGINE_WEBHOOK_ENDPOINT"`
	TickInterval    time.Duration `env:"IRONWILL_ENGINE_TICK_INTERVAL" envDefault:"1m"`
	LockThreshold   float64       `env:"IRONWILL_ENGINE_LOCK_THRESHOLD" envDefault:"3.0"`
	LockoutDuration time.Duration `env:"IRONWILL_ENGINE_LOCKOUT_DURATION" envDefault:"24h"`
	DecayInterval   time.Duration `env:"IRONWILL_ENGINE_DECAY_INTERVAL" envDefault:"24h"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.HTTPPort, "http-port", cfg.HTTPPort, "The engine JSON API port")
	fs.IntVar(&cfg.GRPCPort, "grpc-port", cfg.GRPCPort, "The engine health gRPC server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The engine SQLite database path")
	fs.StringVar(&cfg.ProofDir, "proof-dir", cfg.ProofDir, "The proof artifact storage directory")
	fs.StringVar(&cfg.WebhookEndpoint, "webhook-endpoint", cfg.WebhookEndpoint, "Notification webhook endpoint (log-only when empty)")
	fs.DurationVar(&cfg.TickInterval, "tick-interval", cfg.TickInterval, "Sweep loop interval")
	fs.Float64Var(&cfg.LockThreshold, "lock-threshold", cfg.LockThreshold, "Score below which the lockout triggers")
	fs.DurationVar(&cfg.LockoutDuration, "lockout-duration", cfg.LockoutDuration, "Lockout duration per arming")
	fs.DurationVar(&cfg.DecayInterval, "decay-interval", cfg.DecayInterval, "Inactivity interval per decay step")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the engine runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceEngine, func(context.Context) error {
		return app.Run(ctx, app.RuntimeConfig{
			HTTPPort:        cfg.HTTPPort,
			GRPCPort:        cfg.GRPCPort,
			DBPath:          cfg.DBPath,
			ProofDir:        cfg.ProofDir,
			WebhookEndpoint: cfg.WebhookEndpoint,
			TickInterval:    cfg.TickInterval,
			LockThreshold:   cfg.LockThreshold,
			LockoutDuration: cfg.LockoutDuration,
			DecayInterval:   cfg.DecayInterval,
		})
	})
}
