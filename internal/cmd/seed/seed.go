// Package seed parses seed command flags and loads fixtures into the engine
// database.
package seed

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/ironwill-app/ironwill/internal/engine"
	entrypoint "github.com/ironwill-app/ironwill/internal/platform/cmd"
	"github.com/ironwill-app/ironwill/internal/proofstore"
	"github.com/ironwill-app/ironwill/internal/storage/sqlite"
	seedtool "github.com/ironwill-app/ironwill/internal/tools/seed"
)

// Config holds seed command configuration.
type Config struct {
	DBPath      string `env:"IRONWILL_SEED_DB_PATH" envDefault:"data/engine.db"`
	ProofDir    string `env:"IRONWILL_SEED_PROOF_DIR" envDefault:"data/proofs"`
	FixturePath string `env:"IRONWILL_SEED_FIXTURE" envDefault:"fixtures/seed.yaml"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The engine SQLite database path")
	fs.StringVar(&cfg.ProofDir, "proof-dir", cfg.ProofDir, "The proof artifact storage directory")
	fs.StringVar(&cfg.FixturePath, "fixture", cfg.FixturePath, "The YAML fixture to load")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run loads the fixture and commits its protocols against the engine database.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceSeed, func(context.Context) error {
		fixture, err := seedtool.Load(cfg.FixturePath)
		if err != nil {
			return err
		}

		if dir := filepath.Dir(cfg.DBPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create storage dir: %w", err)
			}
		}
		store, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open sqlite store: %w", err)
		}
		defer func() {
			if closeErr := store.Close(); closeErr != nil {
				log.Printf("close sqlite store: %v", closeErr)
			}
		}()

		proofDir := strings.TrimSpace(cfg.ProofDir)
		if proofDir == "" {
			proofDir = "data/proofs"
		}
		proofs, err := proofstore.NewFS(proofDir)
		if err != nil {
			return fmt.Errorf("open proof store: %w", err)
		}

		service := engine.NewService(store, proofs, nil, engine.Config{}, nil, nil)
		created, err := seedtool.Apply(ctx, service, fixture)
		if err != nil {
			return err
		}
		log.Printf("seeded %d protocols from %s", created, cfg.FixturePath)
		return nil
	})
}
