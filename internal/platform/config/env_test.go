package config

import "testing"

type envFixture struct {
	DBPath    string  `env:"IRONWILL_TEST_DB_PATH" envDefault:"data/engine.db"`
	Threshold float64 `env:"IRONWILL_TEST_THRESHOLD" envDefault:"3.0"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envFixture
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.DBPath != "data/engine.db" {
		t.Fatalf("expected default db path, got %q", cfg.DBPath)
	}
	if cfg.Threshold != 3.0 {
		t.Fatalf("expected default threshold 3.0, got %v", cfg.Threshold)
	}
}

func TestParseEnvOverrides(t *testing.T) {
	t.Setenv("IRONWILL_TEST_DB_PATH", "/tmp/engine.db")

	var cfg envFixture
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.DBPath != "/tmp/engine.db" {
		t.Fatalf("expected env override, got %q", cfg.DBPath)
	}
}
