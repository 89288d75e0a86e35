// Package seed loads protocol fixtures into an engine for local development.
package seed

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ironwill-app/ironwill/internal/engine"
	"github.com/ironwill-app/ironwill/internal/protocol"
	"gopkg.in/yaml.v3"
)

// ProtocolFixture describes one protocol to commit.
type ProtocolFixture struct {
	Title       string `yaml:"title"`
	Frequency   string `yaml:"frequency"`
	DueTime     string `yaml:"due_time"`
	Weekday     int    `yaml:"weekday"`
	GracePeriod string `yaml:"grace_period"`
}

// OwnerFixture groups protocols under one owner.
type OwnerFixture struct {
	ID        string            `yaml:"id"`
	Protocols []ProtocolFixture `yaml:"protocols"`
}

// Fixture is the root seed document.
type Fixture struct {
	Owners []OwnerFixture `yaml:"owners"`
}

// Load reads and parses one YAML fixture file.
func Load(path string) (Fixture, error) {
	if strings.TrimSpace(path) == "" {
		return Fixture{}, fmt.Errorf("fixture path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("read fixture: %w", err)
	}
	return Parse(data)
}

// Parse decodes one YAML fixture document.
func Parse(data []byte) (Fixture, error) {
	var fixture Fixture
	if err := yaml.Unmarshal(data, &fixture); err != nil {
		return Fixture{}, fmt.Errorf("parse fixture: %w", err)
	}
	if len(fixture.Owners) == 0 {
		return Fixture{}, fmt.Errorf("fixture has no owners")
	}
	for i, owner := range fixture.Owners {
		if strings.TrimSpace(owner.ID) == "" {
			return Fixture{}, fmt.Errorf("owner %d has no id", i)
		}
		if len(owner.Protocols) == 0 {
			return Fixture{}, fmt.Errorf("owner %s has no protocols", owner.ID)
		}
	}
	return fixture, nil
}

// Apply commits every fixture protocol through the engine and reports how
// many were created.
func Apply(ctx context.Context, service *engine.Service, fixture Fixture) (int, error) {
	if service == nil {
		return 0, fmt.Errorf("engine service is required")
	}
	created := 0
	for _, owner := range fixture.Owners {
		for _, p := range owner.Protocols {
			grace := time.Duration(0)
			if strings.TrimSpace(p.GracePeriod) != "" {
				parsed, err := time.ParseDuration(p.GracePeriod)
				if err != nil {
					return created, fmt.Errorf("owner %s protocol %q: parse grace period: %w", owner.ID, p.Title, err)
				}
				grace = parsed
			}
			_, err := service.Commit(ctx, engine.CommitInput{
				OwnerID: owner.ID,
				Title:   p.Title,
				Schedule: protocol.Schedule{
					Frequency: protocol.Frequency(p.Frequency),
					DueTime:   p.DueTime,
					Weekday:   time.Weekday(p.Weekday),
				},
				GracePeriod: grace,
			})
			if err != nil {
				return created, fmt.Errorf("owner %s protocol %q: %w", owner.ID, p.Title, err)
			}
			created++
		}
	}
	return created, nil
}
