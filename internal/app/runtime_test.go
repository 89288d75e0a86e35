package app

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/ironwill-app/ironwill/internal/engine"
	"github.com/ironwill-app/ironwill/internal/proofstore"
	"github.com/ironwill-app/ironwill/internal/storage/sqlite"
)

func newLoopService(t *testing.T) *engine.Service {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "engine.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return engine.NewService(store, proofstore.NewMemory(), nil, engine.Config{}, nil, nil)
}

func TestRunTickLoopStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	service := newLoopService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runTickLoop(ctx, service, time.Hour, make(chan error))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context canceled", err)
	}
}

func TestRunTickLoopStopsOnServerClose(t *testing.T) {
	t.Parallel()

	service := newLoopService(t)
	httpErr := make(chan error, 1)
	httpErr <- http.ErrServerClosed

	if err := runTickLoop(context.Background(), service, time.Hour, httpErr); err != nil {
		t.Fatalf("error = %v, want nil on graceful close", err)
	}
}
