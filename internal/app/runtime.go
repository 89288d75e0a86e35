// Package app wires engine runtime dependencies and runs the serving loops.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ironwill-app/ironwill/internal/api/httpapi"
	"github.com/ironwill-app/ironwill/internal/engine"
	"github.com/ironwill-app/ironwill/internal/lockout"
	"github.com/ironwill-app/ironwill/internal/notify"
	"github.com/ironwill-app/ironwill/internal/platform/timeouts"
	"github.com/ironwill-app/ironwill/internal/proofstore"
	"github.com/ironwill-app/ironwill/internal/storage/sqlite"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// RuntimeConfig controls engine startup, dependencies, and loop behavior.
type RuntimeConfig struct {
	HTTPPort        int
	GRPCPort        int
	DBPath          string
	ProofDir        string
	WebhookEndpoint string
	TickInterval    time.Duration
	LockThreshold   float64
	LockoutDuration time.Duration
	DecayInterval   time.Duration
}

const (
	defaultHTTPPort     = 8080
	defaultGRPCPort     = 8090
	defaultDBPath       = "data/engine.db"
	defaultProofDir     = "data/proofs"
	defaultTickInterval = time.Minute
)

// Run starts the engine runtime: storage, proof store, the JSON API server,
// the gRPC health endpoint, and the sweep loop. It blocks until ctx is done.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.HTTPPort <= 0 {
		cfg.HTTPPort = defaultHTTPPort
	}
	if cfg.GRPCPort <= 0 {
		cfg.GRPCPort = defaultGRPCPort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultDBPath
	}
	if strings.TrimSpace(cfg.ProofDir) == "" {
		cfg.ProofDir = defaultProofDir
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
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

	proofs, err := proofstore.NewFS(cfg.ProofDir)
	if err != nil {
		return fmt.Errorf("open proof store: %w", err)
	}

	var notifier notify.Notifier = notify.LogNotifier{}
	if strings.TrimSpace(cfg.WebhookEndpoint) != "" {
		webhook, err := notify.NewWebhook(cfg.WebhookEndpoint, nil)
		if err != nil {
			return fmt.Errorf("configure webhook notifier: %w", err)
		}
		notifier = webhook
	}

	service := engine.NewService(store, proofs, notifier, engine.Config{
		Lockout: lockout.Config{
			Threshold: cfg.LockThreshold,
			Duration:  cfg.LockoutDuration,
		},
		DecayInterval: cfg.DecayInterval,
	}, nil, nil)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           httpapi.NewHandler(service).Routes(),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}
	httpErr := make(chan error, 1)
	go func() {
		log.Printf("http server listening at %s", httpServer.Addr)
		httpErr <- httpServer.ListenAndServe()
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Printf("shutdown http server: %v", shutdownErr)
		}
	}()

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen on grpc port %d: %w", cfg.GRPCPort, err)
	}
	defer listener.Close()

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("engine.runtime", grpc_health_v1.HealthCheckResponse_SERVING)

	grpcErr := make(chan error, 1)
	go func() {
		grpcErr <- grpcServer.Serve(listener)
	}()
	defer func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		<-grpcErr
	}()

	log.Printf("grpc health server listening at %v", listener.Addr())
	return runTickLoop(ctx, service, cfg.TickInterval, httpErr)
}

// runTickLoop sweeps immediately on start, then on every interval until ctx
// is canceled or the HTTP server fails.
func runTickLoop(ctx context.Context, service *engine.Service, interval time.Duration, httpErr <-chan error) error {
	service.Tick(ctx, time.Now().UTC())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-httpErr:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		case now := <-ticker.C:
			service.Tick(ctx, now.UTC())
		}
	}
}
