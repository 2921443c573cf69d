package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	temporalclient "go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"

	"github.com/efebarandurmaz/layermap/internal/config"
	"github.com/efebarandurmaz/layermap/internal/graph"
	"github.com/efebarandurmaz/layermap/internal/graph/neo4j"
	"github.com/efebarandurmaz/layermap/internal/observability"
	"github.com/efebarandurmaz/layermap/internal/server"
	temporalmod "github.com/efebarandurmaz/layermap/internal/temporal"
)

var version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "Config file path (default ./layermap.yaml when present)")
	flag.Parse()

	if err := config.LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := observability.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	slog.SetDefault(logger)

	ctx := context.Background()
	tp, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:    "layermap-worker",
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.Endpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}

	if cfg.Audit.Enabled {
		if err := observability.InitGlobalAuditLogger(&observability.AuditConfig{
			Enabled:    true,
			OutputPath: cfg.Audit.Output,
		}); err != nil {
			return fmt.Errorf("audit: %w", err)
		}
	}

	var (
		repo graph.Repository
		ping func(ctx context.Context) error
	)
	if cfg.Graph.URI != "" {
		n, err := neo4j.NewNeo4j(ctx, cfg.Graph.URI, cfg.Graph.Username, cfg.Graph.Password)
		if err != nil {
			return err
		}
		if err := n.EnsureIndexes(ctx); err != nil {
			n.Close(ctx)
			return err
		}
		repo, ping = n, n.Ping
	}

	temporalmod.SetDependencies(&temporalmod.Dependencies{
		Config:     cfg,
		Repository: repo,
		Logger:     logger,
		Metrics:    observability.Metrics(),
	})

	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
		Logger:    tlog.NewStructuredLogger(logger),
	})
	if err != nil {
		return fmt.Errorf("temporal client: %w", err)
	}

	w, err := temporalmod.StartWorker(c, cfg.Temporal.TaskQueue)
	if err != nil {
		c.Close()
		return fmt.Errorf("worker: %w", err)
	}

	ws := server.NewWorkerServer(&server.HealthConfig{
		Version: version,
		Metrics: observability.Metrics().Handler(),
	}, &server.ShutdownConfig{Logger: logger})

	ws.Health.RegisterCheck("temporal", server.TemporalHealthChecker(func(ctx context.Context) error {
		_, err := c.CheckHealth(ctx, &temporalclient.CheckHealthRequest{})
		return err
	}))
	ws.Health.RegisterCheck("graph", server.GraphStoreHealthChecker(cfg.Graph.URI, ping))

	ws.Shutdown.Register(server.TemporalWorkerShutdownHook(w.Stop))
	ws.Shutdown.RegisterHook("temporal-client", 30, func(ctx context.Context) error {
		c.Close()
		return nil
	})
	if repo != nil {
		ws.Shutdown.Register(server.GraphStoreShutdownHook(repo.Close))
	}
	ws.Shutdown.Register(server.TracingShutdownHook(tp.Shutdown))
	ws.Shutdown.Register(server.AuditLoggerShutdownHook(observability.Audit().Close))

	errCh := ws.Start(cfg.Health.Addr)
	logger.Info("worker started", "task_queue", cfg.Temporal.TaskQueue, "health", cfg.Health.Addr)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("health server failed", "error", err)
			ws.Shutdown.Shutdown()
		}
	case <-ws.Shutdown.Done():
	}
	ws.Wait()

	if failed := ws.Shutdown.Failed(); len(failed) > 0 {
		return fmt.Errorf("shutdown hooks failed: %v", failed)
	}
	logger.Info("worker stopped")
	return nil
}
