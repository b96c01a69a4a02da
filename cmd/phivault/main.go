// Command phivault runs the reversible entity substitution server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"phivault/config"
	"phivault/internal/auditlog"
	"phivault/internal/cache"
	"phivault/internal/detector"
	"phivault/internal/engine"
	"phivault/internal/generator"
	"phivault/internal/server"
	"phivault/internal/service"
	"phivault/internal/storage"
	"phivault/internal/vault"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("phivault %s\n", version)
		return
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	setupLogger(cfg.Logging)
	slog.Info("starting phivault", "version", version, "storage", cfg.Storage.Type)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Shared storage backend; the in-memory store has none.
	var st storage.Storage
	var store vault.Store
	if cfg.Storage.Type == "memory" {
		store = vault.NewMemory()
	} else {
		st, err = storage.New(ctx, storage.Config{
			Type:       cfg.Storage.Type,
			SQLite:     storage.SQLiteConfig{Path: cfg.Storage.SQLitePath},
			PostgreSQL: storage.PostgreSQLConfig{URL: cfg.Storage.PostgresURL, MaxConns: cfg.Storage.MaxConns},
		})
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		defer st.Close()

		store, err = vault.New(ctx, st, cfg.Storage.OpTimeout)
		if err != nil {
			return fmt.Errorf("failed to initialize mapping store: %w", err)
		}
	}
	defer store.Close()

	audit, err := auditlog.New(st, auditlog.Config{
		Enabled:       cfg.Audit.Enabled,
		BufferSize:    cfg.Audit.BufferSize,
		FlushInterval: cfg.Audit.FlushInterval,
		RetentionDays: cfg.Audit.RetentionDays,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize audit logger: %w", err)
	}
	defer audit.Close()

	mappingCache, err := cache.New(ctx, cache.Config{
		Type:     cfg.Cache.Type,
		RedisURL: cfg.Cache.RedisURL,
		TTL:      cfg.Cache.TTL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer mappingCache.Close()

	det, err := buildDetector(cfg.Detector)
	if err != nil {
		return err
	}

	eng := engine.New(store, det, generator.New(), mappingCache, slog.Default())
	svc := service.New(store, eng, audit, slog.Default())

	srv := server.New(svc, &server.Config{
		MasterKey:       cfg.Server.MasterKey,
		MetricsEnabled:  cfg.Metrics.Enabled,
		MetricsEndpoint: cfg.Metrics.Endpoint,
		BodySizeLimit:   cfg.Server.BodySizeLimit,
	})

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Server.Port
		slog.Info("listening", "addr", addr)
		if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

func buildDetector(cfg config.DetectorConfig) (*detector.Detector, error) {
	var opts []detector.Option

	if cfg.PolicyPath != "" {
		policy, err := detector.LoadPolicy(cfg.PolicyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load detector policy: %w", err)
		}
		opts = append(opts, policy.Options()...)
	}
	if cfg.ExternalEndpoint != "" {
		opts = append(opts, detector.WithRecognizer(
			detector.NewRecognizerClient(cfg.ExternalEndpoint, cfg.ExternalTimeout)))
	}
	return detector.New(opts...), nil
}

func setupLogger(cfg config.LoggingConfig) {
	level := parseLevel(cfg.Level)

	var handler slog.Handler
	if cfg.Pretty {
		handler = tint.NewHandler(os.Stderr, &tint.Options{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
