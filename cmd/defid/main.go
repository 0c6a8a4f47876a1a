package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"deficore/cmd/internal/passphrase"
	"deficore/config"
	"deficore/core"
	"deficore/core/events"
	"deficore/crypto"
	"deficore/observability"
	"deficore/observability/logging"
	telemetry "deficore/observability/otel"
	"deficore/rpc"
	"deficore/services/eventlog"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file (.toml or .yaml)")
	exportPath := flag.String("export-events", "", "Write the event log to this Parquet file and exit")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Setup("defid", cfg.Env, logging.Options{
		Level: cfg.Log.Level,
		File: logging.FileOptions{
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if path := strings.TrimSpace(*exportPath); path != "" {
		if err := exportEvents(ctx, cfg, path, logger); err != nil {
			logger.Error("event export failed", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("defid stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.Telemetry.Traces || cfg.Telemetry.Metrics {
		shutdown, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName: "defid",
			Environment: cfg.Env,
			Storage:     cfg.Storage,
			DevMode:     cfg.DevMode,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
			SampleRatio: cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown failed", slog.Any("error", err))
			}
		}()
	}

	db, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	adminKey, err := loadAdminKey(cfg)
	if err != nil {
		return err
	}
	admin := adminKey.PubKey().Address()

	hub := rpc.NewHub(logger)
	sinks := events.Fanout{observability.Events(), hub}
	var querier rpc.EventQuerier
	if cfg.EventLog.Driver != "" {
		store, err := eventlog.Open(cfg.EventLog.Driver, cfg.EventLog.DSN)
		if err != nil {
			return err
		}
		defer store.Close()
		writer := eventlog.NewWriter(store, cfg.EventLog.BufferSize, logger)
		// Runs before store.Close so queued events are flushed.
		defer writer.Close()
		sinks = append(sinks, writer)
		querier = store
		logger.Info("event log enabled",
			slog.String("driver", cfg.EventLog.Driver),
			logging.MaskField("dsn", cfg.EventLog.DSN))
	}

	protocol, err := core.NewProtocol(db, core.Options{
		Pauses:   cfg.Pauses.Table(),
		Sink:     sinks,
		Observer: observability.Protocol(),
		Tracer:   telemetry.Tracer(),
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	if err := bootstrap(ctx, protocol, admin, cfg, logger); err != nil {
		return err
	}
	logger.Info("protocol ready",
		slog.Uint64("height", protocol.Height()),
		slog.String("root", protocol.Root().Hex()))

	interval, err := cfg.HeightInterval()
	if err != nil {
		return err
	}

	server := rpc.NewServer(protocol, querier, hub, rpc.Config{
		DevMode:        cfg.DevMode,
		Auth:           rpc.AuthConfig{HMACSecret: cfg.Auth.JWTSecret, Issuer: cfg.Auth.Issuer},
		RateLimit:      rpc.RateLimit{RequestsPerSecond: cfg.RateLimit.RequestsPerSecond, Burst: cfg.RateLimit.Burst},
		MaxConnections: cfg.RateLimit.MaxConnections,
	}, logger)
	health := rpc.NewHealthServer(logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup
	errs := make(chan error, 3)
	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errs <- fmt.Errorf("%s: %w", name, err)
				cancel()
			}
		}()
	}
	start("height ticker", func(ctx context.Context) error { return runTicker(ctx, protocol, interval, logger) })
	start("json-rpc", func(ctx context.Context) error { return server.Serve(ctx, cfg.RPCAddress) })
	if strings.TrimSpace(cfg.GRPCAddress) != "" {
		start("grpc health", func(ctx context.Context) error { return health.Serve(ctx, cfg.GRPCAddress) })
	}

	<-ctx.Done()
	health.SetServing(false)
	logger.Info("shutting down")
	wg.Wait()
	close(errs)
	return <-errs
}

// runTicker advances the logical clock once per interval.
func runTicker(ctx context.Context, p *core.Protocol, interval time.Duration, logger *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			height, err := p.Tick()
			if err != nil {
				return err
			}
			logger.Debug("height advanced", slog.Uint64("height", height))
		}
	}
}

func loadAdminKey(cfg *config.Config) (*crypto.PrivateKey, error) {
	var opts []passphrase.Option
	if cfg.DevMode {
		opts = append(opts, passphrase.AllowEmpty())
	}
	source := passphrase.NewSource(config.EnvKeystorePassphrase, "admin keystore", opts...)
	pass, err := source.Get()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(cfg.AdminKeystorePath, pass)
	if err != nil {
		return nil, fmt.Errorf("load admin keystore: %w", err)
	}
	return key, nil
}

func exportEvents(ctx context.Context, cfg *config.Config, path string, logger *slog.Logger) error {
	if cfg.EventLog.Driver == "" {
		return errors.New("event log disabled")
	}
	if !filepath.IsAbs(path) && cfg.EventLog.ExportDir != "" {
		if err := os.MkdirAll(cfg.EventLog.ExportDir, 0o755); err != nil {
			return err
		}
		path = filepath.Join(cfg.EventLog.ExportDir, path)
	}
	store, err := eventlog.Open(cfg.EventLog.Driver, cfg.EventLog.DSN)
	if err != nil {
		return err
	}
	defer store.Close()
	written, err := store.ExportParquet(ctx, path, eventlog.Filter{})
	if err != nil {
		return err
	}
	logger.Info("event log exported", slog.String("path", path), slog.Int("rows", written))
	return nil
}
