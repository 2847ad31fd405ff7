package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/tjfontaine/llm-reliability/internal/alerting"
	"github.com/tjfontaine/llm-reliability/internal/config"
	"github.com/tjfontaine/llm-reliability/internal/drift"
	"github.com/tjfontaine/llm-reliability/internal/embedding"
	"github.com/tjfontaine/llm-reliability/internal/invariant"
	"github.com/tjfontaine/llm-reliability/internal/registration"
	"github.com/tjfontaine/llm-reliability/internal/storage"
	"github.com/tjfontaine/llm-reliability/internal/storage/memory"
	"github.com/tjfontaine/llm-reliability/internal/storage/sqlite"
	"github.com/tjfontaine/llm-reliability/internal/validation"
)

// runtime holds the wired components shared by the subcommands.
type runtime struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     storage.Store
	registry  *invariant.Registry
	validator *validation.Engine
	detector  *drift.Engine
	publisher alerting.Publisher
	closers   []func() error
}

func newRuntime(configPath string) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rt := &runtime{cfg: cfg, logger: logger}

	switch cfg.Storage.Type {
	case "sqlite":
		store, err := sqlite.New(cfg.Storage.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		rt.store = store
	case "memory":
		rt.store = memory.New()
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}
	rt.closers = append(rt.closers, rt.store.Close)

	rt.registry = invariant.NewRegistry()
	if err := registration.RegisterBuiltinsWith(rt.registry, cfg.Invariants); err != nil {
		rt.Close()
		return nil, fmt.Errorf("register invariants: %w", err)
	}

	rt.validator = validation.NewEngine(rt.registry,
		validation.WithLogger(logger),
		validation.WithMaxParallel(cfg.Validation.MaxParallel),
		validation.WithDefaultTimeout(cfg.Validation.DefaultTimeout),
	)

	rt.detector = drift.NewEngine(rt.store, embedding.NewHashing(), cfg.Drift,
		drift.WithLogger(logger),
	)

	switch cfg.Alerting.Publisher {
	case "redis":
		pub, err := alerting.NewRedisPublisher(cfg.Alerting.RedisURL, cfg.Alerting.RedisChannel)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("redis publisher: %w", err)
		}
		rt.publisher = pub
		rt.closers = append(rt.closers, pub.Close)
	default:
		rt.publisher = alerting.NewLogPublisher(logger)
	}

	return rt, nil
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			rt.logger.Error("close failed", "error", err)
		}
	}
}
