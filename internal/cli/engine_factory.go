package cli

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"

	"github.com/aretw0/flowline"
	"github.com/aretw0/flowline/internal/config"
	"github.com/aretw0/flowline/pkg/adapters/memory"
	"github.com/aretw0/flowline/pkg/adapters/process"
	"github.com/aretw0/flowline/pkg/adapters/redis"
	"github.com/aretw0/flowline/pkg/adapters/sqlite"
	"github.com/aretw0/flowline/pkg/observability"
	"github.com/aretw0/flowline/pkg/persistence/middleware"
	"github.com/aretw0/flowline/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Stack is an engine together with the pieces the transports expose.
type Stack struct {
	Engine *flowline.Engine

	// Gatherer is nil when metrics are disabled.
	Gatherer prometheus.Gatherer
}

// NewStack builds the engine described by cfg. Extra options are applied
// after the configured ones, e.g. to add the SSE hooks of the server.
func NewStack(ctx context.Context, cfg config.Config, logger *slog.Logger, extra ...flowline.Option) (*Stack, error) {
	store, locker, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	wrapped, err := wrapStore(store, cfg.Store)
	if err != nil {
		if c, ok := store.(io.Closer); ok {
			_ = c.Close()
		}
		return nil, err
	}
	store = wrapped

	opts := []flowline.Option{
		flowline.WithStore(store),
		flowline.WithLogger(logger),
		flowline.WithMaxSteps(cfg.Engine.MaxSteps),
	}
	if locker != nil {
		opts = append(opts, flowline.WithLocker(locker))
	}
	if logger.Enabled(ctx, slog.LevelDebug) {
		opts = append(opts, flowline.WithLifecycleHooks(observability.LoggingHooks(logger)))
	}

	stack := &Stack{}
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m, err := observability.NewMetrics(reg)
		if err != nil {
			return nil, err
		}
		stack.Gatherer = reg
		opts = append(opts, flowline.WithLifecycleHooks(m.Hooks()))
	}

	eng, err := flowline.New(append(opts, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}
	if cfg.Tools.File != "" {
		tools, err := process.LoadTools(cfg.Tools.File)
		if err != nil {
			_ = eng.Close()
			return nil, err
		}
		process.NewRunner(
			process.WithBaseDir(cfg.Tools.Dir),
			process.WithTimeout(cfg.Tools.Timeout),
			process.WithLogger(logger),
		).Register(eng.Registry(), tools)
		logger.Info("loaded process tools", "file", cfg.Tools.File, "count", len(tools))
	}
	stack.Engine = eng
	return stack, nil
}

// openStore picks the storage backend. Redis also yields a locker when
// store.redis.lock is set.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (ports.Store, ports.DistributedLocker, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		s, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		logger.Info("using sqlite store", "path", cfg.SQLite.Path)
		return s, nil, nil

	case config.BackendRedis:
		opts := []redis.Option{redis.WithTTL(cfg.Redis.TTL)}
		if cfg.Redis.Prefix != "" {
			opts = append(opts, redis.WithPrefix(cfg.Redis.Prefix))
		}
		s := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, opts...)
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
		}
		logger.Info("using redis store", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
		if !cfg.Redis.Lock {
			return s, nil, nil
		}
		return s, redis.NewLocker(s.Client(), cfg.Redis.Prefix+"lock:"), nil

	case config.BackendMemory, "":
		return memory.NewStore(), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}

// wrapStore applies redaction and encryption. Redaction runs first so the
// sealed payload never contains the masked values.
func wrapStore(store ports.Store, cfg config.StoreConfig) (ports.Store, error) {
	var mws []middleware.Middleware
	if len(cfg.Redact) > 0 {
		mw, err := middleware.NewRedactionMiddleware(cfg.Redact)
		if err != nil {
			return nil, err
		}
		mws = append(mws, mw)
	}
	if cfg.EncryptionKey != "" {
		active, err := base64.StdEncoding.DecodeString(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("store.encryption_key: %w", err)
		}
		enc := middleware.EncryptionConfig{ActiveKey: active}
		for i, k := range cfg.FallbackKeys {
			key, err := base64.StdEncoding.DecodeString(k)
			if err != nil {
				return nil, fmt.Errorf("store.fallback_keys[%d]: %w", i, err)
			}
			enc.FallbackKeys = append(enc.FallbackKeys, key)
		}
		mw, err := middleware.NewEncryptionMiddleware(enc)
		if err != nil {
			return nil, err
		}
		mws = append(mws, mw)
	}
	return middleware.Chain(store, mws...), nil
}
