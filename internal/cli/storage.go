package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/arbor/internal/config"
	"github.com/aretw0/arbor/pkg/adapters/file"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/adapters/redis"
	"github.com/aretw0/arbor/pkg/persistence/middleware"
	"github.com/aretw0/arbor/pkg/ports"
)

// OpenStorage builds the configured snapshot storage, wrapped with the
// redaction and encryption middleware when configured. closeFn releases the
// backend connection.
func OpenStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage ports.Storage, closeFn func() error, err error) {
	closeFn = func() error { return nil }

	switch cfg.Persistence.Backend {
	case config.BackendFile:
		storage = file.New(cfg.Persistence.Dir)
	case config.BackendRedis:
		rs := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			redis.WithPrefix(cfg.Redis.Prefix),
			redis.WithTTL(cfg.Redis.TTL),
		)
		if err := rs.Ping(ctx); err != nil {
			_ = rs.Close()
			return nil, closeFn, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		storage, closeFn = rs, rs.Close
	default:
		storage = memory.NewStore()
	}

	var mws []middleware.Middleware
	if len(cfg.Persistence.Redact) > 0 {
		redact, err := middleware.NewRedactMiddleware(cfg.Persistence.Redact)
		if err != nil {
			_ = closeFn()
			return nil, closeFn, err
		}
		mws = append(mws, redact)
	}
	if cfg.Persistence.EncryptionKey != "" {
		key, err := middleware.ParseKey(cfg.Persistence.EncryptionKey)
		if err != nil {
			_ = closeFn()
			return nil, closeFn, err
		}
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}))
	}

	logger.Debug("storage opened", "backend", cfg.Persistence.Backend, "redact", len(cfg.Persistence.Redact), "encrypted", cfg.Persistence.EncryptionKey != "")
	return middleware.Chain(storage, mws...), closeFn, nil
}
