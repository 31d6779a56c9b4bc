package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/config"
	"github.com/aretw0/arbor/internal/features/app"
	"github.com/aretw0/arbor/internal/features/products"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/httpclient"
	"github.com/aretw0/arbor/pkg/observability"
	"github.com/aretw0/arbor/pkg/persistence"
)

// Service is an App wired from configuration, with the demo features.
type Service struct {
	App     *arbor.App
	Metrics *observability.Metrics
	Client  *httpclient.Client

	config       config.Config
	logger       *slog.Logger
	closeStorage func() error
}

// NewService builds the App, its persistence and metrics from cfg.
func NewService(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Service, error) {
	storage, closeStorage, err := OpenStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	metrics := observability.NewMetrics("arbor")
	persistor := persistence.New(storage,
		persistence.WithKey(cfg.Persistence.Key),
		persistence.WithVersion(cfg.Persistence.Version),
		persistence.WithWhitelist(cfg.Persistence.Whitelist...),
		persistence.WithLogger(logger),
	)

	a := arbor.New(
		arbor.WithLogger(logger),
		arbor.WithLifecycleHooks(domain.MergeHooks(metrics.Hooks(), debugHooks(logger))),
		arbor.WithPersistor(persistor),
		arbor.WithCancelTimeout(cfg.Effects.CancelTimeout),
	)

	return &Service{
		App:          a,
		Metrics:      metrics,
		Client:       httpclient.New(httpclient.WithBaseURL(cfg.API.BaseURL), httpclient.WithTimeout(cfg.API.Timeout)),
		config:       cfg,
		logger:       logger,
		closeStorage: closeStorage,
	}, nil
}

// Start restores persisted state, installs the demo features and marks the
// application as loaded.
func (s *Service) Start(ctx context.Context) error {
	if err := s.App.Rehydrate(ctx); err != nil {
		return err
	}
	modules := []arbor.Module{
		app.Module(s.Client),
		products.Module(s.Client, s.config.API.ProductsURL),
	}
	for _, m := range modules {
		if err := s.App.Lifecycle(m).Activate(ctx); err != nil {
			return fmt.Errorf("failed to install %q: %w", m.Key, err)
		}
	}
	return s.App.Dispatch(ctx, app.Loaded())
}

// Close stops the App and releases the storage backend.
func (s *Service) Close(ctx context.Context) error {
	return errors.Join(s.App.Close(ctx), s.closeStorage())
}

func debugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnDispatch: func(ctx context.Context, e *domain.DispatchEvent) {
			logger.DebugContext(ctx, "dispatch", "action", e.ActionType, "changed", e.Changed, "duration", e.Duration, "error", e.Err)
		},
		OnTaskStop: func(ctx context.Context, e *domain.TaskEvent) {
			if e.Err != nil {
				logger.DebugContext(ctx, "effect task stopped", "key", e.Key, "task_id", e.TaskID, "error", e.Err)
			}
		},
	}
}
