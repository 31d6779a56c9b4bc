package arbor

import "context"

// Lifecycle binds a Module to a feature's activation and deactivation.
type Lifecycle struct {
	app    *App
	module Module
	evict  bool
}

// LifecycleOption configures a Lifecycle.
type LifecycleOption func(*Lifecycle)

// WithEviction makes Deactivate eject the module. By default modules stay
// installed for the lifetime of the App.
func WithEviction() LifecycleOption {
	return func(l *Lifecycle) {
		l.evict = true
	}
}

// Lifecycle returns the activation hook for m.
func (a *App) Lifecycle(m Module, opts ...LifecycleOption) *Lifecycle {
	l := &Lifecycle{app: a, module: m}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Activate installs the module. It is safe to call on every activation.
func (l *Lifecycle) Activate(ctx context.Context) error {
	return l.app.Install(ctx, l.module)
}

// Deactivate ejects the module when the lifecycle was built WithEviction,
// and does nothing otherwise.
func (l *Lifecycle) Deactivate(ctx context.Context) error {
	if !l.evict {
		return nil
	}
	return l.app.EnsureUnregistered(ctx, l.module.Key)
}

// Module returns the bound module.
func (l *Lifecycle) Module() Module {
	return l.module
}
