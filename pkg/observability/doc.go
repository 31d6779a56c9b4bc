/*
Package observability provides Prometheus metrics for the arbor runtime.

Metrics plugs into the runtime through domain.LifecycleHooks:

	m := observability.NewMetrics("arbor")
	app := arbor.New(arbor.WithHooks(m.Hooks()))
	http.Handle("/metrics", m.Handler())
*/
package observability
