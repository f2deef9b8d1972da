/*
Package observability turns engine lifecycle events into Prometheus metrics
and structured log lines.

Both are delivered as domain.LifecycleHooks, so they can be merged and
passed to the engine with a single option:

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	hooks := metrics.Hooks().Merge(observability.LoggingHooks(logger))
*/
package observability
