/*
Package metrics provides Prometheus metrics collection and exposition for
lwm2mcored.

It registers gauges, counters, and histograms covering the data model
registry (objects/instances), operations (count and duration by kind),
attribute storage, the observation/notification subsystem, registration
updates, and the debug introspection API, all exposed via the standard
promhttp handler for scraping.

A Collector polls the engine's own registries (DataModel, observe.Table,
attr.Store) on a fixed interval and republishes their sizes as gauges,
since those types have no reason to push metrics themselves. A Timer
helper times an operation and records its duration to a histogram,
optionally with labels via ObserveDurationVec.

	timer := metrics.NewTimer()
	err := dataModel.Execute(path, arg)
	timer.ObserveDurationVec(metrics.OperationDuration, "execute")

HealthChecker tracks the health of named components (datamodel,
observe_pump, debugapi, ...) and backs the /health, /ready, and /live
HTTP handlers.
*/
package metrics
