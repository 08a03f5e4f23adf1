/*
Package metrics defines and registers the Prometheus metrics exposed by the
arbitration engine: zone/resource/class/resource-set gauges, arbitration-cycle
counters and latency histograms, grant/revoke/veto counters, and the
invariant-auditor's violation counter. Metrics are exposed over HTTP by
pkg/diag, which also serves health and readiness.

Collector polls a StatsSource (satisfied by the engine type that owns the
registry) on a fixed interval and republishes its counts as gauges.
*/
package metrics
