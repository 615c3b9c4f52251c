// Package metrics provides the exporter's observability hooks.
//
// Components hold a Recorder and default to NoopRecorder, so instrumentation
// needs no nil checks at call sites. When metrics are enabled the CLI swaps
// in a PrometheusRecorder bound to a registry that the daemon's /metrics
// endpoint serves:
//
//	reg := prom.NewRegistry()
//	rec := metrics.NewPrometheusRecorder(reg)
//	exp := export.New(cfg, gw).WithRecorder(rec)
package metrics
