// Package metrics provides build metrics for assetpipe.
//
// Components receive a Recorder through dependency injection. NoopRecorder is the
// default and does nothing; PrometheusRecorder registers collectors on a registry
// which the CLI can dump to a node_exporter textfile after each build:
//
//	reg := prometheus.NewRegistry()
//	rec := metrics.NewPrometheusRecorder(reg)
//	driver := pipeline.NewDriver(bc, cfg, pipeline.WithRecorder(rec))
//	...
//	_ = metrics.WriteTextfile(path, reg)
package metrics
