// Package metrics provides the observability hooks for hotpatch pipeline runs.
//
// # Design Philosophy
//
// This package implements the Null Object pattern so that the registry,
// the injector and runner chains, the fetcher and the engine can record
// metrics without nil checks. By default every component uses NoopRecorder.
//
// # Architecture
//
//  1. Recorder interface - all metrics operations
//  2. NoopRecorder - default, does nothing
//  3. MemoryRecorder - in-process counters for tests and run summaries
//  4. PrometheusRecorder - exported through HTTPHandler by the daemon
//
// # Usage Pattern
//
// Components receive a Recorder through options:
//
//	chain := transforms.NewChain(injectors, transforms.WithRecorder(recorder))
//
// metrics.OrNoop normalizes a nil Recorder.
package metrics
