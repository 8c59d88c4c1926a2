// Package metrics exposes Prometheus instrumentation for recording
// sessions, segment uploads, finalization and the local HTTP API.
package metrics
