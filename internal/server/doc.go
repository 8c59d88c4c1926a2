// Package server implements the local HTTP API of the recorder: session
// control, recording download, a websocket event feed, pass-through of the
// backend's call history and the Prometheus endpoint.
package server
