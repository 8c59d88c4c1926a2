// Package app wires configuration into the recorder's components: the
// analytics client, the capture source, metrics, the notifier fan-out and
// the session manager. Commands build one App and share it.
package app
