// Package session runs a live call: it pumps captured frames into the
// accumulator, cuts a WAV segment on every interval, uploads segments for
// chunk analysis and merges the results into a running transcript and
// alert list. The Manager enforces the recorder lifecycle and finalizes a
// stopped call into a consolidated report.
//
// Every recording holds a cancellation Token. Stopping cancels it, and
// results of uploads issued under a cancelled or replaced token are
// discarded.
package session
