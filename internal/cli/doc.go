// Package cli implements the livecall command tree.
package cli
