// Package meter measures the live input level so operators get volume
// feedback while a call is being recorded.
package meter
