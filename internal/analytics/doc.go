// Package analytics is the HTTP client for the feeling-analytics backend:
// live chunk scoring, end-of-call reports, batch analysis and the stored
// call history.
package analytics
