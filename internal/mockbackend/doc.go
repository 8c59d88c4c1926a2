// Package mockbackend serves the feeling-analytics HTTP API with canned,
// deterministic answers. It backs `livecall serve --mock`, the mock-backend
// command and the integration tests, and records every request it receives.
package mockbackend
