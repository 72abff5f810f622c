// Package observability provides structured logging, Prometheus HTTP
// metrics, and health probes for the docvault service.
package observability
