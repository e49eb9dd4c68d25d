// Package observability provides structured logging, Prometheus
// metrics, health probes, and graceful shutdown for the warden server.
//
// Logging is JSON over stdlib slog:
//
//	logger := observability.NewLogger(observability.InfoLevel, nil)
//	logger.WithField("principal_id", id).Info("decision cached")
//
// Request-scoped values (request id, acting principal) travel on the
// context and are folded into log lines by FromContext.
//
// The health checker probes the database and, when configured, the
// Redis decision cache; Redis being down degrades rather than fails
// readiness because decisions recompute on cache miss.
package observability
