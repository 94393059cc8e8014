// Package server exposes operational HTTP endpoints next to a harvest run or
// the MCP stdio server.
//
// MetricsServer serves the Prometheus scrape endpoint fed by the
// OpenTelemetry exporter, plus liveness and readiness probes from
// HealthChecker. It listens on its own address so that operational traffic
// never mixes with anything else the process does.
package server
