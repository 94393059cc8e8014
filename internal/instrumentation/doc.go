// Package instrumentation provides OpenTelemetry metrics and tracing for
// inboxharvest.
//
// Instrumentation is off by default for the CLI. When enabled, metrics are
// exported through Prometheus (served by internal/server), OTLP or stdout,
// and spans through OTLP or stdout.
//
// # Metrics
//
// Harvest:
//   - harvest_messages_total: messages processed
//   - harvest_attachments_total{result}: candidates by result (written, skipped, rejected, data_gap)
//   - harvest_bytes_written_total: bytes persisted
//   - harvest_runs_total{status} and harvest_run_duration_seconds{status}
//
// Google API:
//   - google_api_operations_total{service,operation,status}
//   - google_api_operation_duration_seconds{service,operation,status}
//
// OAuth and MCP:
//   - oauth_token_refresh_total{result}
//   - mcp_tool_invocations_total{tool,status} and mcp_tool_duration_seconds
//
// # Tracing
//
// Spans are created for a harvest run (harvest.run), each Gmail call
// (google.gmail.<operation>) and each MCP tool invocation (tool.<name>).
//
// # Configuration
//
// Environment variables:
//   - INSTRUMENTATION_ENABLED: Enable instrumentation (default: false)
//   - METRICS_EXPORTER: prometheus, otlp, stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout, none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 1.0)
//   - OTEL_SERVICE_NAME: Service name (default: inboxharvest)
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	h := harvest.New(client, writer, harvest.WithMetrics(provider.Metrics()))
package instrumentation
