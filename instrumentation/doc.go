// Package instrumentation wires OpenTelemetry metrics and traces for the gateway.
//
// Metrics are exported in Prometheus format through an isolated registry, served by
// [Instrumentation.MetricsHandler]. Traces can be written to stdout for local
// debugging. When instrumentation is disabled every provider is a no-op, so callers
// never need to nil-check the meters or tracers they obtain.
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		ServiceName:     "mcp-gateway",
//		ServiceVersion:  version,
//		Enabled:         true,
//		MetricsExporter: instrumentation.ExporterPrometheus,
//	})
//	if err != nil {
//		return err
//	}
//	defer inst.Shutdown(context.Background())
//
//	mux.Handle("/metrics", inst.MetricsHandler())
//
// # Available Metrics
//
// HTTP:
//   - oauth.http.requests.total{method, endpoint, status}
//   - oauth.http.request.duration{endpoint}
//
// OAuth:
//   - oauth.code.issued{client_id, auth_mode}
//   - oauth.code.exchanged{client_id}
//   - oauth.token.refreshed{client_id}
//   - oauth.client.registered
//   - oauth.bearer.validated{result}
//
// Security:
//   - oauth.rate_limit.exceeded{endpoint}
//   - oauth.pkce.validation_failed
//
// Storage and identity provider:
//   - storage.operation.total{operation, result}
//   - storage.operation.duration{operation}
//   - storage.entries
//   - provider.api.calls.total{operation, status}
//   - provider.api.duration{operation}
//   - provider.api.errors{operation, error_type}
//
// Credentials are never recorded as attribute values. Attribute keys exist for
// identifiers that are safe to expose, such as client IDs and scopes.
package instrumentation
