// Package instrumentation provides OpenTelemetry instrumentation for the grant engine.
//
// It wires metrics and traces across the HTTP, server, storage and security
// layers. When disabled, no-op providers are used and instrumentation costs
// nothing.
//
// # Quick Start
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		ServiceName:     "oauth2d",
//		ServiceVersion:  "1.0.0",
//		Enabled:         true,
//		MetricsExporter: instrumentation.MetricsExporterPrometheus,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
//	srv.SetInstrumentation(inst)
//	store.SetInstrumentation(inst)
//	mux.Handle("/metrics", inst.MetricsHandler())
//
// # Available Metrics
//
// HTTP Layer:
//   - oauth.http.requests.total{method, endpoint, status}
//   - oauth.http.request.duration{endpoint}
//
// Grants:
//   - oauth.authorization.started{client_id, trusted}
//   - oauth.consent.decisions{client_id, decision}
//   - oauth.grants.issued{grant_type, client_id, refresh_token}
//   - oauth.grants.denied{grant_type, reason}
//
// Security:
//   - oauth.rate_limit.exceeded{limiter_type}
//   - oauth.code.replay_detected
//   - oauth.audit.events.total{event_type}
//
// Storage:
//   - storage.operation.total{operation, result}
//   - storage.operation.duration{operation}
//   - storage.{clients,codes,access_tokens,refresh_tokens,transactions}.count
//
// # Traces
//
// Spans are named by layer: oauth.http.<endpoint>, server.<operation>,
// storage.<operation>. Credential values are never attached to spans.
package instrumentation
