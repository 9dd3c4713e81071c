package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the grant engine
type Metrics struct {
	// HTTP Layer Metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// Grant Metrics
	AuthorizationStarted metric.Int64Counter
	ConsentDecisions     metric.Int64Counter
	GrantsIssued         metric.Int64Counter
	GrantsDenied         metric.Int64Counter

	// Security Metrics
	RateLimitExceeded  metric.Int64Counter
	CodeReplayDetected metric.Int64Counter
	AuditEventsTotal   metric.Int64Counter

	// Storage Metrics
	StorageOperationTotal     metric.Int64Counter
	StorageOperationDuration  metric.Float64Histogram
	StorageClientsCount       metric.Int64ObservableGauge
	StorageCodesCount         metric.Int64ObservableGauge
	StorageAccessTokensCount  metric.Int64ObservableGauge
	StorageRefreshTokensCount metric.Int64ObservableGauge
	StorageTransactionsCount  metric.Int64ObservableGauge
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}
	httpMeter := inst.Meter("http")
	serverMeter := inst.Meter("server")
	securityMeter := inst.Meter("security")
	storageMeter := inst.Meter("storage")

	var err error
	counter := func(meter metric.Meter, name, desc, unit string) metric.Int64Counter {
		if err != nil {
			return nil
		}
		var c metric.Int64Counter
		c, err = meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
		if err != nil {
			err = fmt.Errorf("failed to create %s counter: %w", name, err)
		}
		return c
	}
	histogram := func(meter metric.Meter, name, desc string) metric.Float64Histogram {
		if err != nil {
			return nil
		}
		var h metric.Float64Histogram
		h, err = meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("ms"))
		if err != nil {
			err = fmt.Errorf("failed to create %s histogram: %w", name, err)
		}
		return h
	}
	gauge := func(name, desc string) metric.Int64ObservableGauge {
		if err != nil {
			return nil
		}
		var g metric.Int64ObservableGauge
		g, err = storageMeter.Int64ObservableGauge(name, metric.WithDescription(desc), metric.WithUnit("{item}"))
		if err != nil {
			err = fmt.Errorf("failed to create %s gauge: %w", name, err)
		}
		return g
	}

	m.HTTPRequestsTotal = counter(httpMeter, "oauth.http.requests.total", "Total number of HTTP requests", "{request}")
	m.HTTPRequestDuration = histogram(httpMeter, "oauth.http.request.duration", "HTTP request duration in milliseconds")

	m.AuthorizationStarted = counter(serverMeter, "oauth.authorization.started", "Number of authorization requests accepted", "{request}")
	m.ConsentDecisions = counter(serverMeter, "oauth.consent.decisions", "Number of consent decisions by outcome", "{decision}")
	m.GrantsIssued = counter(serverMeter, "oauth.grants.issued", "Number of grants issued by grant type", "{grant}")
	m.GrantsDenied = counter(serverMeter, "oauth.grants.denied", "Number of grants denied by grant type and reason", "{grant}")

	m.RateLimitExceeded = counter(securityMeter, "oauth.rate_limit.exceeded", "Number of requests rejected by rate limiting", "{request}")
	m.CodeReplayDetected = counter(securityMeter, "oauth.code.replay_detected", "Number of authorization code replays detected", "{attempt}")
	m.AuditEventsTotal = counter(securityMeter, "oauth.audit.events.total", "Number of security audit events", "{event}")

	m.StorageOperationTotal = counter(storageMeter, "storage.operation.total", "Total number of storage operations", "{operation}")
	m.StorageOperationDuration = histogram(storageMeter, "storage.operation.duration", "Storage operation duration in milliseconds")
	m.StorageClientsCount = gauge("storage.clients.count", "Number of registered clients")
	m.StorageCodesCount = gauge("storage.codes.count", "Number of outstanding authorization codes")
	m.StorageAccessTokensCount = gauge("storage.access_tokens.count", "Number of stored access tokens")
	m.StorageRefreshTokensCount = gauge("storage.refresh_tokens.count", "Number of stored refresh tokens")
	m.StorageTransactionsCount = gauge("storage.transactions.count", "Number of pending authorization transactions")

	if err != nil {
		return nil, err
	}
	return m, nil
}

// RecordHTTPRequest records an HTTP request metric
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, endpoint string, statusCode int, durationMs float64) {
	attrs := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.String("endpoint", endpoint),
		attribute.Int("status", statusCode),
	}

	m.HTTPRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.HTTPRequestDuration.Record(ctx, durationMs, metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

// RecordAuthorizationStarted records an accepted authorization request
func (m *Metrics) RecordAuthorizationStarted(ctx context.Context, clientID string, trusted bool) {
	m.AuthorizationStarted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.Bool("trusted", trusted),
	))
}

// RecordConsentDecision records a user's allow/deny decision
func (m *Metrics) RecordConsentDecision(ctx context.Context, clientID, decision string) {
	m.ConsentDecisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.String("decision", decision),
	))
}

// RecordGrantIssued records a successful grant
func (m *Metrics) RecordGrantIssued(ctx context.Context, grantType, clientID string, withRefreshToken bool) {
	m.GrantsIssued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("grant_type", grantType),
		attribute.String("client_id", clientID),
		attribute.Bool("refresh_token", withRefreshToken),
	))
}

// RecordGrantDenied records a denied grant
func (m *Metrics) RecordGrantDenied(ctx context.Context, grantType, reason string) {
	m.GrantsDenied.Add(ctx, 1, metric.WithAttributes(
		attribute.String("grant_type", grantType),
		attribute.String("reason", reason),
	))
}

// RecordRateLimitExceeded records a rate limit violation
func (m *Metrics) RecordRateLimitExceeded(ctx context.Context, limiterType string) {
	m.RateLimitExceeded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("limiter_type", limiterType),
	))
}

// RecordCodeReplayDetected records a lost race on a single-use authorization code
func (m *Metrics) RecordCodeReplayDetected(ctx context.Context) {
	m.CodeReplayDetected.Add(ctx, 1)
}

// RecordAuditEvent records an audit event
func (m *Metrics) RecordAuditEvent(ctx context.Context, eventType string) {
	m.AuditEventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
	))
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(ctx context.Context, operation, result string, durationMs float64) {
	attrs := []attribute.KeyValue{
		attribute.String("operation", operation),
		attribute.String("result", result),
	}

	m.StorageOperationTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.StorageOperationDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}
