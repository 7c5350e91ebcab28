package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds every metric instrument recorded by the gateway
type Metrics struct {
	// HTTP
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// OAuth
	CodeIssued       metric.Int64Counter
	CodeExchanged    metric.Int64Counter
	TokenRefreshed   metric.Int64Counter
	ClientRegistered metric.Int64Counter
	BearerValidated  metric.Int64Counter

	// Security
	RateLimitExceeded    metric.Int64Counter
	PKCEValidationFailed metric.Int64Counter

	// Storage
	StorageOperationTotal    metric.Int64Counter
	StorageOperationDuration metric.Float64Histogram
	StorageEntries           metric.Int64ObservableGauge

	// Identity provider
	ProviderAPICallsTotal metric.Int64Counter
	ProviderAPIDuration   metric.Float64Histogram
	ProviderAPIErrors     metric.Int64Counter
}

type instrumentSpec struct {
	name, description, unit string
}

func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}

	httpMeter := inst.Meter("http")
	serverMeter := inst.Meter("server")
	securityMeter := inst.Meter("security")
	storageMeter := inst.Meter("storage")
	providerMeter := inst.Meter("provider")

	counters := []struct {
		meter metric.Meter
		spec  instrumentSpec
		dst   *metric.Int64Counter
	}{
		{httpMeter, instrumentSpec{"oauth.http.requests.total", "Total number of HTTP requests", "{request}"}, &m.HTTPRequestsTotal},
		{serverMeter, instrumentSpec{"oauth.code.issued", "Number of authorization codes issued", "{code}"}, &m.CodeIssued},
		{serverMeter, instrumentSpec{"oauth.code.exchanged", "Number of authorization codes exchanged for tokens", "{exchange}"}, &m.CodeExchanged},
		{serverMeter, instrumentSpec{"oauth.token.refreshed", "Number of refresh token rotations", "{refresh}"}, &m.TokenRefreshed},
		{serverMeter, instrumentSpec{"oauth.client.registered", "Number of clients registered", "{client}"}, &m.ClientRegistered},
		{serverMeter, instrumentSpec{"oauth.bearer.validated", "Number of bearer token validations by result", "{validation}"}, &m.BearerValidated},
		{securityMeter, instrumentSpec{"oauth.rate_limit.exceeded", "Number of rate limit violations", "{violation}"}, &m.RateLimitExceeded},
		{securityMeter, instrumentSpec{"oauth.pkce.validation_failed", "Number of PKCE validation failures", "{failure}"}, &m.PKCEValidationFailed},
		{storageMeter, instrumentSpec{"storage.operation.total", "Total number of storage operations", "{operation}"}, &m.StorageOperationTotal},
		{providerMeter, instrumentSpec{"provider.api.calls.total", "Total number of identity API calls", "{call}"}, &m.ProviderAPICallsTotal},
		{providerMeter, instrumentSpec{"provider.api.errors", "Number of failed identity API calls", "{error}"}, &m.ProviderAPIErrors},
	}
	for _, c := range counters {
		counter, err := c.meter.Int64Counter(c.spec.name,
			metric.WithDescription(c.spec.description),
			metric.WithUnit(c.spec.unit))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.spec.name, err)
		}
		*c.dst = counter
	}

	histograms := []struct {
		meter metric.Meter
		spec  instrumentSpec
		dst   *metric.Float64Histogram
	}{
		{httpMeter, instrumentSpec{"oauth.http.request.duration", "HTTP request duration in milliseconds", "ms"}, &m.HTTPRequestDuration},
		{storageMeter, instrumentSpec{"storage.operation.duration", "Storage operation duration in milliseconds", "ms"}, &m.StorageOperationDuration},
		{providerMeter, instrumentSpec{"provider.api.duration", "Identity API call duration in milliseconds", "ms"}, &m.ProviderAPIDuration},
	}
	for _, h := range histograms {
		histogram, err := h.meter.Float64Histogram(h.spec.name,
			metric.WithDescription(h.spec.description),
			metric.WithUnit(h.spec.unit))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s histogram: %w", h.spec.name, err)
		}
		*h.dst = histogram
	}

	var err error
	m.StorageEntries, err = storageMeter.Int64ObservableGauge(
		"storage.entries",
		metric.WithDescription("Number of entries held by the storage backend"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.entries gauge: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, endpoint string, statusCode int, durationMs float64) {
	m.HTTPRequestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("endpoint", endpoint),
		attribute.Int("status", statusCode),
	))
	m.HTTPRequestDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
	))
}

// RecordCodeIssued records an authorization code issued through the given auth mode
func (m *Metrics) RecordCodeIssued(ctx context.Context, clientID, authMode string) {
	m.CodeIssued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.String("auth_mode", authMode),
	))
}

// RecordCodeExchange records an authorization code exchange
func (m *Metrics) RecordCodeExchange(ctx context.Context, clientID string) {
	m.CodeExchanged.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
	))
}

// RecordTokenRefresh records a refresh token rotation
func (m *Metrics) RecordTokenRefresh(ctx context.Context, clientID string) {
	m.TokenRefreshed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
	))
}

// RecordClientRegistration records a client registration
func (m *Metrics) RecordClientRegistration(ctx context.Context) {
	m.ClientRegistered.Add(ctx, 1)
}

// RecordBearerValidation records the outcome of a bearer token check
// ("valid", "direct", "missing", "unknown", "expired" or "error").
func (m *Metrics) RecordBearerValidation(ctx context.Context, result string) {
	m.BearerValidated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
	))
}

// RecordRateLimitExceeded records a rate limit violation
func (m *Metrics) RecordRateLimitExceeded(ctx context.Context, endpoint string) {
	m.RateLimitExceeded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
	))
}

// RecordPKCEValidationFailed records a PKCE validation failure
func (m *Metrics) RecordPKCEValidationFailed(ctx context.Context) {
	m.PKCEValidationFailed.Add(ctx, 1)
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(ctx context.Context, operation, result string, durationMs float64) {
	m.StorageOperationTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("result", result),
	))
	m.StorageOperationDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}

// RecordProviderAPICall records a call to the identity API
func (m *Metrics) RecordProviderAPICall(ctx context.Context, operation string, statusCode int, durationMs float64, err error) {
	m.ProviderAPICallsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Int("status", statusCode),
	))
	m.ProviderAPIDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("operation", operation),
	))

	if err != nil {
		errorType := "transport"
		if statusCode >= 400 && statusCode < 500 {
			errorType = "client_error"
		} else if statusCode >= 500 {
			errorType = "server_error"
		}

		m.ProviderAPIErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("error_type", errorType),
		))
	}
}
