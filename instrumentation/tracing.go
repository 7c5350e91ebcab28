package instrumentation

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
//
// Never set these to credential values (codes, access tokens, refresh tokens,
// API tokens or passwords). Only identifiers and outcomes belong in traces.
const (
	AttrClientID    = "oauth.client_id"
	AttrScope       = "oauth.scope"
	AttrPKCEMethod  = "oauth.pkce.method"
	AttrGrantType   = "oauth.grant_type"
	AttrAuthMode    = "oauth.auth_mode"
	AttrTokenDirect = "oauth.token.direct" //nolint:gosec // boolean flag, not a credential

	AttrStorageOperation = "storage.operation"
	AttrStorageType      = "storage.type"

	AttrProviderOperation = "provider.operation"
	AttrProviderStatus    = "provider.status"

	AttrClientIP = "security.client_ip"

	AttrHTTPEndpoint   = "http.endpoint"
	AttrHTTPMethod     = "http.method"
	AttrHTTPStatusCode = "http.status_code"
)

// RecordError records an error on a span with proper status codes (nil-safe)
func RecordError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks a span as successful (nil-safe)
func SetSpanSuccess(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// SetSpanError sets an error status on a span (nil-safe)
func SetSpanError(span trace.Span, message string) {
	if span != nil {
		span.SetStatus(codes.Error, message)
	}
}

// SetSpanAttributes sets attributes on a span (nil-safe)
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span != nil {
		span.SetAttributes(attrs...)
	}
}

// AddOAuthFlowAttributes adds client and scope attributes to a span, skipping empty values.
func AddOAuthFlowAttributes(span trace.Span, clientID, scope string) {
	if clientID != "" {
		SetSpanAttributes(span, attribute.String(AttrClientID, clientID))
	}
	if scope != "" {
		SetSpanAttributes(span, attribute.String(AttrScope, scope))
	}
}

// AddHTTPAttributes adds HTTP request attributes to a span (nil-safe)
func AddHTTPAttributes(span trace.Span, method, endpoint string, statusCode int) {
	SetSpanAttributes(span,
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPEndpoint, endpoint),
		attribute.Int(AttrHTTPStatusCode, statusCode),
	)
}

// AddSecurityAttributes adds the client IP when IP logging is enabled on inst.
func AddSecurityAttributes(inst *Instrumentation, span trace.Span, clientIP string) {
	if inst == nil || !inst.ShouldLogClientIPs() || clientIP == "" {
		return
	}
	SetSpanAttributes(span, attribute.String(AttrClientIP, clientIP))
}

func storageTypeAttr(backend string) attribute.KeyValue {
	return attribute.String(AttrStorageType, backend)
}
