package instrumentation

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common span attribute keys
//
// SECURITY WARNING: Never log actual credential values (access tokens,
// refresh tokens, passwords) in traces or metrics. Only log metadata such as
// token presence, expiry times, and validation results. Traces are persisted
// and replicated far beyond the systems that produced them.
const (
	// Session attributes - metadata only
	AttrInstanceID    = "session.instance_id"    // Originating client instance
	AttrTokenPresent  = "session.token_present"  // Whether an access token exists (boolean)
	AttrTokenExpired  = "session.token_expired"  // Whether the token was treated as expired (boolean)
	AttrSignOutReason = "session.signout_reason" // Why a session was terminated

	// Refresh attributes
	AttrRefreshLeader  = "refresh.leader"  // Whether this caller initiated the refresh (boolean)
	AttrRefreshWaiters = "refresh.waiters" // Number of callers awaiting the outcome

	// Request pipeline attributes
	AttrHTTPMethod     = "http.method"
	AttrHTTPStatusCode = "http.status_code"
	AttrRequestID      = "http.request_id"
	AttrRetryAttempt   = "http.retry_attempt"
	AttrAuthReplayed   = "http.auth_replayed" // Whether the request was replayed after a refresh (boolean)

	// Security attributes
	AttrLockoutLevel   = "security.lockout_level"
	AttrAuditEventType = "security.audit.event_type"

	// Storage attributes
	AttrStorageOperation = "storage.operation"
	AttrStorageResult    = "storage.result"
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

// AddSessionAttributes adds session metadata to a span (nil-safe).
// Pass token presence, never the token itself.
func AddSessionAttributes(span trace.Span, instanceID string, tokenPresent bool) {
	if instanceID != "" {
		SetSpanAttributes(span, attribute.String(AttrInstanceID, instanceID))
	}
	SetSpanAttributes(span, attribute.Bool(AttrTokenPresent, tokenPresent))
}

// AddRefreshAttributes adds refresh coordination attributes to a span (nil-safe)
func AddRefreshAttributes(span trace.Span, leader bool, waiters int) {
	SetSpanAttributes(span,
		attribute.Bool(AttrRefreshLeader, leader),
		attribute.Int(AttrRefreshWaiters, waiters),
	)
}

// AddRequestAttributes adds request pipeline attributes to a span (nil-safe)
func AddRequestAttributes(span trace.Span, method, requestID string, statusCode int) {
	SetSpanAttributes(span,
		attribute.String(AttrHTTPMethod, method),
		attribute.Int(AttrHTTPStatusCode, statusCode),
	)
	if requestID != "" {
		SetSpanAttributes(span, attribute.String(AttrRequestID, requestID))
	}
}

// AddStorageAttributes adds storage operation attributes to a span (nil-safe)
func AddStorageAttributes(span trace.Span, operation, result string) {
	SetSpanAttributes(span,
		attribute.String(AttrStorageOperation, operation),
		attribute.String(AttrStorageResult, result),
	)
}
