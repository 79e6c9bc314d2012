package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the session core
type Metrics struct {
	// Session lifecycle
	LoginAttempts  metric.Int64Counter
	Logouts        metric.Int64Counter
	ForcedSignOuts metric.Int64Counter

	// Refresh coordination
	RefreshTotal    metric.Int64Counter
	RefreshDuration metric.Float64Histogram
	RefreshWaiters  metric.Int64Counter

	// Request pipeline
	AuthReplays      metric.Int64Counter
	TransientRetries metric.Int64Counter
	RetryExhausted   metric.Int64Counter

	// Throttle guard
	AccountLockouts   metric.Int64Counter
	RateLimitExceeded metric.Int64Counter

	// Cross-instance sync
	SyncMessagesSent     metric.Int64Counter
	SyncMessagesReceived metric.Int64Counter

	// Storage
	StorageRecordsCount metric.Int64ObservableGauge
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}
	var err error

	sessionMeter := inst.Meter("session")
	refreshMeter := inst.Meter("refresh")
	transportMeter := inst.Meter("transport")
	securityMeter := inst.Meter("security")
	storageMeter := inst.Meter("storage")

	m.LoginAttempts, err = sessionMeter.Int64Counter(
		"authcore.login.attempts",
		metric.WithDescription("Login attempts by outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create login.attempts counter: %w", err)
	}

	m.Logouts, err = sessionMeter.Int64Counter(
		"authcore.logouts",
		metric.WithDescription("User-initiated sign-outs"),
		metric.WithUnit("{signout}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create logouts counter: %w", err)
	}

	m.ForcedSignOuts, err = sessionMeter.Int64Counter(
		"authcore.forced_signouts",
		metric.WithDescription("Sign-outs forced by refresh failure or sync"),
		metric.WithUnit("{signout}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create forced_signouts counter: %w", err)
	}

	m.RefreshTotal, err = refreshMeter.Int64Counter(
		"authcore.refresh.total",
		metric.WithDescription("Token refresh operations by outcome"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh.total counter: %w", err)
	}

	m.RefreshDuration, err = refreshMeter.Float64Histogram(
		"authcore.refresh.duration",
		metric.WithDescription("Token refresh duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh.duration histogram: %w", err)
	}

	m.RefreshWaiters, err = refreshMeter.Int64Counter(
		"authcore.refresh.waiters",
		metric.WithDescription("Callers that joined an in-flight refresh instead of starting one"),
		metric.WithUnit("{waiter}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh.waiters counter: %w", err)
	}

	m.AuthReplays, err = transportMeter.Int64Counter(
		"authcore.request.auth_replays",
		metric.WithDescription("Requests replayed after a 401 triggered a refresh"),
		metric.WithUnit("{replay}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request.auth_replays counter: %w", err)
	}

	m.TransientRetries, err = transportMeter.Int64Counter(
		"authcore.request.transient_retries",
		metric.WithDescription("Retries of requests that hit a transient status"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request.transient_retries counter: %w", err)
	}

	m.RetryExhausted, err = transportMeter.Int64Counter(
		"authcore.request.retry_exhausted",
		metric.WithDescription("Requests that consumed the whole retry budget"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request.retry_exhausted counter: %w", err)
	}

	m.AccountLockouts, err = securityMeter.Int64Counter(
		"authcore.lockouts",
		metric.WithDescription("Account lockouts applied by the throttle guard"),
		metric.WithUnit("{lockout}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create lockouts counter: %w", err)
	}

	m.RateLimitExceeded, err = securityMeter.Int64Counter(
		"authcore.rate_limit.exceeded",
		metric.WithDescription("Submissions rejected by the pacing limiter"),
		metric.WithUnit("{rejection}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate_limit.exceeded counter: %w", err)
	}

	m.SyncMessagesSent, err = sessionMeter.Int64Counter(
		"authcore.sync.sent",
		metric.WithDescription("Session sync messages broadcast to sibling instances"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync.sent counter: %w", err)
	}

	m.SyncMessagesReceived, err = sessionMeter.Int64Counter(
		"authcore.sync.received",
		metric.WithDescription("Session sync messages applied from sibling instances"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync.received counter: %w", err)
	}

	m.StorageRecordsCount, err = storageMeter.Int64ObservableGauge(
		"authcore.storage.records",
		metric.WithDescription("Login security records currently tracked"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.records gauge: %w", err)
	}

	return m, nil
}

// Helper methods for common metric recording patterns

// RecordLoginAttempt records a login attempt with its outcome
func (m *Metrics) RecordLoginAttempt(ctx context.Context, outcome string) {
	m.LoginAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

// RecordLogout records a user-initiated sign-out
func (m *Metrics) RecordLogout(ctx context.Context) {
	m.Logouts.Add(ctx, 1)
}

// RecordForcedSignOut records a sign-out not initiated by the user
func (m *Metrics) RecordForcedSignOut(ctx context.Context, reason string) {
	m.ForcedSignOuts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

// RecordRefresh records a refresh operation with its outcome and duration
func (m *Metrics) RecordRefresh(ctx context.Context, success bool, durationMs float64) {
	m.RefreshTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("success", success),
	))
	m.RefreshDuration.Record(ctx, durationMs)
}

// RecordRefreshWaiter records a caller that joined an in-flight refresh
func (m *Metrics) RecordRefreshWaiter(ctx context.Context) {
	m.RefreshWaiters.Add(ctx, 1)
}

// RecordAuthReplay records a request replayed after a mid-flight refresh
func (m *Metrics) RecordAuthReplay(ctx context.Context, succeeded bool) {
	m.AuthReplays.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("succeeded", succeeded),
	))
}

// RecordTransientRetry records one retry of a transiently failed request
func (m *Metrics) RecordTransientRetry(ctx context.Context, attempt int) {
	m.TransientRetries.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("attempt", attempt),
	))
}

// RecordRetryExhausted records a request that used its whole retry budget
func (m *Metrics) RecordRetryExhausted(ctx context.Context, attempts int) {
	m.RetryExhausted.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("attempts", attempts),
	))
}

// RecordAccountLockout records a lockout at the given escalation level
func (m *Metrics) RecordAccountLockout(ctx context.Context, level int) {
	m.AccountLockouts.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("level", level),
	))
}

// RecordRateLimitExceeded records a pacing rejection
func (m *Metrics) RecordRateLimitExceeded(ctx context.Context, kind string) {
	m.RateLimitExceeded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
	))
}

// RecordSyncSent records a broadcast session sync message
func (m *Metrics) RecordSyncSent(ctx context.Context, messageType string) {
	m.SyncMessagesSent.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", messageType),
	))
}

// RecordSyncReceived records an applied session sync message
func (m *Metrics) RecordSyncReceived(ctx context.Context, messageType string) {
	m.SyncMessagesReceived.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", messageType),
	))
}
