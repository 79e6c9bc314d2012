// Package instrumentation provides OpenTelemetry metrics and tracing for the
// session core. Instrumentation is disabled by default and falls back to
// no-op providers, so embedding applications pay nothing unless they opt in.
//
// # Usage
//
//	inst, err := instrumentation.New(instrumentation.Config{
//	    ServiceName:    "seeker-web",
//	    ServiceVersion: "1.4.2",
//	    Enabled:        true,
//	    MeterProvider:  myMeterProvider,
//	    TracerProvider: myTracerProvider,
//	})
//	if err != nil {
//	    return err
//	}
//	defer inst.Shutdown(ctx)
//
//	inst.Metrics().RecordRefresh(ctx, true, 182.4)
//
// Components receive the *Instrumentation and record through the pre-built
// instruments on Metrics. When Enabled is false, or when no providers are
// supplied, every instrument is a no-op.
//
// # What gets measured
//
//   - Session lifecycle: login attempts by outcome, sign-outs, forced
//     sign-outs by reason
//   - Refresh coordination: operations by outcome, duration, waiter joins
//   - Request pipeline: 401 replays, transient retries, exhausted budgets
//   - Throttle guard: lockouts by level, pacing rejections
//   - Cross-instance sync: messages sent and applied
//
// Credential values never appear in metrics or traces; attribute helpers in
// this package accept metadata only.
package instrumentation
