package instrumentation

import (
	"context"
	"testing"
)

func TestNewWithDefaults(t *testing.T) {
	inst, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if inst.Metrics() == nil {
		t.Error("Metrics() returned nil")
	}
	if inst.MeterProvider() == nil {
		t.Error("MeterProvider() returned nil")
	}
	if inst.TracerProvider() == nil {
		t.Error("TracerProvider() returned nil")
	}
}

func TestDisabledUsesNoopProviders(t *testing.T) {
	inst, err := New(Config{Enabled: false})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// Recording against no-op instruments must not panic.
	ctx := context.Background()
	m := inst.Metrics()
	m.RecordLoginAttempt(ctx, "success")
	m.RecordRefresh(ctx, true, 100)
	m.RecordAuthReplay(ctx, true)
	m.RecordTransientRetry(ctx, 1)
	m.RecordAccountLockout(ctx, 1)
	m.RecordSyncSent(ctx, "sign_out")
	m.RecordForcedSignOut(ctx, "refresh_failed")
}

func TestMeterAndTracerScoping(t *testing.T) {
	inst, err := New(Config{ServiceName: "test-service"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if inst.Meter("transport") == nil {
		t.Error("Meter() returned nil")
	}
	if inst.Tracer("refresh") == nil {
		t.Error("Tracer() returned nil")
	}
}

func TestRegisterRecordCountCallback(t *testing.T) {
	inst, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := inst.RegisterRecordCountCallback(func() int64 { return 3 }); err != nil {
		t.Errorf("RegisterRecordCountCallback() error = %v", err)
	}
	if err := inst.RegisterRecordCountCallback(nil); err == nil {
		t.Error("expected error for nil callback")
	}
}

func TestShutdownIdempotent(t *testing.T) {
	inst, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	if err := inst.Shutdown(ctx); err != nil {
		t.Errorf("first Shutdown() error = %v", err)
	}
	if err := inst.Shutdown(ctx); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}
