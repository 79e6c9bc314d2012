package security

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func newCapturedAuditor(enabled bool) (*Auditor, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	return NewAuditor(logger, enabled), &buf
}

func TestAuditorHashesIdentifier(t *testing.T) {
	auditor, buf := newCapturedAuditor(true)

	auditor.LogLoginFailed("user@example.com", 2)

	out := buf.String()
	if strings.Contains(out, "user@example.com") {
		t.Error("raw identifier leaked into audit log")
	}
	if !strings.Contains(out, EventLoginFailed) {
		t.Errorf("event type missing from output: %s", out)
	}
	if !strings.Contains(out, "attempts") {
		t.Errorf("details missing from output: %s", out)
	}
}

func TestAuditorDisabled(t *testing.T) {
	auditor, buf := newCapturedAuditor(false)

	auditor.LogLoginFailed("user@example.com", 1)
	auditor.LogAccountLocked("user@example.com", 1, 0)

	if buf.Len() != 0 {
		t.Errorf("disabled auditor produced output: %s", buf.String())
	}
}

func TestNilAuditorSafe(t *testing.T) {
	var auditor *Auditor
	auditor.LogLoginFailed("user@example.com", 1)
	auditor.LogForcedSignOut("instance", "refresh_failed")
	auditor.LogEvent(Event{Type: EventSignOut})
}

func TestAuditorEventFields(t *testing.T) {
	auditor, buf := newCapturedAuditor(true)

	auditor.LogForcedSignOut("instance-1", "refresh_failed")

	out := buf.String()
	if !strings.Contains(out, EventForcedSignOut) {
		t.Errorf("event type missing: %s", out)
	}
	if !strings.Contains(out, "instance-1") {
		t.Errorf("instance ID missing: %s", out)
	}
	if !strings.Contains(out, "refresh_failed") {
		t.Errorf("reason missing: %s", out)
	}
}

func TestHashForLogging(t *testing.T) {
	a := hashForLogging("user@example.com")
	b := hashForLogging("user@example.com")
	c := hashForLogging("other@example.com")

	if a != b {
		t.Error("hash not stable for identical input")
	}
	if a == c {
		t.Error("hash collision for different inputs")
	}
	if len(a) != 16 {
		t.Errorf("hash length = %d, want 16", len(a))
	}
	if hashForLogging("") != "<empty>" {
		t.Error("empty input not marked")
	}
}
