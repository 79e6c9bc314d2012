package instrumentation

import (
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

// All span helpers must tolerate a nil span: callers pass whatever the
// tracer gave them without checking.

func TestSpanHelpersNilSafe(t *testing.T) {
	RecordError(nil, errors.New("boom"))
	SetSpanSuccess(nil)
	SetSpanError(nil, "failed")
	SetSpanAttributes(nil, attribute.String("key", "value"))
	AddSessionAttributes(nil, "instance-1", true)
	AddRefreshAttributes(nil, true, 4)
	AddRequestAttributes(nil, "GET", "req-1", 200)
	AddStorageAttributes(nil, "save", "ok")
}

func TestRecordErrorNilError(t *testing.T) {
	// A nil error must not mark the span failed; with both nil this must
	// simply not panic.
	RecordError(nil, nil)
}
