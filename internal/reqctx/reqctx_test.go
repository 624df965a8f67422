package reqctx

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestCorrelationID_RoundTrip(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "abc")
	if got := CorrelationID(ctx); got != "abc" {
		t.Errorf("CorrelationID() = %q, want abc", got)
	}
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID() on empty context = %q, want empty", got)
	}
}

func TestLogger_Fallback(t *testing.T) {
	fallback := zap.NewExample()
	if got := Logger(context.Background(), fallback); got != fallback {
		t.Error("Logger() did not return fallback")
	}
	if got := Logger(context.Background(), nil); got == nil {
		t.Error("Logger() returned nil with nil fallback")
	}
	reqLogger := zap.NewExample()
	ctx := WithLogger(context.Background(), reqLogger)
	if got := Logger(ctx, fallback); got != reqLogger {
		t.Error("Logger() did not return request logger")
	}
}
