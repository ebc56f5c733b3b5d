package synth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestExecEngineHonorsContextDeadline(t *testing.T) {
	factory, err := NewExecEngineFactory("sleep 30", 24000)
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	eng, err := factory(context.Background(), "a")
	if err != nil {
		t.Fatalf("create engine: %v", err)
	}
	defer eng.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = eng.Synthesize(ctx, "hello", "af_heart")
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected an error from a worker that never responds")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if elapsed > 2*time.Second {
		t.Fatalf("synthesize blocked %v past a 200ms deadline", elapsed)
	}
}

func TestExecEngineRejectsBadCommand(t *testing.T) {
	if _, err := NewExecEngineFactory("", 24000); err == nil {
		t.Fatal("expected error for empty command")
	}
	if _, err := NewExecEngineFactory(`sleep "unterminated`, 24000); err == nil {
		t.Fatal("expected error for unparseable command")
	}
}
