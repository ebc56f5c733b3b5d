package synth

import (
	"context"
	"time"
)

type mockEngine struct {
	delay time.Duration
}

// NewMockEngineFactory builds engines that emit a short silent segment
// per request, for dev mode and tests.
func NewMockEngineFactory(delay time.Duration) EngineFactory {
	return func(ctx context.Context, langCode string) (Engine, error) {
		return &mockEngine{delay: delay}, nil
	}
}

func (m *mockEngine) Synthesize(ctx context.Context, text, voice string) ([][]float32, error) {
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.delay):
		}
	}
	// One sample per rune keeps output length proportional to input.
	seg := make([]float32, len([]rune(text)))
	return [][]float32{seg}, nil
}

func (m *mockEngine) Close() error { return nil }
