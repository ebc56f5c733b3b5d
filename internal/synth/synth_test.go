package synth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voxkit/voxd/internal/voices"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testCatalog() *voices.Catalog {
	return voices.New([]voices.Entry{
		{Name: "af_heart", LangCode: "a"},
		{Name: "jf_alpha", LangCode: "j"},
	}, "af_heart", "a")
}

type fakeEngine struct {
	failures  *int32 // remaining failures across the fake
	closed    int32
	active    *int32 // engines currently inside Synthesize
	overlap   *int32 // set when two invocations overlap
	delay     time.Duration
	synthName string
}

func (f *fakeEngine) Synthesize(ctx context.Context, text, voice string) ([][]float32, error) {
	if f.active != nil {
		if atomic.AddInt32(f.active, 1) > 1 {
			atomic.StoreInt32(f.overlap, 1)
		}
		defer atomic.AddInt32(f.active, -1)
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.failures != nil && atomic.AddInt32(f.failures, -1) >= 0 {
		return nil, errors.New("engine blew up")
	}
	return [][]float32{{0.1, 0.2}, {0.3}}, nil
}

func (f *fakeEngine) Close() error {
	atomic.AddInt32(&f.closed, 1)
	return nil
}

func TestSpeakConcatenatesSegments(t *testing.T) {
	var created int32
	factory := func(ctx context.Context, lang string) (Engine, error) {
		atomic.AddInt32(&created, 1)
		return &fakeEngine{}, nil
	}
	s := New(testCatalog(), factory, testLogger())

	samples, voice, err := s.Speak(context.Background(), "Hello there.", "af_heart")
	if err != nil {
		t.Fatalf("speak: %v", err)
	}
	if voice != "af_heart" {
		t.Fatalf("expected resolved voice af_heart, got %s", voice)
	}
	if len(samples) != 3 {
		t.Fatalf("expected concatenated 3 samples, got %d", len(samples))
	}

	// Second call for the same language reuses the cached engine.
	if _, _, err := s.Speak(context.Background(), "Again.", "af_heart"); err != nil {
		t.Fatalf("speak: %v", err)
	}
	if n := atomic.LoadInt32(&created); n != 1 {
		t.Fatalf("expected one engine per language, factory ran %d times", n)
	}
}

func TestSpeakUnknownVoiceBeforeEngine(t *testing.T) {
	var created int32
	factory := func(ctx context.Context, lang string) (Engine, error) {
		atomic.AddInt32(&created, 1)
		return &fakeEngine{}, nil
	}
	s := New(testCatalog(), factory, testLogger())

	_, _, err := s.Speak(context.Background(), "Hello.", "nope")
	if !errors.Is(err, voices.ErrUnknownVoice) {
		t.Fatalf("expected ErrUnknownVoice, got %v", err)
	}
	if atomic.LoadInt32(&created) != 0 {
		t.Fatal("engine must not be created for an unknown voice")
	}
}

func TestSpeakEmptyInput(t *testing.T) {
	s := New(testCatalog(), NewMockEngineFactory(0), testLogger())
	if _, _, err := s.Speak(context.Background(), "   \n ", ""); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
}

func TestSpeakRetriesOnceWithFreshEngine(t *testing.T) {
	failures := int32(1)
	var engines []*fakeEngine
	factory := func(ctx context.Context, lang string) (Engine, error) {
		e := &fakeEngine{failures: &failures}
		engines = append(engines, e)
		return e, nil
	}
	s := New(testCatalog(), factory, testLogger())

	samples, _, err := s.Speak(context.Background(), "Hello.", "af_heart")
	if err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if len(samples) == 0 {
		t.Fatal("expected audio from retry")
	}
	if len(engines) != 2 {
		t.Fatalf("expected a fresh engine for the retry, factory ran %d times", len(engines))
	}
	if atomic.LoadInt32(&engines[0].closed) != 1 {
		t.Fatalf("expected the failed engine evicted exactly once, closed %d times", engines[0].closed)
	}
	if atomic.LoadInt32(&engines[1].closed) != 0 {
		t.Fatal("successful retry engine must stay cached")
	}

	// The retry engine is now the cached one.
	if _, _, err := s.Speak(context.Background(), "More.", "af_heart"); err != nil {
		t.Fatalf("speak after retry: %v", err)
	}
	if len(engines) != 2 {
		t.Fatalf("expected cached retry engine, factory ran %d times", len(engines))
	}
}

func TestSpeakFailsAfterSecondFailure(t *testing.T) {
	failures := int32(2)
	var engines []*fakeEngine
	factory := func(ctx context.Context, lang string) (Engine, error) {
		e := &fakeEngine{failures: &failures}
		engines = append(engines, e)
		return e, nil
	}
	s := New(testCatalog(), factory, testLogger())

	_, _, err := s.Speak(context.Background(), "Hello.", "af_heart")
	var synthErr *SynthesisError
	if !errors.As(err, &synthErr) {
		t.Fatalf("expected SynthesisError, got %v", err)
	}
	if synthErr.Voice != "af_heart" {
		t.Fatalf("expected voice in error, got %q", synthErr.Voice)
	}
	if synthErr.Cause == nil {
		t.Fatal("expected original cause attached")
	}
	if atomic.LoadInt32(&engines[0].closed) != 1 {
		t.Fatalf("expected cached engine evicted exactly once, closed %d times", engines[0].closed)
	}

	// Cache must be empty: the next call builds a new engine.
	failures = 0
	if _, _, err := s.Speak(context.Background(), "Hello.", "af_heart"); err != nil {
		t.Fatalf("speak after eviction: %v", err)
	}
	if len(engines) != 3 {
		t.Fatalf("expected new engine after eviction, factory ran %d times", len(engines))
	}
}

func TestSpeakSerializesEngineCalls(t *testing.T) {
	var active, overlap int32
	factory := func(ctx context.Context, lang string) (Engine, error) {
		return &fakeEngine{active: &active, overlap: &overlap, delay: time.Duration(rand.Intn(5)+1) * time.Millisecond}, nil
	}
	s := New(testCatalog(), factory, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		voice := "af_heart"
		if i%2 == 0 {
			voice = "jf_alpha"
		}
		wg.Add(1)
		go func(v string) {
			defer wg.Done()
			if _, _, err := s.Speak(context.Background(), "Hello.", v); err != nil {
				t.Errorf("speak: %v", err)
			}
		}(voice)
	}
	wg.Wait()

	if atomic.LoadInt32(&overlap) != 0 {
		t.Fatal("engine invocations overlapped; synthesis must be serialized process-wide")
	}
}
