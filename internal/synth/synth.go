package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/voxkit/voxd/internal/voices"
)

// ErrEmptyInput is returned when there is no text to synthesize.
var ErrEmptyInput = errors.New("no text provided to synthesize")

// SynthesisError wraps an engine failure that survived the retry.
type SynthesisError struct {
	Voice string
	Cause error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis failed for voice %q: %v", e.Voice, e.Cause)
}

func (e *SynthesisError) Unwrap() error { return e.Cause }

// Synthesizer resolves voices against the catalog and runs the engine.
// All engine invocations in the process go through a single mutex: the
// underlying engine is not reentrant-safe, so callers queue instead of
// parallelizing.
type Synthesizer struct {
	catalog *voices.Catalog
	factory EngineFactory
	logger  *slog.Logger

	engineMu sync.Mutex

	cacheMu sync.Mutex
	engines map[string]Engine
}

func New(catalog *voices.Catalog, factory EngineFactory, logger *slog.Logger) *Synthesizer {
	return &Synthesizer{
		catalog: catalog,
		factory: factory,
		logger:  logger.With(slog.String("component", "synthesizer")),
		engines: make(map[string]Engine),
	}
}

// Catalog exposes the read-only voice table.
func (s *Synthesizer) Catalog() *voices.Catalog { return s.catalog }

// Speak synthesizes text with the given voice (empty selects the
// default) and returns the concatenated PCM plus the resolved voice
// name. On an engine failure the cached engine for that language is
// discarded and exactly one retry runs on a fresh engine; the fresh
// engine is cached only if it succeeds.
func (s *Synthesizer) Speak(ctx context.Context, text, voice string) ([]float32, string, error) {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return nil, "", ErrEmptyInput
	}
	name, lang, err := s.catalog.Resolve(voice)
	if err != nil {
		return nil, "", err
	}

	var cause error
	for attempt := 0; attempt < 2; attempt++ {
		fresh := attempt > 0
		eng, err := s.engineFor(ctx, lang, fresh)
		if err != nil {
			if cause == nil {
				cause = err
			}
			continue
		}

		samples, err := s.run(ctx, eng, clean, name)
		if err == nil {
			if fresh {
				s.store(lang, eng)
			}
			return samples, name, nil
		}
		if cause == nil {
			cause = err
		}
		s.logger.Warn("engine failed",
			slog.String("voice", name),
			slog.String("lang", lang),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))
		if fresh {
			_ = eng.Close()
		} else {
			s.evict(lang)
		}
	}
	return nil, name, &SynthesisError{Voice: name, Cause: cause}
}

func (s *Synthesizer) run(ctx context.Context, eng Engine, text, voice string) ([]float32, error) {
	s.engineMu.Lock()
	defer s.engineMu.Unlock()

	segments, err := eng.Synthesize(ctx, text, voice)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, seg := range segments {
		total += len(seg)
	}
	if total == 0 {
		return nil, errors.New("engine returned empty audio")
	}
	out := make([]float32, 0, total)
	for _, seg := range segments {
		out = append(out, seg...)
	}
	return out, nil
}

// engineFor returns the cached engine for lang, creating and caching
// one on first use. With fresh set the cache is bypassed and the new
// engine is NOT cached; the caller stores it on success.
func (s *Synthesizer) engineFor(ctx context.Context, lang string, fresh bool) (Engine, error) {
	if fresh {
		return s.factory(ctx, lang)
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if eng, ok := s.engines[lang]; ok {
		return eng, nil
	}
	eng, err := s.factory(ctx, lang)
	if err != nil {
		return nil, fmt.Errorf("create engine for lang %q: %w", lang, err)
	}
	s.engines[lang] = eng
	return eng, nil
}

func (s *Synthesizer) store(lang string, eng Engine) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if old, ok := s.engines[lang]; ok && old != eng {
		_ = old.Close()
	}
	s.engines[lang] = eng
}

func (s *Synthesizer) evict(lang string) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if eng, ok := s.engines[lang]; ok {
		_ = eng.Close()
		delete(s.engines, lang)
	}
}

// Close shuts down every cached engine.
func (s *Synthesizer) Close() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	for lang, eng := range s.engines {
		if err := eng.Close(); err != nil {
			s.logger.Warn("engine close failed", slog.String("lang", lang), slog.String("error", err.Error()))
		}
		delete(s.engines, lang)
	}
}
