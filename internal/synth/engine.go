// Package synth adapts a text-to-speech engine behind a serialized,
// per-language cached synthesizer.
package synth

import "context"

// Engine is one TTS execution context for a single language code.
// Construction is expensive; instances are cached by the Synthesizer.
// Engines are not safe for concurrent invocation.
type Engine interface {
	// Synthesize yields one or more mono float PCM segments for text.
	// An engine may internally sub-chunk long input.
	Synthesize(ctx context.Context, text, voice string) ([][]float32, error)
	Close() error
}

// EngineFactory builds an Engine for a language code.
type EngineFactory func(ctx context.Context, langCode string) (Engine, error)
