package eventstore

import (
	"context"
	"fmt"
	"log/slog"
)

// TimelineSink records per-chunk synthesis outcomes onto one
// conversation's timeline. It satisfies the pipeline's event sink
// shape; playback completions are not persisted.
type TimelineSink struct {
	store          *Store
	conversationID string
	voice          string
}

func NewTimelineSink(store *Store, conversationID, voice string) *TimelineSink {
	return &TimelineSink{store: store, conversationID: conversationID, voice: voice}
}

func (t *TimelineSink) append(kind, content string) {
	err := t.store.AppendEvent(context.Background(), Event{
		ConversationID: t.conversationID,
		Kind:           kind,
		Voice:          t.voice,
		Content:        content,
	})
	if err != nil {
		t.store.log.Warn("failed to record speech event",
			slog.String("kind", kind),
			slog.String("error", err.Error()))
	}
}

func (t *TimelineSink) ChunkSynthesized(seq int, text string, samples int) {
	t.append(KindSpeechChunk, text)
}

func (t *TimelineSink) ChunkFailed(seq int, text string, err error) {
	t.append(KindSpeechError, fmt.Sprintf("%q: %v", text, err))
}

func (t *TimelineSink) PlaybackFinished(seq int) {}
