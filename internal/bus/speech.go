package bus

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/voxkit/voxd/internal/protocol"
)

// SpeechEvents publishes pipeline progress onto the bus. Publishing is
// fire-and-forget: a bus failure never affects the speech path.
type SpeechEvents struct {
	client         *Client
	conversationID string
	voice          string
	sampleRate     int
	log            *slog.Logger
}

func NewSpeechEvents(client *Client, conversationID, voice string, sampleRate int) *SpeechEvents {
	return &SpeechEvents{
		client:         client,
		conversationID: conversationID,
		voice:          voice,
		sampleRate:     sampleRate,
		log:            client.log.With(slog.String("component", "speech-events")),
	}
}

func (s *SpeechEvents) publish(subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("failed to marshal speech event", slog.String("error", err.Error()))
		return
	}
	if err := s.client.Conn().Publish(subject, data); err != nil {
		s.log.Warn("failed to publish speech event",
			slog.String("subject", subject),
			slog.String("error", err.Error()))
	}
}

func (s *SpeechEvents) ChunkSynthesized(seq int, text string, samples int) {
	s.publish(protocol.SubjectSpeechChunk, protocol.SpeechChunk{
		ConversationID: s.conversationID,
		Sequence:       seq,
		Text:           text,
		Voice:          s.voice,
		SampleRate:     s.sampleRate,
		Samples:        samples,
		Timestamp:      time.Now().UTC(),
	})
}

func (s *SpeechEvents) ChunkFailed(seq int, text string, err error) {
	s.publish(protocol.SubjectSpeechError, protocol.SpeechError{
		ConversationID: s.conversationID,
		Sequence:       seq,
		Text:           text,
		Error:          err.Error(),
		Timestamp:      time.Now().UTC(),
	})
}

func (s *SpeechEvents) PlaybackFinished(seq int) {
	s.publish(protocol.SubjectSpeechPlayback, protocol.PlaybackDone{
		ConversationID: s.conversationID,
		Sequence:       seq,
		Timestamp:      time.Now().UTC(),
	})
}

// ReplyFinished announces the full assistant turn.
func (s *SpeechEvents) ReplyFinished(model, content string) {
	s.publish(protocol.SubjectAssistantReply, protocol.AssistantReply{
		ConversationID: s.conversationID,
		Model:          model,
		Content:        content,
		Timestamp:      time.Now().UTC(),
	})
}
