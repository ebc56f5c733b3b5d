// Package protocol defines the bus message payloads and subjects used
// for speech event fan-out.
package protocol

import "time"

// SpeechChunk announces one synthesized chunk.
type SpeechChunk struct {
	ConversationID string    `json:"conversation_id"`
	Sequence       int       `json:"sequence"`
	Text           string    `json:"text"`
	Voice          string    `json:"voice"`
	SampleRate     int       `json:"sample_rate"`
	Samples        int       `json:"samples"`
	Timestamp      time.Time `json:"timestamp"`
}

// SpeechError announces a chunk that failed synthesis and was skipped.
type SpeechError struct {
	ConversationID string    `json:"conversation_id"`
	Sequence       int       `json:"sequence"`
	Text           string    `json:"text"`
	Error          string    `json:"error"`
	Timestamp      time.Time `json:"timestamp"`
}

// PlaybackDone announces a chunk fully played to the output device.
type PlaybackDone struct {
	ConversationID string    `json:"conversation_id"`
	Sequence       int       `json:"sequence"`
	Timestamp      time.Time `json:"timestamp"`
}

// AssistantReply announces a completed conversation turn.
type AssistantReply struct {
	ConversationID string    `json:"conversation_id"`
	Model          string    `json:"model"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
}

const (
	SubjectSpeechChunk    = "speech.chunk"
	SubjectSpeechError    = "speech.error"
	SubjectSpeechPlayback = "speech.playback.done"
	SubjectAssistantReply = "llm.response.final"
)
