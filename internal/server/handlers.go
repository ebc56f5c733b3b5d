package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/voxkit/voxd/internal/audio"
	"github.com/voxkit/voxd/internal/eventstore"
	"github.com/voxkit/voxd/internal/llm"
)

type chatPayload struct {
	Messages    []llm.Message `json:"messages"`
	Temperature *float64      `json:"temperature"`
	Voice       string        `json:"voice"`
	Model       string        `json:"model"`
}

type chatResponse struct {
	Content string `json:"content"`
	Audio   string `json:"audio"`
	Model   string `json:"model"`
	Voice   string `json:"voice"`
}

func (s *Server) temperature(p *float64) float32 {
	if p != nil {
		return float32(*p)
	}
	return float32(s.cfg.LLM.Temperature)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload chatPayload
	if err := decodeJSON(r, &payload); err != nil {
		s.writeError(w, err)
		return
	}
	if len(payload.Messages) == 0 {
		s.writeError(w, fmt.Errorf("%w: messages are required", errBadRequest))
		return
	}

	ctx := r.Context()

	// Resolve the voice before spending a backend round-trip on it.
	voice, _, err := s.speaker.Catalog().Resolve(payload.Voice)
	if err != nil {
		s.writeError(w, err)
		return
	}

	model, err := s.backend.ResolveModel(ctx, payload.Model)
	if err != nil {
		s.writeError(w, err)
		return
	}

	content, err := s.backend.Chat(ctx, llm.ChatRequest{
		Model:       model,
		Messages:    payload.Messages,
		Temperature: s.temperature(payload.Temperature),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	// The blocking mode speaks the whole reply as a single chunk.
	convo := uuid.NewString()
	sink, busEvents := s.turnEvents(ctx, convo, voice, model)

	samples, voice, err := s.speaker.Speak(ctx, content, voice)
	if err != nil {
		sink.ChunkFailed(0, content, err)
		s.writeError(w, err)
		return
	}
	sink.ChunkSynthesized(0, content, len(samples))

	encoded, err := audio.EncodeWAVBase64(samples, s.cfg.TTS.SampleRate)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.record(ctx, convo, payload.Messages, voice, content)
	if busEvents != nil {
		busEvents.ReplyFinished(model, content)
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Content: content,
		Audio:   encoded,
		Model:   model,
		Voice:   voice,
	})
}

type ttsPayload struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	var payload ttsPayload
	if err := decodeJSON(r, &payload); err != nil {
		s.writeError(w, err)
		return
	}

	samples, voice, err := s.speaker.Speak(r.Context(), payload.Text, payload.Voice)
	if err != nil {
		s.writeError(w, err)
		return
	}
	encoded, err := audio.EncodeWAVBase64(samples, s.cfg.TTS.SampleRate)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"audio": encoded, "voice": voice})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	models := s.backend.Models(r.Context(), true)
	if models == nil {
		models = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"models": models})
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	catalog := s.speaker.Catalog()
	writeJSON(w, http.StatusOK, map[string]any{
		"voices":  catalog.List(),
		"default": catalog.Default(),
	})
}

// record writes the completed turn's messages onto the conversation
// timeline. The conversation row itself is ensured by turnEvents.
func (s *Server) record(ctx context.Context, convo string, messages []llm.Message, voice, content string) {
	if s.store == nil {
		return
	}
	if len(messages) > 0 {
		last := messages[len(messages)-1]
		if last.Role == "user" {
			_ = s.store.AppendEvent(ctx, eventstore.Event{
				ConversationID: convo,
				Kind:           eventstore.KindUserMessage,
				Content:        last.Content,
			})
		}
	}
	_ = s.store.AppendEvent(ctx, eventstore.Event{
		ConversationID: convo,
		Kind:           eventstore.KindAssistantMessage,
		Voice:          voice,
		Content:        content,
	})
}
