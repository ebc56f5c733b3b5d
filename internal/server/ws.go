package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voxkit/voxd/internal/audio"
	"github.com/voxkit/voxd/internal/chunker"
	"github.com/voxkit/voxd/internal/llm"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The REST surface is open CORS; the socket matches it.
	CheckOrigin: func(*http.Request) bool { return true },
}

type wsFrame struct {
	Type    string `json:"type"`
	Delta   string `json:"delta,omitempty"`
	Seq     int    `json:"seq,omitempty"`
	Text    string `json:"text,omitempty"`
	Audio   string `json:"audio,omitempty"`
	Voice   string `json:"voice,omitempty"`
	Content string `json:"content,omitempty"`
	Model   string `json:"model,omitempty"`
	Error   string `json:"error,omitempty"`
}

// handleWSChat streams one conversation turn: the client sends a chat
// request frame, the server answers with per-token delta frames and
// per-chunk audio frames in chunk order, then a done frame.
func (s *Server) handleWSChat(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var payload chatPayload
	if err := conn.ReadJSON(&payload); err != nil {
		_ = conn.WriteJSON(wsFrame{Type: "error", Error: "invalid request frame"})
		return
	}
	if len(payload.Messages) == 0 {
		_ = conn.WriteJSON(wsFrame{Type: "error", Error: "messages are required"})
		return
	}

	ctx := r.Context()

	voice, _, err := s.speaker.Catalog().Resolve(payload.Voice)
	if err != nil {
		_ = conn.WriteJSON(wsFrame{Type: "error", Error: err.Error()})
		return
	}
	model, err := s.backend.ResolveModel(ctx, payload.Model)
	if err != nil {
		_ = conn.WriteJSON(wsFrame{Type: "error", Error: err.Error()})
		return
	}

	convo := uuid.NewString()
	sink, busEvents := s.turnEvents(ctx, convo, voice, model)

	buffer := ""
	seq := 0
	speakChunk := func(text string) error {
		samples, _, err := s.speaker.Speak(ctx, text, voice)
		if err != nil {
			// Per-chunk failures are reported and skipped, the turn
			// keeps streaming.
			s.logger.Warn("chunk synthesis failed", slog.String("error", err.Error()))
			sink.ChunkFailed(seq, text, err)
			seq++
			return nil
		}
		encoded, err := audio.EncodeWAVBase64(samples, s.cfg.TTS.SampleRate)
		if err != nil {
			return err
		}
		sink.ChunkSynthesized(seq, text, len(samples))
		frame := wsFrame{Type: "audio", Seq: seq, Text: text, Audio: encoded, Voice: voice}
		seq++
		return conn.WriteJSON(frame)
	}

	content, err := s.backend.StreamChat(ctx, llm.ChatRequest{
		Model:       model,
		Messages:    payload.Messages,
		Temperature: s.temperature(payload.Temperature),
	}, func(delta string) error {
		if err := conn.WriteJSON(wsFrame{Type: "delta", Delta: delta}); err != nil {
			return err
		}
		buffer += delta
		var chunks []string
		chunks, buffer = chunker.Split(buffer)
		for _, chunk := range chunks {
			if err := speakChunk(chunk); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = conn.WriteJSON(wsFrame{Type: "error", Error: fmt.Sprintf("chat backend: %v", err)})
		return
	}

	// The trailing fragment is still spoken, never dropped.
	if remainder := strings.TrimSpace(buffer); remainder != "" {
		if err := speakChunk(remainder); err != nil {
			_ = conn.WriteJSON(wsFrame{Type: "error", Error: err.Error()})
			return
		}
	}

	s.record(ctx, convo, payload.Messages, voice, content)
	if busEvents != nil {
		busEvents.ReplyFinished(model, content)
	}
	_ = conn.WriteJSON(wsFrame{Type: "done", Content: content, Model: model, Voice: voice})
}
