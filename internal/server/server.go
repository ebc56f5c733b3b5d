// Package server exposes the speech service over HTTP: blocking chat
// and TTS endpoints, catalog and model listings, and a WebSocket
// streaming variant.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/voxkit/voxd/internal/bus"
	"github.com/voxkit/voxd/internal/config"
	"github.com/voxkit/voxd/internal/eventstore"
	"github.com/voxkit/voxd/internal/llm"
	"github.com/voxkit/voxd/internal/pipeline"
	"github.com/voxkit/voxd/internal/synth"
	"github.com/voxkit/voxd/internal/voices"
)

// Speaker is the synthesis surface the handlers use.
type Speaker interface {
	Speak(ctx context.Context, text, voice string) ([]float32, string, error)
	Catalog() *voices.Catalog
}

// ChatBackend is the chat-completion surface the handlers use.
type ChatBackend interface {
	Chat(ctx context.Context, req llm.ChatRequest) (string, error)
	StreamChat(ctx context.Context, req llm.ChatRequest, onDelta func(string) error) (string, error)
	Models(ctx context.Context, force bool) []string
	ResolveModel(ctx context.Context, requested string) (string, error)
}

type Server struct {
	cfg     config.Config
	backend ChatBackend
	speaker Speaker
	store   *eventstore.Store
	bus     *bus.Client
	logger  *slog.Logger
}

func New(cfg config.Config, backend ChatBackend, speaker Speaker, store *eventstore.Store, busClient *bus.Client, logger *slog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		backend: backend,
		speaker: speaker,
		store:   store,
		bus:     busClient,
		logger:  logger.With(slog.String("component", "server")),
	}
}

// turnEvents opens the per-chunk event fan-out for one conversation
// turn. The conversation row is written first so timeline events
// satisfy its foreign key.
func (s *Server) turnEvents(ctx context.Context, conversationID, voice, model string) (pipeline.EventSink, *bus.SpeechEvents) {
	var sinks []pipeline.EventSink
	if s.store != nil {
		if err := s.store.AppendConversation(ctx, conversationID, voice, model); err != nil {
			s.logger.Warn("failed to record conversation", slog.String("error", err.Error()))
		} else {
			sinks = append(sinks, eventstore.NewTimelineSink(s.store, conversationID, voice))
		}
	}
	var speech *bus.SpeechEvents
	if s.bus != nil && s.bus.Healthy() {
		speech = bus.NewSpeechEvents(s.bus, conversationID, voice, s.cfg.TTS.SampleRate)
		sinks = append(sinks, speech)
	}
	return pipeline.FanOut(sinks...), speech
}

// Handler builds the full route table. metrics may be nil.
func (s *Server) Handler(metrics http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/tts", s.handleTTS)
	mux.HandleFunc("GET /api/models", s.handleModels)
	mux.HandleFunc("GET /api/voices", s.handleVoices)
	mux.HandleFunc("GET /ws/chat", s.handleWSChat)
	mux.HandleFunc("GET /healthz", handleHealth)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	mux.HandleFunc("/", s.handleStatic)
	return withCORS(mux)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleStatic serves the web UI, falling back to index.html for any
// unknown path so client-side routing works.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	dir := s.cfg.HTTP.StaticDir
	if dir == "" {
		http.NotFound(w, r)
		return
	}
	name := filepath.Join(dir, filepath.Clean("/"+r.URL.Path))
	if info, err := os.Stat(name); err == nil && !info.IsDir() {
		http.ServeFile(w, r, name)
		return
	}
	http.ServeFile(w, r, filepath.Join(dir, "index.html"))
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps the error taxonomy onto HTTP statuses: bad input is
// 400, a missing backend model is 503, everything else is 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, voices.ErrUnknownVoice), errors.Is(err, synth.ErrEmptyInput), errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, llm.ErrNoModel):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", slog.String("error", err.Error()))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

var errBadRequest = errors.New("invalid request")

// decodeJSON reads a request body, rejecting malformed payloads as 400s.
func decodeJSON(r *http.Request, into any) error {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}
