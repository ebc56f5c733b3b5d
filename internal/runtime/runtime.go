// Package runtime supervises the voxd daemon: it wires telemetry, the
// optional NATS bus, the event store, the synthesizer, and the HTTP
// server, and tears everything down in reverse on shutdown.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxkit/voxd/internal/bus"
	"github.com/voxkit/voxd/internal/config"
	"github.com/voxkit/voxd/internal/eventstore"
	"github.com/voxkit/voxd/internal/llm"
	"github.com/voxkit/voxd/internal/natsserver"
	"github.com/voxkit/voxd/internal/server"
	"github.com/voxkit/voxd/internal/synth"
	"github.com/voxkit/voxd/internal/voices"
)

// Version is stamped onto telemetry resources and the -version flag.
var Version = "0.1.0-dev"

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tel, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = tel.shutdown

	var embedded *natsserver.EmbeddedServer
	var busClient *bus.Client
	if r.cfg.Bus.Enabled {
		embedded, err = natsserver.Start(r.cfg.Bus, r.logger)
		if err != nil {
			return fmt.Errorf("failed to start embedded bus: %w", err)
		}
		busClient, err = bus.Connect(r.cfg.Bus, r.logger)
		if err != nil {
			if embedded != nil {
				embedded.Shutdown()
			}
			return fmt.Errorf("failed to connect to bus: %w", err)
		}
		defer busClient.Close()
		if embedded != nil {
			defer embedded.Shutdown()
		}
	}

	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open event store: %w", err)
	}
	defer store.Close()

	catalog, err := voices.Load(r.cfg.TTS.CatalogPath, r.cfg.TTS.Voice, r.cfg.TTS.Lang)
	if err != nil {
		return fmt.Errorf("failed to load voice catalog: %w", err)
	}

	factory, err := engineFactory(r.cfg.TTS)
	if err != nil {
		return fmt.Errorf("failed to configure synthesis engine: %w", err)
	}
	speaker := synth.New(catalog, factory, r.logger)
	defer speaker.Close()

	backend := llm.NewClient(r.cfg.LLM.BaseURL, r.cfg.LLM.APIKey, r.cfg.LLM.Model, r.logger)
	if models := backend.Models(ctx, false); len(models) > 0 {
		r.logger.Info("chat backend reachable", slog.Int("models", len(models)))
	} else {
		r.logger.Warn("chat backend reported no models, continuing anyway")
	}

	srv := server.New(r.cfg, backend, speaker, store, busClient, r.logger)
	mux := http.NewServeMux()
	mux.Handle("/", srv.Handler(tel.metrics))
	mux.HandleFunc("GET /readyz", r.handleReady)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("tts_mode", r.cfg.TTS.Mode),
		slog.String("default_voice", catalog.Default()),
		slog.Bool("bus", r.cfg.Bus.Enabled))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

// engineFactory picks the synthesis backend for the configured mode.
func engineFactory(cfg config.TTSConfig) (synth.EngineFactory, error) {
	switch cfg.Mode {
	case "exec":
		return synth.NewExecEngineFactory(cfg.Command, cfg.SampleRate)
	default:
		return synth.NewMockEngineFactory(10 * time.Millisecond), nil
	}
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
