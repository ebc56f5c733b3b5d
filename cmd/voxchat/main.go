// voxchat is an interactive terminal chat client. Assistant tokens
// stream to the terminal while finished sentences are synthesized and
// played in the background, so speech starts before the reply is done.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/voxkit/voxd/internal/audio"
	"github.com/voxkit/voxd/internal/bus"
	"github.com/voxkit/voxd/internal/chunker"
	"github.com/voxkit/voxd/internal/config"
	"github.com/voxkit/voxd/internal/eventstore"
	"github.com/voxkit/voxd/internal/llm"
	"github.com/voxkit/voxd/internal/pipeline"
	"github.com/voxkit/voxd/internal/synth"
	"github.com/voxkit/voxd/internal/voices"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath  string
		voiceFlag   string
		modelFlag   string
		mute        bool
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file (defaults plus VOXD_* env when empty)")
	flag.StringVar(&voiceFlag, "voice", "", "Voice to speak with (catalog default when empty)")
	flag.StringVar(&modelFlag, "model", "", "Model to chat with (backend auto-detect when empty)")
	flag.BoolVar(&mute, "mute", false, "Disable audio playback")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxchat: %v\n", err)
		os.Exit(1)
	}

	// Chat output owns stdout; diagnostics go to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Telemetry.SlogLevel()}))
	if modelFlag != "" {
		cfg.LLM.Model = modelFlag
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, voiceFlag, mute, logger); err != nil {
		fmt.Fprintf(os.Stderr, "voxchat: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, voiceFlag string, mute bool, logger *slog.Logger) error {
	catalog, err := voices.Load(cfg.TTS.CatalogPath, cfg.TTS.Voice, cfg.TTS.Lang)
	if err != nil {
		return fmt.Errorf("load voice catalog: %w", err)
	}
	voice, _, err := catalog.Resolve(voiceFlag)
	if err != nil {
		return err
	}

	factory, err := engineFactory(cfg.TTS)
	if err != nil {
		return fmt.Errorf("configure synthesis engine: %w", err)
	}
	speaker := synth.New(catalog, factory, logger)
	defer speaker.Close()

	player, err := newPlayer(cfg.Player, mute)
	if err != nil {
		return fmt.Errorf("configure player: %w", err)
	}

	backend := llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, logger)
	model, err := backend.ResolveModel(ctx, "")
	if err != nil {
		return fmt.Errorf("no chat model available at %s: %w", cfg.LLM.BaseURL, err)
	}

	conversationID := uuid.NewString()

	store, err := eventstore.Open(ctx, cfg.EventStore, logger)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	defer store.Close()
	if err := store.AppendConversation(ctx, conversationID, voice, model); err != nil {
		logger.Warn("failed to record conversation", slog.String("error", err.Error()))
	}

	sinks := []pipeline.EventSink{eventstore.NewTimelineSink(store, conversationID, voice)}
	var replies *bus.SpeechEvents
	if cfg.Bus.Enabled {
		client, err := bus.Connect(cfg.Bus, logger)
		if err != nil {
			logger.Warn("bus unavailable, continuing without it", slog.String("error", err.Error()))
		} else {
			defer client.Close()
			replies = bus.NewSpeechEvents(client, conversationID, voice, cfg.TTS.SampleRate)
			sinks = append(sinks, replies)
		}
	}
	sink := pipeline.FanOut(sinks...)

	fmt.Printf("voxchat %s | model %s | voice %s | /quit to exit\n", version, model, voice)

	history := []llm.Message{}
	stdin := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("you> ")
		if !stdin.Scan() {
			fmt.Println()
			return stdin.Err()
		}
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(stdin.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			return nil
		}

		history = append(history, llm.Message{Role: "user", Content: line})
		content, err := streamTurn(ctx, cfg, backend, speaker, player, sink, logger, model, voice, history)
		if err != nil {
			// The turn is all or nothing: a failed stream leaves the
			// history without the user line that produced it.
			history = history[:len(history)-1]
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(os.Stderr, "voxchat: turn failed: %v\n", err)
			continue
		}
		history = append(history, llm.Message{Role: "assistant", Content: content})

		recordTurn(ctx, store, logger, conversationID, voice, line, content)
		if replies != nil {
			replies.ReplyFinished(model, content)
		}
	}
}

// streamTurn runs one request: tokens print as they arrive, finished
// sentences go to the speech pipeline, and the pipeline drains before
// the next prompt is shown.
func streamTurn(
	ctx context.Context,
	cfg config.Config,
	backend *llm.Client,
	speaker *synth.Synthesizer,
	player pipeline.Player,
	sink pipeline.EventSink,
	logger *slog.Logger,
	model, voice string,
	history []llm.Message,
) (string, error) {
	coord := pipeline.New(pipeline.Options{
		Speaker:      speaker,
		Player:       player,
		Voice:        voice,
		SampleRate:   cfg.TTS.SampleRate,
		QueueSize:    cfg.Pipeline.QueueSize,
		ChunkTimeout: time.Duration(cfg.Pipeline.ChunkTimeoutMS) * time.Millisecond,
		Events:       sink,
		Logger:       logger,
	})
	coord.Start(ctx)

	var buffer string
	content, err := backend.StreamChat(ctx, llm.ChatRequest{
		Model:       model,
		Messages:    history,
		Temperature: float32(cfg.LLM.Temperature),
	}, func(delta string) error {
		fmt.Print(delta)
		buffer += delta
		chunks, rest := chunker.Split(buffer)
		for _, chunk := range chunks {
			coord.Enqueue(chunk)
		}
		buffer = rest
		return nil
	})
	if err != nil {
		coord.Drain()
		return "", err
	}
	if remainder := strings.TrimSpace(buffer); remainder != "" {
		coord.Enqueue(remainder)
	}
	fmt.Println()

	coord.Drain()
	return content, nil
}

func recordTurn(ctx context.Context, store *eventstore.Store, logger *slog.Logger, conversationID, voice, user, assistant string) {
	for _, msg := range []struct{ kind, content string }{
		{eventstore.KindUserMessage, user},
		{eventstore.KindAssistantMessage, assistant},
	} {
		kind, content := msg.kind, msg.content
		err := store.AppendEvent(ctx, eventstore.Event{
			ConversationID: conversationID,
			Kind:           kind,
			Voice:          voice,
			Content:        content,
		})
		if err != nil {
			logger.Warn("failed to record message", slog.String("kind", kind), slog.String("error", err.Error()))
		}
	}
}

func engineFactory(cfg config.TTSConfig) (synth.EngineFactory, error) {
	switch cfg.Mode {
	case "exec":
		return synth.NewExecEngineFactory(cfg.Command, cfg.SampleRate)
	default:
		return synth.NewMockEngineFactory(10 * time.Millisecond), nil
	}
}

func newPlayer(cfg config.PlayerConfig, mute bool) (pipeline.Player, error) {
	if mute || cfg.Mode != "exec" {
		return audio.NopPlayer{}, nil
	}
	return audio.NewExecPlayer(cfg.Command)
}
