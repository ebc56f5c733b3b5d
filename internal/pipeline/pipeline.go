// Package pipeline runs the streaming speech pipeline: text chunks in,
// sequential audio playback out. Two workers are joined by FIFO
// channels; a tagged stop job propagates from the producer through the
// synthesis worker to the playback worker so both drain cleanly.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Speaker produces audio for one text chunk.
type Speaker interface {
	Speak(ctx context.Context, text, voice string) ([]float32, string, error)
}

// Player plays one audio buffer synchronously to completion.
type Player interface {
	Play(ctx context.Context, samples []float32, sampleRate int) error
}

// EventSink observes pipeline progress, e.g. for bus fan-out.
type EventSink interface {
	ChunkSynthesized(seq int, text string, samples int)
	ChunkFailed(seq int, text string, err error)
	PlaybackFinished(seq int)
}

type nopSink struct{}

func (nopSink) ChunkSynthesized(int, string, int) {}
func (nopSink) ChunkFailed(int, string, error)    {}
func (nopSink) PlaybackFinished(int)              {}

// FanOut combines sinks; every event reaches each sink in argument
// order. Nil entries are dropped.
func FanOut(sinks ...EventSink) EventSink {
	active := make(multiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			active = append(active, s)
		}
	}
	switch len(active) {
	case 0:
		return nopSink{}
	case 1:
		return active[0]
	}
	return active
}

type multiSink []EventSink

func (m multiSink) ChunkSynthesized(seq int, text string, samples int) {
	for _, s := range m {
		s.ChunkSynthesized(seq, text, samples)
	}
}

func (m multiSink) ChunkFailed(seq int, text string, err error) {
	for _, s := range m {
		s.ChunkFailed(seq, text, err)
	}
}

func (m multiSink) PlaybackFinished(seq int) {
	for _, s := range m {
		s.PlaybackFinished(seq)
	}
}

type textJob struct {
	seq  int
	text string
	stop bool
}

type audioJob struct {
	seq     int
	samples []float32
	stop    bool
}

// Options configures a Coordinator.
type Options struct {
	Speaker      Speaker
	Player       Player
	Voice        string
	SampleRate   int
	QueueSize    int
	ChunkTimeout time.Duration
	Events       EventSink
	Logger       *slog.Logger
}

// Coordinator owns the synthesis and playback workers for one
// conversation session.
type Coordinator struct {
	speaker      Speaker
	player       Player
	voice        string
	sampleRate   int
	chunkTimeout time.Duration
	events       EventSink
	logger       *slog.Logger

	textQ  chan textJob
	audioQ chan audioJob
	wg     sync.WaitGroup
	seq    int

	chunksOK     metric.Int64Counter
	chunksFailed metric.Int64Counter
	synthLatency metric.Float64Histogram
}

func New(opts Options) *Coordinator {
	queue := opts.QueueSize
	if queue <= 0 {
		queue = 64
	}
	events := opts.Events
	if events == nil {
		events = nopSink{}
	}

	meter := otel.Meter("voxd/pipeline")
	chunksOK, _ := meter.Int64Counter("voxd.pipeline.chunks_synthesized")
	chunksFailed, _ := meter.Int64Counter("voxd.pipeline.chunks_failed")
	latency, _ := meter.Float64Histogram("voxd.pipeline.synthesis_seconds")

	return &Coordinator{
		speaker:      opts.Speaker,
		player:       opts.Player,
		voice:        opts.Voice,
		sampleRate:   opts.SampleRate,
		chunkTimeout: opts.ChunkTimeout,
		events:       events,
		logger:       opts.Logger.With(slog.String("component", "pipeline")),
		textQ:        make(chan textJob, queue),
		audioQ:       make(chan audioJob, queue),
		chunksOK:     chunksOK,
		chunksFailed: chunksFailed,
		synthLatency: latency,
	}
}

// Start launches both workers. ctx bounds in-flight synthesis and
// playback calls; shutdown itself is the cooperative stop job sent by
// Drain.
func (c *Coordinator) Start(ctx context.Context) {
	c.wg.Add(2)
	go c.synthesisLoop(ctx)
	go c.playbackLoop(ctx)
}

// Enqueue hands one speakable chunk to the synthesis worker. Chunks
// are played strictly in enqueue order.
func (c *Coordinator) Enqueue(text string) {
	c.textQ <- textJob{seq: c.seq, text: text}
	c.seq++
}

// Drain sends the stop job and waits for both workers to exit. Audio
// already queued still plays; this is a drain, not a preemption.
func (c *Coordinator) Drain() {
	c.textQ <- textJob{stop: true}
	c.wg.Wait()
}

func (c *Coordinator) synthesisLoop(ctx context.Context) {
	defer c.wg.Done()
	for job := range c.textQ {
		if job.stop {
			c.audioQ <- audioJob{stop: true}
			return
		}

		chunkCtx := ctx
		cancel := context.CancelFunc(func() {})
		if c.chunkTimeout > 0 {
			chunkCtx, cancel = context.WithTimeout(ctx, c.chunkTimeout)
		}
		start := time.Now()
		samples, _, err := c.speaker.Speak(chunkCtx, job.text, c.voice)
		cancel()
		c.synthLatency.Record(ctx, time.Since(start).Seconds())

		if err != nil {
			// A failed chunk is logged and skipped; it never stops the
			// pipeline or the conversation.
			c.chunksFailed.Add(ctx, 1)
			c.events.ChunkFailed(job.seq, job.text, err)
			c.logger.Warn("chunk synthesis failed",
				slog.Int("seq", job.seq),
				slog.String("error", err.Error()))
			continue
		}
		c.chunksOK.Add(ctx, 1)
		c.events.ChunkSynthesized(job.seq, job.text, len(samples))
		c.audioQ <- audioJob{seq: job.seq, samples: samples}
	}
}

func (c *Coordinator) playbackLoop(ctx context.Context) {
	defer c.wg.Done()
	for job := range c.audioQ {
		if job.stop {
			return
		}
		if err := c.player.Play(ctx, job.samples, c.sampleRate); err != nil {
			c.logger.Warn("playback failed",
				slog.Int("seq", job.seq),
				slog.String("error", err.Error()))
			continue
		}
		c.events.PlaybackFinished(job.seq)
	}
}
