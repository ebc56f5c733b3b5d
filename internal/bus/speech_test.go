package bus

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/voxkit/voxd/internal/config"
	"github.com/voxkit/voxd/internal/natsserver"
	"github.com/voxkit/voxd/internal/protocol"
)

func testBus(t *testing.T) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

	es, err := natsserver.Start(config.BusConfig{Embedded: true, Port: -1}, logger)
	if err != nil {
		t.Fatalf("start embedded server: %v", err)
	}
	t.Cleanup(es.Shutdown)

	client, err := Connect(config.BusConfig{
		Servers:        []string{es.ClientURL()},
		ConnectTimeout: 2000,
	}, logger)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestSpeechEventsPublish(t *testing.T) {
	client := testBus(t)

	chunkSub, err := client.Conn().SubscribeSync(protocol.SubjectSpeechChunk)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	errSub, err := client.Conn().SubscribeSync(protocol.SubjectSpeechError)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	replySub, err := client.Conn().SubscribeSync(protocol.SubjectAssistantReply)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	events := NewSpeechEvents(client, "conv-42", "af_heart", 24000)
	events.ChunkSynthesized(0, "Hello there.", 1200)
	events.ChunkFailed(1, "Broken one.", errors.New("engine down"))
	events.ReplyFinished("model-a", "Hello there. Broken one.")

	msg, err := chunkSub.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("no chunk event: %v", err)
	}
	var chunk protocol.SpeechChunk
	if err := json.Unmarshal(msg.Data, &chunk); err != nil {
		t.Fatalf("decode chunk event: %v", err)
	}
	if chunk.ConversationID != "conv-42" || chunk.Text != "Hello there." || chunk.SampleRate != 24000 {
		t.Fatalf("unexpected chunk event: %+v", chunk)
	}

	msg, err = errSub.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("no error event: %v", err)
	}
	var speechErr protocol.SpeechError
	if err := json.Unmarshal(msg.Data, &speechErr); err != nil {
		t.Fatalf("decode error event: %v", err)
	}
	if speechErr.Sequence != 1 || speechErr.Error != "engine down" {
		t.Fatalf("unexpected error event: %+v", speechErr)
	}

	msg, err = replySub.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("no reply event: %v", err)
	}
	var reply protocol.AssistantReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		t.Fatalf("decode reply event: %v", err)
	}
	if reply.Model != "model-a" || reply.Content != "Hello there. Broken one." {
		t.Fatalf("unexpected reply event: %+v", reply)
	}
}
