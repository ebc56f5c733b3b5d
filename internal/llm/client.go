// Package llm talks to an OpenAI-compatible chat-completion backend
// such as LM Studio.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ErrNoModel is returned when the backend reports no loaded model and
// none is configured.
var ErrNoModel = errors.New("no chat model is currently loaded")

// Message is one entry of the ordered conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a fully resolved completion request.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature float32
}

// Client wraps the backend API plus the model resolver.
type Client struct {
	api    *openai.Client
	pinned string
	cache  *ModelCache
	logger *slog.Logger
}

func NewClient(baseURL, apiKey, pinnedModel string, logger *slog.Logger) *Client {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	api := openai.NewClientWithConfig(cfg)

	c := &Client{
		api:    api,
		pinned: pinnedModel,
		logger: logger.With(slog.String("component", "llm")),
	}
	c.cache = NewModelCache(30*time.Second, c.fetchModels)
	return c
}

func toAPIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

// Chat runs a blocking completion and returns the full content.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    toAPIMessages(req.Messages),
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// StreamChat streams a completion, invoking onDelta for every content
// delta in arrival order, and returns the accumulated full text. Any
// error aborts the turn; callers record no assistant message then.
func (c *Client) StreamChat(ctx context.Context, req ChatRequest, onDelta func(delta string) error) (string, error) {
	stream, err := c.api.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    toAPIMessages(req.Messages),
		Temperature: req.Temperature,
		Stream:      true,
	})
	if err != nil {
		return "", fmt.Errorf("open chat stream: %w", err)
	}
	defer stream.Close()

	var full string
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return full, nil
		}
		if err != nil {
			return "", fmt.Errorf("read chat stream: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full += delta
		if err := onDelta(delta); err != nil {
			return "", err
		}
	}
}

func (c *Client) fetchModels(ctx context.Context) ([]string, error) {
	list, err := c.api.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, m := range list.Models {
		if m.ID != "" {
			ids = append(ids, m.ID)
		}
	}
	return ids, nil
}

// Models returns the known backend model IDs, from cache unless forced
// or stale. A pinned model short-circuits discovery.
func (c *Client) Models(ctx context.Context, force bool) []string {
	if c.pinned != "" {
		return []string{c.pinned}
	}
	models, err := c.cache.Get(ctx, force)
	if err != nil {
		c.logger.Warn("failed to fetch backend models", slog.String("error", err.Error()))
	}
	return models
}

// ResolveModel picks the model for a completion: the request's own,
// else the pinned one, else the first the backend reports.
func (c *Client) ResolveModel(ctx context.Context, requested string) (string, error) {
	if requested != "" {
		return requested, nil
	}
	models := c.Models(ctx, false)
	if len(models) == 0 {
		return "", ErrNoModel
	}
	return models[0], nil
}
