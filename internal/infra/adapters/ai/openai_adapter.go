package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/ssestream"

	"docchat/internal/domain"
	"docchat/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.ChatStreamer = (*OpenAIAdapter)(nil)

// OpenAIAdapter streams Chat Completions from OpenAI or any OpenAI-compatible
// gateway (base URL is configurable).
type OpenAIAdapter struct {
	client openai.Client
	base   string
	model  string
	models []string
}

func NewOpenAIAdapter(apiKey, model, base string, timeout time.Duration, models []string, opts ...option.RequestOption) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if base != "" {
		base = strings.TrimRight(base, "/")
		reqOpts = append(reqOpts, option.WithBaseURL(base+"/"))
	}
	if timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(timeout))
	}
	reqOpts = append(reqOpts, opts...)
	return &OpenAIAdapter{
		client: openai.NewClient(reqOpts...),
		base:   base,
		model:  model,
		models: models,
	}, nil
}

func (o *OpenAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	if len(o.models) > 0 {
		return o.models, nil
	}
	return []string{o.model}, nil
}

func (o *OpenAIAdapter) StreamChat(ctx context.Context, req adapter.StreamRequest) (adapter.ChatStream, error) {
	model := modelOrDefault(req.Model, o.model)
	if len(req.Messages) == 0 {
		return nil, domain.NewUpstreamError("chat", 0, errors.New("openai: no messages"))
	}
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    toOpenAIMessages(req.Messages),
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	return &openAIStream{s: o.client.Chat.Completions.NewStreaming(ctx, params)}, nil
}

func toOpenAIMessages(msgs []adapter.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

type openAIStream struct {
	s     *ssestream.Stream[openai.ChatCompletionChunk]
	delta string
}

func (s *openAIStream) Next() bool {
	for s.s.Next() {
		chunk := s.s.Current()
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		s.delta = chunk.Choices[0].Delta.Content
		return true
	}
	return false
}

func (s *openAIStream) Delta() string { return s.delta }

func (s *openAIStream) Err() error {
	err := s.s.Err()
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return domain.NewUpstreamError("chat", apiErr.StatusCode, err)
	}
	return domain.NewUpstreamError("chat", 0, err)
}

func (s *openAIStream) Close() error { return s.s.Close() }

func modelOrDefault(model, def string) string {
	if strings.TrimSpace(model) != "" {
		return model
	}
	return def
}
