package ai

import (
	"context"
	"errors"
	"iter"
	"strings"

	"google.golang.org/genai"

	"docchat/internal/domain"
	"docchat/internal/domain/ports/adapter"
)

var _ adapter.ChatStreamer = (*GeminiAdapter)(nil)

type GeminiAdapter struct {
	client       *genai.Client
	defaultModel string
}

// NewGeminiAdapter creates a Gemini adapter using the official SDK.
func NewGeminiAdapter(ctx context.Context, apiKey, baseURL, defaultModel string) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	if defaultModel == "" {
		defaultModel = "gemini-2.0-flash"
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	return &GeminiAdapter{client: c, defaultModel: defaultModel}, nil
}

func (g *GeminiAdapter) ListModels(ctx context.Context) ([]string, error) {
	var out []string
	for m, err := range g.client.Models.All(ctx) {
		if err != nil {
			break
		}
		if m.Name != "" {
			out = append(out, strings.TrimPrefix(m.Name, "models/"))
		}
	}
	if len(out) == 0 && g.defaultModel != "" {
		// Best-effort fallback to default
		out = []string{g.defaultModel}
	}
	return out, nil
}

func (g *GeminiAdapter) StreamChat(ctx context.Context, req adapter.StreamRequest) (adapter.ChatStream, error) {
	system, contents := toGenAIContents(req.Messages)
	if len(contents) == 0 {
		return nil, domain.NewUpstreamError("chat", 0, errors.New("gemini: no messages"))
	}
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	seq := g.client.Models.GenerateContentStream(ctx, modelOrDefault(req.Model, g.defaultModel), contents, cfg)
	next, stop := iter.Pull2(seq)
	return &geminiStream{next: next, stop: stop}, nil
}

// toGenAIContents folds system messages into one system instruction and maps
// the rest onto user/model turns.
func toGenAIContents(msgs []adapter.Message) (string, []*genai.Content) {
	var system []string
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case "system":
			system = append(system, m.Content)
		case "assistant", "model":
			out = append(out, &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: m.Content}}})
		default:
			out = append(out, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{{Text: m.Content}}})
		}
	}
	return strings.Join(system, "\n\n"), out
}

type geminiStream struct {
	next  func() (*genai.GenerateContentResponse, error, bool)
	stop  func()
	delta string
	err   error
}

func (s *geminiStream) Next() bool {
	for {
		resp, err, ok := s.next()
		if !ok {
			return false
		}
		if err != nil {
			s.err = err
			return false
		}
		if resp == nil {
			continue
		}
		if t := resp.Text(); t != "" {
			s.delta = t
			return true
		}
	}
}

func (s *geminiStream) Delta() string { return s.delta }

func (s *geminiStream) Err() error {
	if s.err == nil || errors.Is(s.err, context.Canceled) {
		return s.err
	}
	return domain.NewUpstreamError("chat", 0, s.err)
}

func (s *geminiStream) Close() error {
	s.stop()
	return nil
}
