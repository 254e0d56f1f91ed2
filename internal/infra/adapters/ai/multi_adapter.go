package ai

import (
	"context"
	"strings"

	"docchat/internal/domain"
	"docchat/internal/domain/ports/adapter"
)

var _ adapter.ChatStreamer = (*MultiAIAdapter)(nil)

type MultiAIAdapter struct {
	defaultProvider string // e.g., "openai" or "gemini"
	byProvider      map[string]adapter.ChatStreamer
	modelToProvider map[string]string // model -> provider ("openai" | "gemini")
}

// NewMultiAIAdapter does not inject any default model; it only knows a default provider.
// Each provider adapter is responsible for its own default model.
func NewMultiAIAdapter(
	defaultProvider string,
	byProvider map[string]adapter.ChatStreamer,
	modelToProvider map[string]string,
) *MultiAIAdapter {
	return &MultiAIAdapter{
		defaultProvider: strings.ToLower(defaultProvider),
		byProvider:      byProvider,
		modelToProvider: modelToProvider,
	}
}

// ProviderFor names the provider a model routes to.
func (m *MultiAIAdapter) ProviderFor(model string) string {
	if p := m.modelToProvider[model]; p != "" {
		return strings.ToLower(p)
	}
	l := strings.ToLower(model)
	switch {
	case strings.HasPrefix(l, "gemini"):
		return "gemini"
	case strings.HasPrefix(l, "gpt"), strings.HasPrefix(l, "o1"), strings.HasPrefix(l, "o3"):
		return "openai"
	default:
		return m.defaultProvider
	}
}

func (m *MultiAIAdapter) pick(model string) adapter.ChatStreamer {
	if a := m.byProvider[m.ProviderFor(model)]; a != nil {
		return a
	}
	// last resort: default provider, then any
	if a := m.byProvider[m.defaultProvider]; a != nil {
		return a
	}
	for _, a := range m.byProvider {
		if a != nil {
			return a
		}
	}
	return nil
}

func (m *MultiAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(m.modelToProvider)+4)

	add := func(name string) {
		if name == "" {
			return
		}
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	for model := range m.modelToProvider {
		add(model)
	}
	for _, a := range m.byProvider {
		list, _ := a.ListModels(ctx)
		for _, name := range list {
			add(name)
		}
	}
	return out, nil
}

func (m *MultiAIAdapter) StreamChat(ctx context.Context, req adapter.StreamRequest) (adapter.ChatStream, error) {
	a := m.pick(req.Model)
	if a == nil {
		return nil, domain.ErrProviderNotFound
	}
	return a.StreamChat(ctx, req)
}
