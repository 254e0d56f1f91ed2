package ai_test

import (
	"context"
	"errors"
	"testing"

	"docchat/internal/domain"
	"docchat/internal/domain/ports/adapter"
	ai "docchat/internal/infra/adapters/ai"
)

type stubAI struct {
	name      string
	n         int
	lastModel string
}

func (s *stubAI) ListModels(ctx context.Context) ([]string, error) {
	return []string{s.name + "-model"}, nil
}

func (s *stubAI) StreamChat(ctx context.Context, req adapter.StreamRequest) (adapter.ChatStream, error) {
	s.n++
	s.lastModel = req.Model
	return ai.NewNoopAIAdapter(0).StreamChat(ctx, req)
}

func TestRouting_ExplicitMap_Heuristics_And_Fallback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	open := &stubAI{name: "openai"}
	gem := &stubAI{name: "gemini"}

	m := ai.NewMultiAIAdapter(
		"openai",
		map[string]adapter.ChatStreamer{"openai": open, "gemini": gem},
		map[string]string{"custom-x": "gemini"},
	)

	// explicit map wins
	_, _ = m.StreamChat(ctx, adapter.StreamRequest{Model: "custom-x"})
	if gem.n != 1 || open.n != 0 {
		t.Fatalf("explicit map should route to gemini, got open:%d gem:%d", open.n, gem.n)
	}
	open.n, gem.n = 0, 0

	// gpt-* -> openai
	_, _ = m.StreamChat(ctx, adapter.StreamRequest{Model: "gpt-4o-mini"})
	if open.n != 1 || gem.n != 0 {
		t.Fatalf("heuristic gpt-* should go openai")
	}
	open.n, gem.n = 0, 0

	// gemini-* -> gemini
	_, _ = m.StreamChat(ctx, adapter.StreamRequest{Model: "gemini-1.5-flash"})
	if gem.n != 1 || open.n != 0 {
		t.Fatalf("heuristic gemini-* should go gemini")
	}
	open.n, gem.n = 0, 0

	// unknown -> default provider (openai), e.g. DeepSeek on an OpenAI-compatible gateway
	_, _ = m.StreamChat(ctx, adapter.StreamRequest{Model: "DeepSeek-V3-Fast"})
	if open.n != 1 || gem.n != 0 {
		t.Fatalf("unknown model should go to default provider (openai)")
	}
	if m.ProviderFor("DeepSeek-V3-Fast") != "openai" {
		t.Errorf("ProviderFor should report the default provider")
	}
}

func TestRouting_MissingProviderFallsBack(t *testing.T) {
	t.Parallel()
	open := &stubAI{name: "openai"}
	m := ai.NewMultiAIAdapter("openai", map[string]adapter.ChatStreamer{"openai": open}, nil)

	if _, err := m.StreamChat(context.Background(), adapter.StreamRequest{Model: "gemini-2.0-flash"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if open.n != 1 {
		t.Error("gemini model without gemini provider should fall back to openai")
	}

	empty := ai.NewMultiAIAdapter("openai", map[string]adapter.ChatStreamer{}, nil)
	if _, err := empty.StreamChat(context.Background(), adapter.StreamRequest{}); !errors.Is(err, domain.ErrProviderNotFound) {
		t.Errorf("expected ErrProviderNotFound, got %v", err)
	}
}

func TestListModels_Union(t *testing.T) {
	t.Parallel()
	m := ai.NewMultiAIAdapter(
		"openai",
		map[string]adapter.ChatStreamer{"openai": &stubAI{name: "openai"}, "gemini": &stubAI{name: "gemini"}},
		map[string]string{"openai-model": "openai"},
	)
	list, err := m.ListModels(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Errorf("expected deduplicated union of 2 models, got %v", list)
	}
}
