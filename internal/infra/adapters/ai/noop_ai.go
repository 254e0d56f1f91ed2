package ai

import (
	"context"
	"strings"
	"time"

	"docchat/internal/domain/ports/adapter"
)

var _ adapter.ChatStreamer = (*NoopAIAdapter)(nil)

// NoopAIAdapter implements adapter.ChatStreamer for local/dev testing.
// It echoes the last user message back word by word.
type NoopAIAdapter struct {
	delay time.Duration
}

// NewNoopAIAdapter constructs the noop adapter.
func NewNoopAIAdapter(delay time.Duration) *NoopAIAdapter {
	return &NoopAIAdapter{delay: delay}
}

func (a *NoopAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	return []string{"noop-ai-model"}, nil
}

func (a *NoopAIAdapter) StreamChat(ctx context.Context, req adapter.StreamRequest) (adapter.ChatStream, error) {
	last := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			last = req.Messages[i].Content
			break
		}
	}
	words := strings.SplitAfter("[noop] "+last, " ")
	return &noopStream{ctx: ctx, words: words, delay: a.delay}, nil
}

type noopStream struct {
	ctx   context.Context
	words []string
	cur   string
	delay time.Duration
	err   error
}

func (s *noopStream) Next() bool {
	if len(s.words) == 0 {
		return false
	}
	// Simulate processing and respect ctx
	select {
	case <-time.After(s.delay):
	case <-s.ctx.Done():
		s.err = s.ctx.Err()
		return false
	}
	s.cur, s.words = s.words[0], s.words[1:]
	return true
}

func (s *noopStream) Delta() string { return s.cur }
func (s *noopStream) Err() error    { return s.err }
func (s *noopStream) Close() error  { return nil }
