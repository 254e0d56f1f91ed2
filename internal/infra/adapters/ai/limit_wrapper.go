package ai

import (
	"context"
	"sync"

	"docchat/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.ChatStreamer = (*limitedAI)(nil)

// limitedAI bounds the number of simultaneously open upstream streams. A slot
// is held from StreamChat until the returned stream is closed.
type limitedAI struct {
	inner adapter.ChatStreamer
	sem   chan struct{}
}

func NewLimitedAI(inner adapter.ChatStreamer, maxConcurrent int) adapter.ChatStreamer {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedAI{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedAI) ListModels(ctx context.Context) ([]string, error) {
	return l.inner.ListModels(ctx)
}

// ProviderFor forwards to the wrapped router when it has one.
func (l *limitedAI) ProviderFor(model string) string {
	if p, ok := l.inner.(interface{ ProviderFor(string) string }); ok {
		return p.ProviderFor(model)
	}
	return ""
}

func (l *limitedAI) StreamChat(ctx context.Context, req adapter.StreamRequest) (adapter.ChatStream, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	s, err := l.inner.StreamChat(ctx, req)
	if err != nil {
		<-l.sem
		return nil, err
	}
	return &limitedStream{ChatStream: s, release: func() { <-l.sem }}, nil
}

type limitedStream struct {
	adapter.ChatStream
	once    sync.Once
	release func()
}

func (s *limitedStream) Close() error {
	err := s.ChatStream.Close()
	s.once.Do(s.release)
	return err
}
