// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"sync"
	"time"

	"docchat/internal/domain/model"
	"docchat/internal/domain/ports/adapter"
	"docchat/internal/infra/logging"
	"docchat/internal/infra/store"
	"docchat/internal/infra/tokens"
)

// ---- Fakes ----

// fakeStream replays deltas, then reports err. atEnd runs once after the last
// delta, before Next returns false.
type fakeStream struct {
	deltas []string
	err    error
	atEnd  func()

	i      int
	cur    string
	closed bool
}

func (s *fakeStream) Next() bool {
	if s.i < len(s.deltas) {
		s.cur = s.deltas[s.i]
		s.i++
		return true
	}
	if s.atEnd != nil {
		s.atEnd()
		s.atEnd = nil
	}
	return false
}

func (s *fakeStream) Delta() string { return s.cur }
func (s *fakeStream) Err() error    { return s.err }
func (s *fakeStream) Close() error  { s.closed = true; return nil }

type fakeStreamer struct {
	mu      sync.Mutex
	openErr error
	next    func() *fakeStream
	reqs    []adapter.StreamRequest
	streams []*fakeStream
}

func (f *fakeStreamer) ListModels(ctx context.Context) ([]string, error) {
	return []string{"DeepSeek-V3-Fast"}, nil
}

func (f *fakeStreamer) StreamChat(ctx context.Context, req adapter.StreamRequest) (adapter.ChatStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.openErr != nil {
		return nil, f.openErr
	}
	s := &fakeStream{deltas: []string{"好的"}}
	if f.next != nil {
		s = f.next()
	}
	f.streams = append(f.streams, s)
	return s, nil
}

func (f *fakeStreamer) lastRequest() adapter.StreamRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reqs[len(f.reqs)-1]
}

type fakeDocParser struct {
	text  string
	err   error
	calls int
}

func (f *fakeDocParser) ParseDocument(ctx context.Context, filename string, data []byte) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if f.text != "" {
		return f.text, nil
	}
	return "parsed " + filename, nil
}

type fakeOCR struct {
	text  string
	err   error
	calls int
}

func (f *fakeOCR) RecognizeImage(ctx context.Context, filename string, data []byte) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if f.text != "" {
		return f.text, nil
	}
	return "ocr " + filename, nil
}

// tickClock advances one second on every call.
func tickClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

var testDefaults = model.Settings{Model: "DeepSeek-V3-Fast", SystemPrompt: "你是一个智能助手", MaxTokens: 4096}

type fixture struct {
	store *store.MemoryStore
	ai    *fakeStreamer
	doc   *fakeDocParser
	ocr   *fakeOCR
	chat  *chatUC
	files *fileUC
	convs *conversationUC
}

func newFixture() *fixture {
	st := store.NewMemoryStore(testDefaults)
	ai := &fakeStreamer{}
	doc := &fakeDocParser{}
	ocr := &fakeOCR{}
	log := logging.Nop()
	clock := tickClock()

	chat := NewChatUseCase(st, ai, tokens.NewOfflineCounter(), ChatOptions{
		Defaults:         testDefaults,
		Temperature:      0.7,
		ContextFileRunes: 1000,
	}, log)
	chat.now = clock
	files := NewFileUseCase(st, doc, ocr, 1<<20, log)
	files.now = clock

	return &fixture{
		store: st,
		ai:    ai,
		doc:   doc,
		ocr:   ocr,
		chat:  chat,
		files: files,
		convs: NewConversationUseCase(st, log),
	}
}

// snapshot copies the conversation out of the store.
func (f *fixture) snapshot(id string) *model.Conversation {
	var c *model.Conversation
	_ = f.store.View(context.Background(), id, func(conv *model.Conversation) error {
		c = conv.Clone()
		return nil
	})
	return c
}

// collect returns an emit func that records frames.
func collect(frames *[]Frame) func(Frame) error {
	return func(fr Frame) error {
		*frames = append(*frames, fr)
		return nil
	}
}
