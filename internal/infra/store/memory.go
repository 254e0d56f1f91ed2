// Package store holds the process-wide conversation store.
package store

import (
	"context"
	"sync"
	"time"

	"docchat/internal/domain"
	"docchat/internal/domain/model"
	"docchat/internal/domain/ports/repository"
	"docchat/internal/infra/metrics"
)

// Compile-time check
var _ repository.SessionStore = (*MemoryStore)(nil)

type entry struct {
	mu      sync.Mutex
	conv    *model.Conversation
	deleted bool
}

// MemoryStore keeps conversations in memory for the life of the process.
// The map is guarded by mu; each conversation by its entry's mutex, so
// sessions never wait on each other.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]*entry
	order []string

	defaults model.Settings
	now      func() time.Time
}

func NewMemoryStore(defaults model.Settings) *MemoryStore {
	return &MemoryStore{
		byID:     make(map[string]*entry),
		defaults: defaults,
		now:      time.Now,
	}
}

// SetClock replaces the time source. Tests only.
func (s *MemoryStore) SetClock(now func() time.Time) { s.now = now }

func (s *MemoryStore) lookup(id string, create bool) (*entry, error) {
	s.mu.RLock()
	e := s.byID[id]
	s.mu.RUnlock()
	if e != nil {
		return e, nil
	}
	if !create {
		return nil, domain.ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e = s.byID[id]; e != nil {
		return e, nil
	}
	e = &entry{conv: model.NewConversation(id, s.defaults, s.now())}
	s.byID[id] = e
	s.order = append(s.order, id)
	metrics.SetSessions(len(s.byID))
	return e, nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, create bool, fn func(c *model.Conversation) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		e, err := s.lookup(id, create)
		if err != nil {
			return err
		}
		e.mu.Lock()
		if e.deleted {
			// lost a race with Delete; a create retries against a fresh entry
			e.mu.Unlock()
			if create {
				continue
			}
			return domain.ErrNotFound
		}
		err = fn(e.conv)
		e.mu.Unlock()
		return err
	}
}

func (s *MemoryStore) View(ctx context.Context, id string, fn func(c *model.Conversation) error) error {
	return s.Update(ctx, id, false, fn)
}

// ListSummaries returns one summary per conversation in insertion order.
func (s *MemoryStore) ListSummaries(ctx context.Context) []model.ConversationSummary {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.order))
	for _, id := range s.order {
		entries = append(entries, s.byID[id])
	}
	s.mu.RUnlock()

	out := make([]model.ConversationSummary, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.deleted {
			out = append(out, e.conv.Summary())
		}
		e.mu.Unlock()
	}
	return out
}

// Delete removes the conversation. It waits for an in-flight mutation of the
// same session to finish.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	e := s.byID[id]
	if e == nil {
		s.mu.Unlock()
		return domain.ErrNotFound
	}
	delete(s.byID, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	metrics.SetSessions(len(s.byID))
	s.mu.Unlock()

	e.mu.Lock()
	e.deleted = true
	e.conv = nil
	e.mu.Unlock()
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
