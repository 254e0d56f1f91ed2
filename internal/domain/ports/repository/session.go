package repository

import (
	"context"

	"docchat/internal/domain/model"
)

// -----------------------------
// Sessions
// -----------------------------

// SessionStore owns every Conversation of the process. fn runs while the
// session's lock is held; the *Conversation must not escape fn (use Clone).
type SessionStore interface {
	// Update runs fn against the conversation for id. When create is true an
	// unknown id gets a fresh conversation first; otherwise ErrNotFound.
	// If fn returns an error the store is left as fn left the conversation.
	Update(ctx context.Context, id string, create bool, fn func(c *model.Conversation) error) error
	// View runs fn read-only; ErrNotFound for unknown ids.
	View(ctx context.Context, id string, fn func(c *model.Conversation) error) error
	ListSummaries(ctx context.Context) []model.ConversationSummary
	Delete(ctx context.Context, id string) error
	Len() int
}
