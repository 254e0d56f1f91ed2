package usecase

import (
	"context"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"docchat/internal/domain"
	"docchat/internal/domain/model"
	"docchat/internal/domain/ports/repository"
	"docchat/internal/infra/logging"
)

// Compile-time check
var _ ConversationUseCase = (*conversationUC)(nil)

// MaxSessionIDLen bounds client supplied session ids.
const MaxSessionIDLen = 128

type ConversationUseCase interface {
	Create(ctx context.Context) (string, error)
	List(ctx context.Context) []model.ConversationSummary
	Detail(ctx context.Context, id string) (*model.ConversationDetail, error)
	Delete(ctx context.Context, id string) error
	ToggleStar(ctx context.Context, id string) (bool, error)
}

type conversationUC struct {
	store repository.SessionStore
	log   *zerolog.Logger
}

func NewConversationUseCase(store repository.SessionStore, logger *zerolog.Logger) *conversationUC {
	return &conversationUC{store: store, log: logger}
}

// ValidateSessionID rejects empty or oversized session ids.
func ValidateSessionID(id string) error {
	if err := validation.Validate(id, validation.Required, validation.RuneLength(1, MaxSessionIDLen)); err != nil {
		return fmt.Errorf("session id: %v: %w", err, domain.ErrInvalidArgument)
	}
	return nil
}

// Create starts a new conversation under a server generated id.
func (u *conversationUC) Create(ctx context.Context) (string, error) {
	id := uuid.NewString()
	if err := u.store.Update(ctx, id, true, func(*model.Conversation) error { return nil }); err != nil {
		return "", err
	}
	logging.With(logging.WithSessID(ctx, id), u.log).Info().Msg("conversation created")
	return id, nil
}

func (u *conversationUC) List(ctx context.Context) []model.ConversationSummary {
	return u.store.ListSummaries(ctx)
}

func (u *conversationUC) Detail(ctx context.Context, id string) (*model.ConversationDetail, error) {
	var d model.ConversationDetail
	err := u.store.View(ctx, id, func(c *model.Conversation) error {
		d = c.Detail()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (u *conversationUC) Delete(ctx context.Context, id string) error {
	if err := u.store.Delete(ctx, id); err != nil {
		return err
	}
	logging.With(logging.WithSessID(ctx, id), u.log).Info().Msg("conversation deleted")
	return nil
}

func (u *conversationUC) ToggleStar(ctx context.Context, id string) (bool, error) {
	var starred bool
	err := u.store.Update(ctx, id, false, func(c *model.Conversation) error {
		c.Starred = !c.Starred
		starred = c.Starred
		return nil
	})
	return starred, err
}
