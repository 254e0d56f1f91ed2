// File: internal/usecase/chat_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/rs/zerolog"

	"docchat/internal/domain"
	"docchat/internal/domain/model"
	"docchat/internal/domain/ports/adapter"
	"docchat/internal/domain/ports/repository"
	"docchat/internal/infra/logging"
	"docchat/internal/infra/metrics"
	"docchat/internal/infra/tokens"
)

// Compile-time check
var _ ChatUseCase = (*chatUC)(nil)

// ErrClientGone is returned when a frame could not be delivered.
var ErrClientGone = errors.New("client disconnected")

// Frame is one event of a streamed reply: a single character or the
// terminal marker.
type Frame struct {
	Char string `json:"char,omitempty"`
	Done bool   `json:"done,omitempty"`
}

type ChatInput struct {
	SessionID string
	Message   string
	Override  SettingsOverride
}

type ChatUseCase interface {
	// Send relays one chat turn. emit is called once per character and once
	// with Done after the reply has been committed. On error nothing of the
	// turn is kept in the conversation.
	Send(ctx context.Context, in ChatInput, emit func(Frame) error) error
	ListModels(ctx context.Context) ([]string, error)
}

type ChatOptions struct {
	Defaults         model.Settings
	Temperature      float64
	TypingDelay      time.Duration
	ContextFileRunes int
	// Dev logs user text unredacted.
	Dev bool
}

// providerNamer is implemented by routers that can name the backend a model
// goes to.
type providerNamer interface {
	ProviderFor(model string) string
}

type chatUC struct {
	store  repository.SessionStore
	ai     adapter.ChatStreamer
	tokens *tokens.Counter
	opts   ChatOptions
	log    *zerolog.Logger
	now    func() time.Time
}

func NewChatUseCase(store repository.SessionStore, ai adapter.ChatStreamer, counter *tokens.Counter, opts ChatOptions, logger *zerolog.Logger) *chatUC {
	if counter == nil {
		counter = tokens.NewCounter()
	}
	if opts.ContextFileRunes <= 0 {
		opts.ContextFileRunes = 1000
	}
	return &chatUC{store: store, ai: ai, tokens: counter, opts: opts, log: logger, now: time.Now}
}

func (u *chatUC) ListModels(ctx context.Context) ([]string, error) {
	return u.ai.ListModels(ctx)
}

// pending is what Send remembers about the user message it appended.
type pending struct {
	epoch     string
	messageID string
	settings  model.Settings
	messages  []adapter.Message
	refs      int
}

func (u *chatUC) Send(ctx context.Context, in ChatInput, emit func(Frame) error) error {
	text := strings.TrimSpace(in.Message)
	if err := validation.Validate(text, validation.Required); err != nil {
		return domain.ErrEmptyMessage
	}
	if err := ValidateSessionID(in.SessionID); err != nil {
		return err
	}

	ctx = logging.WithSessID(ctx, in.SessionID)
	log := logging.With(ctx, u.log)
	defer logging.TraceDuration(log, "ChatUC.Send")()

	p, err := u.prepare(ctx, in.SessionID, text, in.Override)
	if err != nil {
		return err
	}

	provider := u.providerFor(p.settings.Model)
	log.Debug().
		Str("message", logging.Redact(text, u.opts.Dev)).
		Str("model", p.settings.Model).
		Int("refs", p.refs).
		Msg("chat turn started")
	start := u.now()
	tokensIn := u.tokens.CountMessages(p.settings.Model, p.messages)

	stream, err := u.ai.StreamChat(ctx, adapter.StreamRequest{
		Model:       p.settings.Model,
		Messages:    p.messages,
		MaxTokens:   p.settings.MaxTokens,
		Temperature: u.opts.Temperature,
	})
	if err != nil {
		u.rollback(ctx, in.SessionID, p)
		metrics.ObserveChatStream(provider, p.settings.Model, tokensIn, 0, u.since(start), outcomeFor(err))
		log.Error().Err(err).Str("model", p.settings.Model).Msg("chat stream open failed")
		return asUpstream(err)
	}
	metrics.StreamOpened()
	defer metrics.StreamClosed()
	defer stream.Close()

	reply, err := u.relay(ctx, stream, emit, provider, p.settings.Model, start)
	if err != nil {
		u.rollback(ctx, in.SessionID, p)
		metrics.ObserveChatStream(provider, p.settings.Model, tokensIn, u.tokens.Count(p.settings.Model, reply), u.since(start), outcomeFor(err))
		if isCancel(err) {
			log.Info().Int("chars", len([]rune(reply))).Msg("chat stream cancelled")
			return err
		}
		log.Error().Err(err).Str("model", p.settings.Model).Msg("chat stream failed")
		return asUpstream(err)
	}

	if err := u.commit(ctx, in.SessionID, p, text, reply); err != nil {
		log.Warn().Err(err).Msg("reply discarded, conversation gone")
		metrics.ObserveChatStream(provider, p.settings.Model, tokensIn, u.tokens.Count(p.settings.Model, reply), u.since(start), "discarded")
		return err
	}

	tokensOut := u.tokens.Count(p.settings.Model, reply)
	metrics.ObserveChatStream(provider, p.settings.Model, tokensIn, tokensOut, u.since(start), "ok")
	log.Info().
		Str("model", p.settings.Model).
		Str("provider", provider).
		Int("refs", p.refs).
		Int("tokens_in", tokensIn).
		Int("tokens_out", tokensOut).
		Int("chars", len([]rune(reply))).
		Msg("chat turn completed")

	if err := emit(Frame{Done: true}); err != nil {
		// the reply is already part of the conversation
		log.Debug().Err(err).Msg("done frame not delivered")
	}
	return nil
}

// prepare persists the resolved settings, assembles the upstream messages and
// appends the user message, all under the session lock.
func (u *chatUC) prepare(ctx context.Context, sessionID, text string, o SettingsOverride) (*pending, error) {
	p := &pending{}
	err := u.store.Update(ctx, sessionID, true, func(c *model.Conversation) error {
		p.settings = ResolveSettings(c.Settings, o, u.opts.Defaults)
		c.ApplySettings(p.settings)
		resolved := ResolveReferences(text, c)
		p.refs = len(resolved)
		p.messages = BuildMessages(c, text, resolved, u.opts.ContextFileRunes)
		p.messageID = c.AddMessage(model.RoleUser, text, u.now())
		p.epoch = c.Epoch
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// relay forwards the stream one rune at a time and returns the full reply.
func (u *chatUC) relay(ctx context.Context, stream adapter.ChatStream, emit func(Frame) error, provider, modelName string, start time.Time) (string, error) {
	var sb strings.Builder
	first := true
	for stream.Next() {
		delta := stream.Delta()
		if first {
			metrics.ObserveFirstDelta(provider, modelName, u.since(start))
			first = false
		}
		sb.WriteString(delta)
		for _, r := range delta {
			if err := u.pace(ctx); err != nil {
				return sb.String(), err
			}
			if err := emit(Frame{Char: string(r)}); err != nil {
				return sb.String(), fmt.Errorf("%w: %v", ErrClientGone, err)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return sb.String(), err
	}
	// a stream may end quietly when its context is cancelled
	if err := ctx.Err(); err != nil {
		return sb.String(), err
	}
	return sb.String(), nil
}

func (u *chatUC) pace(ctx context.Context) error {
	if u.opts.TypingDelay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(u.opts.TypingDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// commit appends the assistant reply exactly once. It refuses to write into a
// conversation that was deleted, or deleted and re-created, meanwhile.
func (u *chatUC) commit(ctx context.Context, sessionID string, p *pending, userText, reply string) error {
	return u.store.Update(context.WithoutCancel(ctx), sessionID, false, func(c *model.Conversation) error {
		if c.Epoch != p.epoch {
			return domain.ErrNotFound
		}
		c.AddMessage(model.RoleAssistant, reply, u.now())
		c.MaybeDeriveTitle(userText)
		return nil
	})
}

// rollback removes the pending user message so a failed turn leaves no trace.
func (u *chatUC) rollback(ctx context.Context, sessionID string, p *pending) {
	err := u.store.Update(context.WithoutCancel(ctx), sessionID, false, func(c *model.Conversation) error {
		if c.Epoch == p.epoch {
			c.RemoveMessage(p.messageID)
		}
		return nil
	})
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		logging.With(ctx, u.log).Warn().Err(err).Msg("rollback failed")
	}
}

func (u *chatUC) providerFor(modelName string) string {
	if pn, ok := u.ai.(providerNamer); ok {
		return pn.ProviderFor(modelName)
	}
	return "default"
}

func (u *chatUC) since(t time.Time) int64 { return u.now().Sub(t).Milliseconds() }

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrClientGone)
}

func outcomeFor(err error) string {
	if isCancel(err) {
		return "cancelled"
	}
	return "upstream_error"
}

// asUpstream keeps UpstreamErrors and client cancellations as they are and
// wraps anything else.
func asUpstream(err error) error {
	var ue *domain.UpstreamError
	if errors.As(err, &ue) || isCancel(err) {
		return err
	}
	return domain.NewUpstreamError("chat", 0, err)
}
