// File: internal/usecase/file_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"docchat/internal/domain"
	"docchat/internal/domain/model"
	"docchat/internal/domain/ports/adapter"
	"docchat/internal/domain/ports/repository"
	"docchat/internal/infra/logging"
	"docchat/internal/infra/metrics"
)

// Compile-time check
var _ FileUseCase = (*fileUC)(nil)

type FileUseCase interface {
	Upload(ctx context.Context, sessionID string, in UploadInput) (*model.FileRecord, error)
	UploadBatch(ctx context.Context, sessionID string, ins []UploadInput) []UploadResult
	Remove(ctx context.Context, sessionID, fileID string) error
	Content(ctx context.Context, sessionID, fileID string) (*model.FileRecord, error)
}

// UploadInput is one file as received from the client. An empty Kind is
// inferred from the extension.
type UploadInput struct {
	Filename string
	Kind     model.FileKind
	Data     []byte
}

// UploadResult is the per-file outcome of a batch upload.
type UploadResult struct {
	Filename string
	File     *model.FileRecord
	Err      error
}

type fileUC struct {
	store    repository.SessionStore
	doc      adapter.DocumentParser
	ocr      adapter.ImageOCR
	maxBytes int64
	log      *zerolog.Logger
	now      func() time.Time
}

func NewFileUseCase(store repository.SessionStore, doc adapter.DocumentParser, ocr adapter.ImageOCR, maxBytes int64, logger *zerolog.Logger) *fileUC {
	return &fileUC{store: store, doc: doc, ocr: ocr, maxBytes: maxBytes, log: logger, now: time.Now}
}

func (u *fileUC) Upload(ctx context.Context, sessionID string, in UploadInput) (*model.FileRecord, error) {
	ctx = logging.WithSessID(ctx, sessionID)
	log := logging.With(ctx, u.log)
	start := u.now()

	kind, err := u.validate(in)
	if err != nil {
		metrics.IncFileIngest(string(in.Kind), "rejected")
		return nil, err
	}

	text, err := u.extract(ctx, kind, in)
	metrics.ObserveIngestLatency(string(kind), u.now().Sub(start).Milliseconds())
	if err != nil {
		metrics.IncFileIngest(string(kind), "upstream_error")
		log.Warn().Err(err).Str("filename", in.Filename).Str("kind", string(kind)).Msg("file extraction failed")
		return nil, err
	}

	now := u.now()
	rec := &model.FileRecord{
		Kind:       kind,
		Filename:   in.Filename,
		Content:    text,
		Preview:    model.Truncate(text, model.PreviewRunes),
		Size:       len(in.Data),
		UploadedAt: now,
	}
	err = u.store.Update(ctx, sessionID, true, func(c *model.Conversation) error {
		rec.ID = fileID(sessionID, in.Filename, now, c.NextShortID)
		c.AttachFile(rec, now)
		return nil
	})
	if err != nil {
		metrics.IncFileIngest(string(kind), "error")
		return nil, err
	}

	metrics.IncFileIngest(string(kind), "ok")
	log.Info().
		Str("file_id", rec.ID).
		Str("display_id", rec.DisplayID).
		Str("kind", string(kind)).
		Int("bytes", rec.Size).
		Int("chars", len([]rune(text))).
		Msg("file attached")
	return rec, nil
}

// UploadBatch ingests files one after another; a failure never affects the
// other files.
func (u *fileUC) UploadBatch(ctx context.Context, sessionID string, ins []UploadInput) []UploadResult {
	out := make([]UploadResult, 0, len(ins))
	for _, in := range ins {
		rec, err := u.Upload(ctx, sessionID, in)
		out = append(out, UploadResult{Filename: in.Filename, File: rec, Err: err})
	}
	return out
}

func (u *fileUC) Remove(ctx context.Context, sessionID, fileID string) error {
	var removed *model.FileRecord
	err := u.store.Update(ctx, sessionID, false, func(c *model.Conversation) error {
		f, ok := c.DetachFile(fileID, u.now())
		if !ok {
			return domain.ErrNotFound
		}
		removed = f
		return nil
	})
	if err != nil {
		return err
	}
	l := logging.With(logging.WithSessID(ctx, sessionID), u.log)
	l.Info().Str("file_id", fileID).Str("display_id", removed.DisplayID).Msg("file removed")
	return nil
}

func (u *fileUC) Content(ctx context.Context, sessionID, fileID string) (*model.FileRecord, error) {
	var out *model.FileRecord
	err := u.store.View(ctx, sessionID, func(c *model.Conversation) error {
		f, ok := c.Files[fileID]
		if !ok {
			return domain.ErrNotFound
		}
		cp := *f
		out = &cp
		return nil
	})
	return out, err
}

func (u *fileUC) validate(in UploadInput) (model.FileKind, error) {
	if err := validation.Validate(in.Data, validation.Required); err != nil {
		return "", domain.ErrEmptyFile
	}
	if err := validation.Validate(strings.TrimSpace(in.Filename), validation.Required); err != nil {
		return "", fmt.Errorf("filename: %w", domain.ErrInvalidArgument)
	}
	if err := validation.Validate(string(in.Kind),
		validation.In(string(model.FileDocument), string(model.FileImage)),
	); err != nil {
		return "", fmt.Errorf("type %q: %w", in.Kind, domain.ErrInvalidArgument)
	}
	if u.maxBytes > 0 && int64(len(in.Data)) > u.maxBytes {
		return "", fmt.Errorf("%s (%d bytes): %w", in.Filename, len(in.Data), domain.ErrFileTooLarge)
	}

	ext := model.Extension(in.Filename)
	kind := in.Kind
	if kind == "" {
		k, ok := model.KindForExtension(ext)
		if !ok {
			all := append(append([]string(nil), model.DocumentExtensions...), model.ImageExtensions...)
			return "", &domain.UnsupportedTypeError{Kind: "file", Ext: ext, Accepted: all}
		}
		kind = k
	}
	accepted := model.AcceptedExtensions(kind)
	if err := validation.Validate(ext, validation.In(toAny(accepted)...)); err != nil || ext == "" {
		return "", &domain.UnsupportedTypeError{Kind: string(kind), Ext: ext, Accepted: accepted}
	}
	return kind, nil
}

func (u *fileUC) extract(ctx context.Context, kind model.FileKind, in UploadInput) (string, error) {
	var (
		text string
		err  error
		op   string
	)
	switch kind {
	case model.FileImage:
		op = "ocr"
		if u.ocr == nil {
			return "", domain.NewUpstreamError(op, 0, errors.New("ocr service not configured"))
		}
		text, err = u.ocr.RecognizeImage(ctx, in.Filename, in.Data)
	default:
		op = "parse"
		if u.doc == nil {
			return "", domain.NewUpstreamError(op, 0, errors.New("document parser not configured"))
		}
		text, err = u.doc.ParseDocument(ctx, in.Filename, in.Data)
	}
	if err != nil {
		var ue *domain.UpstreamError
		if errors.As(err, &ue) {
			return "", err
		}
		return "", domain.NewUpstreamError(op, 0, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", domain.NewUpstreamError(op, 0, errors.New("no text extracted"))
	}
	return text, nil
}

// fileID is a name-based UUID over session, filename, upload instant and the
// short id about to be assigned.
func fileID(sessionID, filename string, at time.Time, seq int) string {
	name := sessionID + "\x00" + filename + "\x00" + strconv.FormatInt(at.UnixNano(), 10) + "\x00" + strconv.Itoa(seq)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
