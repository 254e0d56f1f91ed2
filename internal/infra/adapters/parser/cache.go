package parser

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/rs/zerolog"

	"docchat/internal/domain/ports/adapter"
	"docchat/internal/infra/metrics"
)

// Cache stores extracted text by content key.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

var (
	_ adapter.DocumentParser = (*CachedParser)(nil)
	_ adapter.ImageOCR       = (*CachedParser)(nil)
)

// CachedParser consults cache before calling the collaborators. Identical
// bytes are only sent upstream once per cache TTL. Blank extractions are never
// cached so a retry reaches upstream again. Cache failures are logged and
// otherwise ignored.
type CachedParser struct {
	doc   adapter.DocumentParser
	ocr   adapter.ImageOCR
	cache Cache
	log   *zerolog.Logger
}

func NewCachedParser(doc adapter.DocumentParser, ocr adapter.ImageOCR, cache Cache, logger *zerolog.Logger) *CachedParser {
	return &CachedParser{doc: doc, ocr: ocr, cache: cache, log: logger}
}

// CacheKey derives the cache key for data of the given kind.
func CacheKey(kind string, data []byte) string {
	sum := sha256.Sum256(data)
	return "parse:" + kind + ":" + hex.EncodeToString(sum[:])
}

func (c *CachedParser) ParseDocument(ctx context.Context, filename string, data []byte) (string, error) {
	return c.cached(ctx, "document", data, func() (string, error) {
		return c.doc.ParseDocument(ctx, filename, data)
	})
}

func (c *CachedParser) RecognizeImage(ctx context.Context, filename string, data []byte) (string, error) {
	return c.cached(ctx, "image", data, func() (string, error) {
		return c.ocr.RecognizeImage(ctx, filename, data)
	})
}

func (c *CachedParser) cached(ctx context.Context, kind string, data []byte, call func() (string, error)) (string, error) {
	key := CacheKey(kind, data)
	if v, ok, err := c.cache.Get(ctx, key); err != nil {
		c.log.Warn().Err(err).Str("kind", kind).Msg("parse cache get failed")
	} else if ok && strings.TrimSpace(v) != "" {
		metrics.IncCacheRequest("parse", "hit")
		return v, nil
	}
	metrics.IncCacheRequest("parse", "miss")

	text, err := call()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return text, nil
	}
	if err := c.cache.Set(ctx, key, text); err != nil {
		c.log.Warn().Err(err).Str("kind", kind).Msg("parse cache set failed")
	}
	return text, nil
}
