package adapter

import "context"

// DocumentParser extracts text from an office/pdf/plain-text document.
type DocumentParser interface {
	ParseDocument(ctx context.Context, filename string, data []byte) (string, error)
}

// ImageOCR extracts text from an image.
type ImageOCR interface {
	RecognizeImage(ctx context.Context, filename string, data []byte) (string, error)
}
