// File: internal/infra/adapters/parser/http_parser.go
package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"docchat/internal/domain"
	"docchat/internal/domain/ports/adapter"
)

var (
	_ adapter.DocumentParser = (*HTTPDocumentParser)(nil)
	_ adapter.ImageOCR       = (*HTTPImageOCR)(nil)
)

// maxErrorBody bounds how much of a failed upstream body ends up in errors.
const maxErrorBody = 512

// HTTPDocumentParser posts the raw file as multipart/form-data field "file"
// to the document-parse endpoint and reads {"success", "text", "error"}.
type HTTPDocumentParser struct {
	url    string
	apiKey string
	client *http.Client
}

func NewHTTPDocumentParser(url, apiKey string, timeout time.Duration) (*HTTPDocumentParser, error) {
	if url == "" {
		return nil, errors.New("document parse url empty")
	}
	return &HTTPDocumentParser{url: url, apiKey: apiKey, client: &http.Client{Timeout: timeout}}, nil
}

func (p *HTTPDocumentParser) ParseDocument(ctx context.Context, filename string, data []byte) (string, error) {
	var out struct {
		Success *bool  `json:"success"`
		Text    string `json:"text"`
		Content string `json:"content"`
		Error   string `json:"error"`
	}
	if err := postFile(ctx, p.client, p.url, p.apiKey, "parse", filename, data, &out); err != nil {
		return "", err
	}
	if out.Success != nil && !*out.Success {
		return "", domain.NewUpstreamError("parse", 0, errors.New(failureText(out.Error)))
	}
	text := out.Text
	if text == "" {
		text = out.Content
	}
	return text, nil
}

// HTTPImageOCR posts an image to the OCR endpoint and joins the recognized
// text blocks with newlines.
type HTTPImageOCR struct {
	url    string
	apiKey string
	client *http.Client
}

func NewHTTPImageOCR(url, apiKey string, timeout time.Duration) (*HTTPImageOCR, error) {
	if url == "" {
		return nil, errors.New("ocr url empty")
	}
	return &HTTPImageOCR{url: url, apiKey: apiKey, client: &http.Client{Timeout: timeout}}, nil
}

func (o *HTTPImageOCR) RecognizeImage(ctx context.Context, filename string, data []byte) (string, error) {
	var out struct {
		Success *bool  `json:"success"`
		Text    string `json:"text"`
		Blocks  []struct {
			Text string `json:"text"`
		} `json:"blocks"`
		Error string `json:"error"`
	}
	if err := postFile(ctx, o.client, o.url, o.apiKey, "ocr", filename, data, &out); err != nil {
		return "", err
	}
	if out.Success != nil && !*out.Success {
		return "", domain.NewUpstreamError("ocr", 0, errors.New(failureText(out.Error)))
	}
	if len(out.Blocks) == 0 {
		return out.Text, nil
	}
	lines := make([]string, 0, len(out.Blocks))
	for _, b := range out.Blocks {
		if t := strings.TrimSpace(b.Text); t != "" {
			lines = append(lines, t)
		}
	}
	return strings.Join(lines, "\n"), nil
}

func postFile(ctx context.Context, client *http.Client, url, apiKey, op, filename string, data []byte, out any) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("%s: build form: %w", op, err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("%s: build form: %w", op, err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("%s: build form: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return domain.NewUpstreamError(op, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return domain.NewUpstreamError(op, resp.StatusCode, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.NewUpstreamError(op, resp.StatusCode, fmt.Errorf("malformed response: %w", err))
	}
	return nil
}

func failureText(s string) string {
	if s == "" {
		return "extraction failed"
	}
	return s
}
