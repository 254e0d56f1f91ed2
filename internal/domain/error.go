package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound         = errors.New("entity not found")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrEmptyMessage     = errors.New("message must not be empty")
	ErrEmptyFile        = errors.New("no file data provided")
	ErrUnsupportedType  = errors.New("unsupported file type")
	ErrFileTooLarge     = errors.New("file exceeds maximum upload size")
	ErrProviderNotFound = errors.New("no upstream provider for model")
)

// UpstreamError reports a failed call to one of the external collaborators
// (chat completion, document parse, image OCR). Hint carries a human readable
// probable cause that is safe to show to the client.
type UpstreamError struct {
	Op      string // "chat" | "parse" | "ocr"
	Message string
	Hint    string
	Status  int // upstream HTTP status when known
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s upstream: %s (http %d)", e.Op, e.Message, e.Status)
	}
	return fmt.Sprintf("%s upstream: %s", e.Op, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// NewUpstreamError builds an UpstreamError with the default hint for op.
func NewUpstreamError(op string, status int, err error) *UpstreamError {
	msg := "request failed"
	if err != nil {
		msg = err.Error()
	}
	return &UpstreamError{Op: op, Message: msg, Hint: defaultHint(op, status), Status: status, Err: err}
}

func defaultHint(op string, status int) string {
	switch {
	case status == 401 || status == 403:
		return "可能原因：API 密钥错误或无权限。"
	case status == 429:
		return "可能原因：上游服务限流，请稍后重试。"
	case status >= 500:
		return "可能原因：上游服务器不可用。"
	}
	switch op {
	case "parse", "ocr":
		return "可能原因：文件解析服务不可用或文件内容无法识别。"
	default:
		return "可能原因：API 密钥错误、网络问题或服务器不可用。"
	}
}

// UnsupportedTypeError lists the accepted extensions for the declared kind.
type UnsupportedTypeError struct {
	Kind     string
	Ext      string
	Accepted []string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported %s extension %q, accepted: %v", e.Kind, e.Ext, e.Accepted)
}

func (e *UnsupportedTypeError) Unwrap() error { return ErrUnsupportedType }
