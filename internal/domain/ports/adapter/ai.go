package adapter

import "context"

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// StreamRequest is one upstream completion call.
type StreamRequest struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// ChatStream is an incremental completion. Next advances to the next text
// delta; after Next returns false, Err reports why (nil on normal end).
type ChatStream interface {
	Next() bool
	Delta() string
	Err() error
	Close() error
}

// ChatStreamer is the port for the upstream chat-completion service.
type ChatStreamer interface {
	ListModels(ctx context.Context) ([]string, error)

	// StreamChat opens a streaming completion. Implementations may defer
	// connection errors to the first Next/Err.
	StreamChat(ctx context.Context, req StreamRequest) (ChatStream, error)
}
