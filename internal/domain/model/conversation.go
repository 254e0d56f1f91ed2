package model

import (
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const (
	DefaultTitle   = "新对话"
	TitleMaxRunes  = 30
	MinMaxTokens   = 256
	MaxMaxTokens   = 16384
	ellipsisMarker = "..."
)

// Settings are the per-conversation knobs sent upstream on every chat turn.
type Settings struct {
	Model        string `json:"model"`
	SystemPrompt string `json:"system_prompt"`
	MaxTokens    int    `json:"max_tokens"`
}

// ClampMaxTokens bounds n to [MinMaxTokens, MaxMaxTokens].
func ClampMaxTokens(n int) int {
	if n < MinMaxTokens {
		return MinMaxTokens
	}
	if n > MaxMaxTokens {
		return MaxMaxTokens
	}
	return n
}

// Message is one entry of a conversation transcript. File-attachment messages
// embed a summary of the file they announced, without its full content; that
// copy survives removal of the file.
type Message struct {
	ID        string      `json:"id"`
	Role      string      `json:"role"`
	Content   string      `json:"content"`
	IsFile    bool        `json:"is_file,omitempty"`
	File      *FileSummary `json:"file,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Conversation is the aggregate root for one session.
// Messages[0] is always the system message.
type Conversation struct {
	ID         string
	Title      string
	CreatedAt  time.Time
	LastActive time.Time
	Starred    bool
	Settings   Settings
	Messages   []Message
	Files      map[string]*FileRecord

	// NextShortID is the short id handed to the next attached file. It only
	// grows, so ids of removed files are never reused.
	NextShortID int
	// Epoch identifies this incarnation of the session id. A conversation that
	// is deleted and re-created under the same id gets a new epoch.
	Epoch string
}

// ConversationSummary is the list view of a conversation.
type ConversationSummary struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
	Starred    bool      `json:"starred"`
	FileCount  int       `json:"file_count"`
}

// ConversationDetail is the detail view; it never contains system messages.
type ConversationDetail struct {
	ConversationSummary
	Settings Settings      `json:"settings"`
	Files    []FileSummary `json:"files"`
	Messages []Message     `json:"messages"`
}

func NewConversation(id string, settings Settings, now time.Time) *Conversation {
	settings.MaxTokens = ClampMaxTokens(settings.MaxTokens)
	return &Conversation{
		ID:          id,
		Title:       DefaultTitle,
		CreatedAt:   now,
		LastActive:  now,
		Settings:    settings,
		Messages:    []Message{newMessage(RoleSystem, settings.SystemPrompt, now)},
		Files:       make(map[string]*FileRecord),
		NextShortID: 1,
		Epoch:       ulid.Make().String(),
	}
}

func newMessage(role, content string, now time.Time) Message {
	return Message{ID: ulid.Make().String(), Role: role, Content: content, Timestamp: now}
}

// AddMessage appends a plain message and returns its id.
func (c *Conversation) AddMessage(role, content string, now time.Time) string {
	m := newMessage(role, content, now)
	c.Messages = append(c.Messages, m)
	c.LastActive = now
	return m.ID
}

// RemoveMessage drops the message with the given id. It reports whether a
// message was removed.
func (c *Conversation) RemoveMessage(id string) bool {
	for i := range c.Messages {
		if i == 0 {
			continue
		}
		if c.Messages[i].ID == id {
			c.Messages = append(c.Messages[:i], c.Messages[i+1:]...)
			return true
		}
	}
	return false
}

// ApplySettings replaces the settings wholesale and keeps the leading system
// message in sync with the prompt.
func (c *Conversation) ApplySettings(s Settings) {
	s.MaxTokens = ClampMaxTokens(s.MaxTokens)
	c.Settings = s
	if len(c.Messages) > 0 && c.Messages[0].Role == RoleSystem {
		c.Messages[0].Content = s.SystemPrompt
	}
}

// AttachFile assigns the next short id to f, stores it and announces it with
// a file-attachment message.
func (c *Conversation) AttachFile(f *FileRecord, now time.Time) {
	f.ShortID = c.NextShortID
	f.DisplayID = DisplayID(f.ShortID)
	f.PreviewHTML = RenderPreview(f)
	c.NextShortID++
	c.Files[f.ID] = f

	sum := f.Summary()
	m := newMessage(RoleUser, f.Preview, now)
	m.IsFile = true
	m.File = &sum
	c.Messages = append(c.Messages, m)
	c.LastActive = now
}

// DetachFile removes the file and records the removal as a system message.
// Earlier attachment messages are left as they are.
func (c *Conversation) DetachFile(fileID string, now time.Time) (*FileRecord, bool) {
	f, ok := c.Files[fileID]
	if !ok {
		return nil, false
	}
	delete(c.Files, fileID)
	c.AddMessage(RoleSystem, "已删除文件: "+f.DisplayID+" ("+f.Filename+")", now)
	return f, true
}

// FileByShortID returns the attached file with the given short id.
func (c *Conversation) FileByShortID(id int) (*FileRecord, bool) {
	for _, f := range c.Files {
		if f.ShortID == id {
			return f, true
		}
	}
	return nil, false
}

// MaybeDeriveTitle sets the title from text when it is still the default.
func (c *Conversation) MaybeDeriveTitle(text string) {
	if c.Title != DefaultTitle {
		return
	}
	if t := Truncate(text, TitleMaxRunes); t != "" {
		c.Title = t
	}
}

func (c *Conversation) Summary() ConversationSummary {
	return ConversationSummary{
		ID:         c.ID,
		Title:      c.Title,
		CreatedAt:  c.CreatedAt,
		LastActive: c.LastActive,
		Starred:    c.Starred,
		FileCount:  len(c.Files),
	}
}

// Detail builds the client view. Files are ordered by short id.
func (c *Conversation) Detail() ConversationDetail {
	d := ConversationDetail{
		ConversationSummary: c.Summary(),
		Settings:            c.Settings,
		Files:               make([]FileSummary, 0, len(c.Files)),
		Messages:            make([]Message, 0, len(c.Messages)),
	}
	for _, f := range c.Files {
		d.Files = append(d.Files, f.Summary())
	}
	sortFiles(d.Files)
	for _, m := range c.Messages {
		if m.Role == RoleSystem {
			continue
		}
		d.Messages = append(d.Messages, m)
	}
	return d
}

// Clone returns a copy that is safe to read without holding the session lock.
// FileRecords are immutable once attached and are shared.
func (c *Conversation) Clone() *Conversation {
	cp := *c
	cp.Messages = append([]Message(nil), c.Messages...)
	cp.Files = make(map[string]*FileRecord, len(c.Files))
	for k, v := range c.Files {
		cp.Files[k] = v
	}
	return &cp
}

// Truncate keeps the first n runes of s and appends "..." when it cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + ellipsisMarker
}
