package usecase

import (
	"fmt"
	"strings"

	"docchat/internal/domain/model"
	"docchat/internal/domain/ports/adapter"
)

const (
	fileContextHeader = "用户在本条消息中引用了以下文件内容："
	fileMessageFormat = "[File message] %s: %s"
)

// SettingsOverride carries per-request settings. Empty strings and a nil
// MaxTokens mean "not supplied"; any supplied MaxTokens is clamped.
type SettingsOverride struct {
	Model        string
	SystemPrompt string
	MaxTokens    *int
}

// ResolveSettings picks each field from the override, then the conversation's
// previous settings, then defaults. MaxTokens is clamped.
func ResolveSettings(prev model.Settings, o SettingsOverride, defaults model.Settings) model.Settings {
	s := model.Settings{
		Model:        firstNonEmpty(o.Model, prev.Model, defaults.Model),
		SystemPrompt: firstNonEmpty(o.SystemPrompt, prev.SystemPrompt, defaults.SystemPrompt),
		MaxTokens:    defaults.MaxTokens,
	}
	switch {
	case o.MaxTokens != nil:
		s.MaxTokens = *o.MaxTokens
	case prev.MaxTokens > 0:
		s.MaxTokens = prev.MaxTokens
	}
	s.MaxTokens = model.ClampMaxTokens(s.MaxTokens)
	return s
}

// BuildMessages assembles the upstream message list:
//  1. the system prompt;
//  2. one system message with the referenced files' content, iff any;
//  3. the stored history without system entries, file-attachment messages
//     rewritten to a user message carrying only the preview;
//  4. the new user message, verbatim.
//
// Full file content reaches the model only through step 2.
func BuildMessages(c *model.Conversation, userText string, resolved []*model.FileRecord, contextRunes int) []adapter.Message {
	out := make([]adapter.Message, 0, len(c.Messages)+2)
	out = append(out, adapter.Message{Role: model.RoleSystem, Content: c.Settings.SystemPrompt})

	if len(resolved) > 0 {
		out = append(out, adapter.Message{Role: model.RoleSystem, Content: FileContext(resolved, contextRunes)})
	}

	for _, m := range c.Messages {
		switch {
		case m.Role == model.RoleSystem:
			continue
		case m.IsFile && m.File != nil:
			out = append(out, adapter.Message{
				Role:    model.RoleUser,
				Content: fmt.Sprintf(fileMessageFormat, m.File.DisplayID, m.File.Preview),
			})
		default:
			out = append(out, adapter.Message{Role: m.Role, Content: m.Content})
		}
	}

	return append(out, adapter.Message{Role: model.RoleUser, Content: userText})
}

// FileContext renders the referenced-files block, one
// "<display id> (<filename>):\n<content>" section per file.
func FileContext(files []*model.FileRecord, contextRunes int) string {
	var sb strings.Builder
	sb.WriteString(fileContextHeader)
	for _, f := range files {
		sb.WriteString("\n\n")
		fmt.Fprintf(&sb, "%s (%s):\n%s", f.DisplayID, f.Filename, model.Truncate(f.Content, contextRunes))
	}
	return sb.String()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
