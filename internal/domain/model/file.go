package model

import (
	"bytes"
	"fmt"
	"html/template"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

type FileKind string

const (
	FileDocument FileKind = "document"
	FileImage    FileKind = "image"
)

// PreviewRunes is the length of the stored content preview.
const PreviewRunes = 500

// DisplayPrefix is the literal marker users type before a short id to
// reference an attached file, e.g. "文件2".
const DisplayPrefix = "文件"

var (
	DocumentExtensions = []string{"pdf", "docx", "doc", "xlsx", "xls", "txt", "pptx"}
	ImageExtensions    = []string{"jpg", "jpeg", "png", "bmp", "gif"}
)

// FileRecord is one ingested document or image. Records are not mutated after
// they have been attached to a conversation.
type FileRecord struct {
	ID          string    `json:"file_id"`
	Kind        FileKind  `json:"type"`
	Filename    string    `json:"filename"`
	Content     string    `json:"content,omitempty"`
	Preview     string    `json:"preview"`
	ShortID     int       `json:"short_id"`
	DisplayID   string    `json:"display_id"`
	Size        int       `json:"size"`
	UploadedAt  time.Time `json:"uploaded_at"`
	PreviewHTML string    `json:"preview_html"`
}

// FileSummary is a FileRecord without its full content.
type FileSummary struct {
	ID          string    `json:"file_id"`
	Kind        FileKind  `json:"type"`
	Filename    string    `json:"filename"`
	Preview     string    `json:"preview"`
	ShortID     int       `json:"short_id"`
	DisplayID   string    `json:"display_id"`
	Size        int       `json:"size"`
	UploadedAt  time.Time `json:"uploaded_at"`
	PreviewHTML string    `json:"preview_html"`
}

func (f *FileRecord) Summary() FileSummary {
	return FileSummary{
		ID:          f.ID,
		Kind:        f.Kind,
		Filename:    f.Filename,
		Preview:     f.Preview,
		ShortID:     f.ShortID,
		DisplayID:   f.DisplayID,
		Size:        f.Size,
		UploadedAt:  f.UploadedAt,
		PreviewHTML: f.PreviewHTML,
	}
}

func DisplayID(shortID int) string { return fmt.Sprintf("%s%d", DisplayPrefix, shortID) }

// Extension returns the lower-cased extension of name without the dot.
func Extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// AcceptedExtensions lists the extensions valid for kind.
func AcceptedExtensions(kind FileKind) []string {
	switch kind {
	case FileDocument:
		return DocumentExtensions
	case FileImage:
		return ImageExtensions
	}
	return nil
}

// KindForExtension infers the kind from an extension.
func KindForExtension(ext string) (FileKind, bool) {
	for _, e := range DocumentExtensions {
		if e == ext {
			return FileDocument, true
		}
	}
	for _, e := range ImageExtensions {
		if e == ext {
			return FileImage, true
		}
	}
	return "", false
}

func (k FileKind) Label() string {
	if k == FileImage {
		return "图片"
	}
	return "文档"
}

var previewTmpl = template.Must(template.New("preview").Parse(
	`<div class="file-preview file-{{.Kind}}">` +
		`<div class="file-header"><span class="file-name">{{.Name}}</span>` +
		`<span class="file-type">{{.Label}}</span>` +
		`<span class="file-id">{{.DisplayID}}</span></div>` +
		`<pre class="file-content">{{.Preview}}</pre></div>`))

// RenderPreview renders the HTML fragment shown next to an attachment.
func RenderPreview(f *FileRecord) string {
	var buf bytes.Buffer
	_ = previewTmpl.Execute(&buf, struct {
		Kind      FileKind
		Name      string
		Label     string
		DisplayID string
		Preview   string
	}{
		Kind:      f.Kind,
		Name:      strings.TrimSuffix(f.Filename, filepath.Ext(f.Filename)),
		Label:     f.Kind.Label(),
		DisplayID: f.DisplayID,
		Preview:   f.Preview,
	})
	return buf.String()
}

func sortFiles(fs []FileSummary) {
	sort.Slice(fs, func(i, j int) bool { return fs[i].ShortID < fs[j].ShortID })
}
