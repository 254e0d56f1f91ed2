//go:build !integration

package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"docchat/internal/domain"
	"docchat/internal/domain/model"
)

func TestUpload_AssignsSequentialShortIDs(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	names := []string{"a.pdf", "b.docx", "c.png", "d.txt"}
	for i, n := range names {
		rec, err := f.files.Upload(ctx, "s1", UploadInput{Filename: n, Data: []byte("x")})
		if err != nil {
			t.Fatalf("upload %s: %v", n, err)
		}
		if rec.ShortID != i+1 || rec.DisplayID != model.DisplayID(i+1) {
			t.Errorf("%s: short id %d display %q", n, rec.ShortID, rec.DisplayID)
		}
	}
	if f.doc.calls != 3 || f.ocr.calls != 1 {
		t.Errorf("collaborator calls doc=%d ocr=%d", f.doc.calls, f.ocr.calls)
	}

	c := f.snapshot("s1")
	if len(c.Files) != 4 {
		t.Fatalf("files = %d", len(c.Files))
	}
	// system + one attachment message per file
	if len(c.Messages) != 5 {
		t.Fatalf("messages = %d", len(c.Messages))
	}
	for _, m := range c.Messages[1:] {
		if !m.IsFile || m.File == nil || m.Role != model.RoleUser {
			t.Errorf("not a file message: %+v", m)
		}
	}
}

func TestUpload_RecordFields(t *testing.T) {
	f := newFixture()
	f.doc.text = strings.Repeat("文", 600)

	rec, err := f.files.Upload(context.Background(), "s1", UploadInput{Filename: "report.pdf", Kind: model.FileDocument, Data: []byte("%PDF-1.4")})
	if err != nil {
		t.Fatal(err)
	}
	if rec.ID == "" || rec.Kind != model.FileDocument || rec.Size != 8 {
		t.Errorf("record = %+v", rec)
	}
	if rec.Preview != strings.Repeat("文", model.PreviewRunes)+"..." {
		t.Errorf("preview has %d runes", len([]rune(rec.Preview)))
	}
	if rec.Content != f.doc.text {
		t.Error("content must be kept in full")
	}
	if !strings.Contains(rec.PreviewHTML, ">report<") || !strings.Contains(rec.PreviewHTML, "文件1") || !strings.Contains(rec.PreviewHTML, "文档") {
		t.Errorf("preview html = %s", rec.PreviewHTML)
	}

	got, err := f.files.Content(context.Background(), "s1", rec.ID)
	if err != nil || got.Content != rec.Content {
		t.Errorf("Content = %v, %v", got, err)
	}
}

func TestUpload_Rejections(t *testing.T) {
	cases := []struct {
		name string
		in   UploadInput
		want error
	}{
		{"empty", UploadInput{Filename: "a.pdf", Kind: model.FileDocument}, domain.ErrEmptyFile},
		{"image declared as document", UploadInput{Filename: "a.png", Kind: model.FileDocument, Data: []byte("x")}, domain.ErrUnsupportedType},
		{"document declared as image", UploadInput{Filename: "a.pdf", Kind: model.FileImage, Data: []byte("x")}, domain.ErrUnsupportedType},
		{"unknown extension", UploadInput{Filename: "a.exe", Data: []byte("x")}, domain.ErrUnsupportedType},
		{"no extension", UploadInput{Filename: "README", Kind: model.FileDocument, Data: []byte("x")}, domain.ErrUnsupportedType},
		{"bad kind", UploadInput{Filename: "a.pdf", Kind: "video", Data: []byte("x")}, domain.ErrInvalidArgument},
		{"too large", UploadInput{Filename: "a.pdf", Data: make([]byte, 2<<20)}, domain.ErrFileTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			_, err := f.files.Upload(context.Background(), "s1", tc.in)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			if f.store.Len() != 0 {
				t.Error("rejected upload touched the store")
			}
			if f.doc.calls+f.ocr.calls != 0 {
				t.Error("collaborator called for a rejected upload")
			}
		})
	}

	t.Run("accepted set listed", func(t *testing.T) {
		f := newFixture()
		_, err := f.files.Upload(context.Background(), "s1", UploadInput{Filename: "a.gif", Kind: model.FileDocument, Data: []byte("x")})
		var ue *domain.UnsupportedTypeError
		if !errors.As(err, &ue) || len(ue.Accepted) != len(model.DocumentExtensions) {
			t.Fatalf("err = %#v", err)
		}
	})
}

func TestUpload_UpstreamFailure(t *testing.T) {
	f := newFixture()
	f.doc.err = errors.New("parser returned 503")
	_, err := f.files.Upload(context.Background(), "s1", UploadInput{Filename: "a.pdf", Data: []byte("x")})
	var ue *domain.UpstreamError
	if !errors.As(err, &ue) || ue.Op != "parse" || !strings.Contains(ue.Message, "503") {
		t.Fatalf("err = %v", err)
	}
	if f.store.Len() != 0 {
		t.Error("failed ingestion created a conversation")
	}

	f.doc.err = nil
	f.doc.text = "   "
	if _, err := f.files.Upload(context.Background(), "s1", UploadInput{Filename: "a.pdf", Data: []byte("x")}); !errors.As(err, &ue) {
		t.Fatalf("blank extraction: err = %v", err)
	}
}

func TestUploadBatch_Independent(t *testing.T) {
	f := newFixture()
	res := f.files.UploadBatch(context.Background(), "s1", []UploadInput{
		{Filename: "a.pdf", Data: []byte("x")},
		{Filename: "bad.exe", Data: []byte("x")},
		{Filename: "c.jpeg", Data: []byte("x")},
	})
	if len(res) != 3 {
		t.Fatalf("results = %d", len(res))
	}
	if res[0].Err != nil || res[0].File.ShortID != 1 {
		t.Errorf("first: %+v", res[0])
	}
	if !errors.Is(res[1].Err, domain.ErrUnsupportedType) || res[1].File != nil {
		t.Errorf("second: %+v", res[1])
	}
	if res[2].Err != nil || res[2].File.ShortID != 2 || res[2].File.Kind != model.FileImage {
		t.Errorf("third: %+v", res[2])
	}
}

func TestRemove(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a, _ := f.files.Upload(ctx, "s1", UploadInput{Filename: "a.pdf", Data: []byte("x")})
	_, _ = f.files.Upload(ctx, "s1", UploadInput{Filename: "b.pdf", Data: []byte("x")})

	if err := f.files.Remove(ctx, "s1", a.ID); err != nil {
		t.Fatal(err)
	}
	if err := f.files.Remove(ctx, "s1", a.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second remove: %v", err)
	}
	if err := f.files.Remove(ctx, "nope", a.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown session: %v", err)
	}
	if _, err := f.files.Content(ctx, "s1", a.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("content after remove: %v", err)
	}

	c := f.snapshot("s1")
	if len(c.Files) != 1 {
		t.Errorf("files = %d", len(c.Files))
	}
	// the attachment message stays, a system note is appended
	if !c.Messages[1].IsFile || c.Messages[1].File.Filename != "a.pdf" {
		t.Errorf("attachment message lost: %+v", c.Messages[1])
	}
	last := c.Messages[len(c.Messages)-1]
	if last.Role != model.RoleSystem || !strings.Contains(last.Content, "a.pdf") {
		t.Errorf("removal note = %+v", last)
	}

	// ids of removed files are not reused
	rec, _ := f.files.Upload(ctx, "s1", UploadInput{Filename: "c.pdf", Data: []byte("x")})
	if rec.ShortID != 3 {
		t.Errorf("short id = %d, want 3", rec.ShortID)
	}
	if got := ResolveReferences("文件1", f.snapshot("s1")); len(got) != 0 {
		t.Error("removed file still resolvable")
	}
}
