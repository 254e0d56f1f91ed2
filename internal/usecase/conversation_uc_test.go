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

func TestConversation_Lifecycle(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	id, err := f.convs.Create(ctx)
	if err != nil || id == "" {
		t.Fatalf("Create = %q, %v", id, err)
	}
	d, err := f.convs.Detail(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if d.Title != model.DefaultTitle || d.Starred || len(d.Files) != 0 || len(d.Messages) != 0 {
		t.Errorf("fresh detail = %+v", d)
	}
	if d.Settings != testDefaults {
		t.Errorf("settings = %+v", d.Settings)
	}

	starred, err := f.convs.ToggleStar(ctx, id)
	if err != nil || !starred {
		t.Fatalf("ToggleStar = %v, %v", starred, err)
	}
	if starred, _ = f.convs.ToggleStar(ctx, id); starred {
		t.Error("second toggle should unstar")
	}

	if err := f.convs.Delete(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, err := f.convs.Detail(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("detail after delete: %v", err)
	}
	if err := f.convs.Delete(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second delete: %v", err)
	}
	if _, err := f.convs.ToggleStar(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("star unknown: %v", err)
	}
	if f.store.Len() != 0 {
		t.Error("toggle must not create")
	}
}

func TestConversation_ListAndDetail(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, _ = f.files.Upload(ctx, "s1", UploadInput{Filename: "a.pdf", Data: []byte("x")})
	_ = f.chat.Send(ctx, ChatInput{SessionID: "s1", Message: "hi"}, collect(new([]Frame)))
	_ = f.chat.Send(ctx, ChatInput{SessionID: "s2", Message: "yo"}, collect(new([]Frame)))

	list := f.convs.List(ctx)
	if len(list) != 2 || list[0].ID != "s1" || list[0].FileCount != 1 || list[1].FileCount != 0 {
		t.Fatalf("list = %+v", list)
	}

	d, err := f.convs.Detail(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Files) != 1 || d.Files[0].DisplayID != "文件1" {
		t.Errorf("files = %+v", d.Files)
	}
	for _, m := range d.Messages {
		if m.Role == model.RoleSystem {
			t.Errorf("system message in detail: %+v", m)
		}
	}
	// file message, user, assistant
	if len(d.Messages) != 3 {
		t.Errorf("messages = %d", len(d.Messages))
	}
}

func TestValidateSessionID(t *testing.T) {
	if err := ValidateSessionID("abc"); err != nil {
		t.Errorf("valid id rejected: %v", err)
	}
	for _, bad := range []string{"", strings.Repeat("x", MaxSessionIDLen+1)} {
		if err := ValidateSessionID(bad); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("ValidateSessionID(%d runes) = %v", len(bad), err)
		}
	}
}
