package parser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"docchat/internal/domain"
	"docchat/internal/infra/logging"
)

func TestHTTPDocumentParser(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		want       string
		wantStatus int
		wantErr    bool
	}{
		{name: "text field", status: 200, body: `{"success":true,"text":"hello"}`, want: "hello"},
		{name: "content field", status: 200, body: `{"content":"from content"}`, want: "from content"},
		{name: "reported failure", status: 200, body: `{"success":false,"error":"encrypted pdf"}`, wantErr: true},
		{name: "non-200", status: 503, body: `busy`, wantErr: true, wantStatus: 503},
		{name: "malformed body", status: 200, body: `<html>`, wantErr: true, wantStatus: 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				f, hdr, err := r.FormFile("file")
				if err != nil {
					t.Errorf("expected multipart file: %v", err)
				} else {
					b, _ := io.ReadAll(f)
					if hdr.Filename != "report.pdf" || string(b) != "%PDF" {
						t.Errorf("unexpected upload %s %q", hdr.Filename, b)
					}
				}
				if r.Header.Get("Authorization") != "Bearer k" {
					t.Errorf("missing bearer token")
				}
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			p, _ := NewHTTPDocumentParser(srv.URL, "k", time.Second)
			got, err := p.ParseDocument(context.Background(), "report.pdf", []byte("%PDF"))
			if tt.wantErr {
				var up *domain.UpstreamError
				if !errors.As(err, &up) {
					t.Fatalf("expected UpstreamError, got %v", err)
				}
				if up.Op != "parse" || up.Status != tt.wantStatus {
					t.Errorf("unexpected upstream error %+v", up)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("got (%q, %v), want %q", got, err, tt.want)
			}
		})
	}
}

func TestHTTPImageOCR_JoinsBlocks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true,"blocks":[{"text":"line one"},{"text":"  "},{"text":"line two"}]}`)
	}))
	defer srv.Close()

	o, _ := NewHTTPImageOCR(srv.URL, "", time.Second)
	got, err := o.RecognizeImage(context.Background(), "photo.jpg", []byte{0xff, 0xd8})
	if err != nil {
		t.Fatal(err)
	}
	if got != "line one\nline two" {
		t.Errorf("unexpected text %q", got)
	}
}

func TestHTTPImageOCR_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	o, _ := NewHTTPImageOCR(url, "", time.Second)
	_, err := o.RecognizeImage(context.Background(), "photo.jpg", []byte{1})
	var up *domain.UpstreamError
	if !errors.As(err, &up) || up.Op != "ocr" || up.Hint == "" {
		t.Fatalf("expected ocr UpstreamError with hint, got %v", err)
	}
}

type mapCache struct {
	m    map[string]string
	sets int
}

func (c *mapCache) Get(_ context.Context, k string) (string, bool, error) {
	v, ok := c.m[k]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, k, v string) error {
	c.sets++
	c.m[k] = v
	return nil
}

type countingDoc struct {
	n    int
	text string
	err  error
}

func (d *countingDoc) ParseDocument(context.Context, string, []byte) (string, error) {
	d.n++
	if d.text != "" {
		return d.text, d.err
	}
	return "parsed", d.err
}

func TestCachedParser(t *testing.T) {
	doc := &countingDoc{}
	cache := &mapCache{m: map[string]string{}}
	p := NewCachedParser(doc, nil, cache, logging.Nop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := p.ParseDocument(ctx, "a.txt", []byte("same bytes"))
		if err != nil || got != "parsed" {
			t.Fatalf("got (%q, %v)", got, err)
		}
	}
	if doc.n != 1 || cache.sets != 1 {
		t.Errorf("expected one upstream call and one cache write, got %d/%d", doc.n, cache.sets)
	}
	if CacheKey("document", []byte("x")) == CacheKey("image", []byte("x")) {
		t.Error("cache keys must differ by kind")
	}

	failing := &countingDoc{err: errors.New("boom")}
	p = NewCachedParser(failing, nil, cache, logging.Nop())
	if _, err := p.ParseDocument(ctx, "b.txt", []byte("other")); err == nil {
		t.Fatal("expected error")
	}
	if cache.sets != 1 {
		t.Error("failures must not be cached")
	}

	blank := &countingDoc{text: " \n\t"}
	p = NewCachedParser(blank, nil, cache, logging.Nop())
	for i := 0; i < 2; i++ {
		if _, err := p.ParseDocument(ctx, "c.txt", []byte("scanned")); err != nil {
			t.Fatal(err)
		}
	}
	if blank.n != 2 || cache.sets != 1 {
		t.Errorf("blank text must not be cached: calls=%d sets=%d", blank.n, cache.sets)
	}
}
