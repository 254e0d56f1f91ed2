package tokens

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"docchat/internal/domain/ports/adapter"
)

func TestEstimate(t *testing.T) {
	if Estimate("") != 0 {
		t.Error("empty text is zero tokens")
	}
	if got := Estimate("总结一下"); got != 4 {
		t.Errorf("CJK runes count one each, got %d", got)
	}
	if got := Estimate("abcdefgh"); got != 2 {
		t.Errorf("ascii is ~4 bytes per token, got %d", got)
	}
}

func waitLoaded(t *testing.T, c *Counter, model string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		_, ok := c.enc[model]
		c.mu.Unlock()
		if ok {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("encoder for %s never settled", model)
}

func TestCounterUsesEmbeddedEncoder(t *testing.T) {
	c := NewCounter()
	c.Warm("gpt-4o")
	waitLoaded(t, c, "gpt-4o")
	if c.encoder("gpt-4o") == nil {
		t.Fatal("embedded BPE ranks should load without network")
	}

	msgs := []adapter.Message{{Role: "system", Content: "be brief"}, {Role: "user", Content: "hello there"}}
	n := c.CountMessages("gpt-4o", msgs)
	if n <= c.Count("gpt-4o", "hello there") {
		t.Errorf("message count should include framing, got %d", n)
	}
}

func TestCount_DoesNotWaitForLoad(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	c := NewCounterWith(func(string) (*tiktoken.Tiktoken, error) {
		calls.Add(1)
		<-release
		return nil, errors.New("no ranks")
	})

	done := make(chan int, 1)
	go func() { done <- c.Count("DeepSeek-V3-Fast", "总结一下文件1") }()
	select {
	case got := <-done:
		if want := Estimate("总结一下文件1"); got != want {
			t.Errorf("count while loading = %d, want %d", got, want)
		}
	case <-time.After(time.Second):
		t.Fatal("Count blocked on a pending encoder load")
	}

	c.Count("DeepSeek-V3-Fast", "again")
	close(release)
	waitLoaded(t, c, "DeepSeek-V3-Fast")
	if calls.Load() != 1 {
		t.Errorf("loader called %d times, want 1", calls.Load())
	}
	if got := c.Count("DeepSeek-V3-Fast", "abcdefgh"); got != 2 {
		t.Errorf("failed load should fall back to Estimate, got %d", got)
	}
}

func TestOfflineCounterUsesEstimate(t *testing.T) {
	c := NewOfflineCounter()
	if got, want := c.Count("gpt-4o", "总结一下文件1"), Estimate("总结一下文件1"); got != want {
		t.Errorf("offline count = %d, want %d", got, want)
	}
	if len(c.enc) != 0 || len(c.loading) != 0 {
		t.Errorf("offline counter must not load encoders")
	}
}
