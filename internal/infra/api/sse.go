package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

var errNoFlusher = errors.New("response writer does not support flushing")

// sseWriter serializes event-stream writes coming from the relay and the
// keep-alive loop. Headers are sent with the first write, so a handler can
// still answer with a plain JSON error until then.
type sseWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
	last    time.Time
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, errNoFlusher
	}
	return &sseWriter{w: w, flusher: f}, nil
}

func (s *sseWriter) start() {
	if s.started {
		return
	}
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	s.started = true
}

// Started reports whether any byte of the stream has been written.
func (s *sseWriter) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Data writes v as one "data:" event.
func (s *sseWriter) Data(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return s.write("data: %s\n\n", b)
}

// Comment writes an SSE comment line, ignored by clients.
func (s *sseWriter) Comment(text string) error {
	return s.write(": %s\n\n", text)
}

func (s *sseWriter) write(format string, arg any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.start()
	if _, err := fmt.Fprintf(s.w, format, arg); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	s.flusher.Flush()
	s.last = time.Now()
	return nil
}

func (s *sseWriter) idleFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	return time.Since(s.last)
}

// keepAlive writes ": keepalive" comments whenever the stream has been idle
// for interval. The returned stop func blocks until the loop has exited.
func (s *sseWriter) keepAlive(interval time.Duration) (stop func()) {
	if interval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				if s.idleFor() < interval {
					continue
				}
				if err := s.Comment("keepalive"); err != nil {
					return
				}
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
		<-exited
	}
}
