// Package tokens estimates token counts for metrics and logs.
package tokens

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"docchat/internal/domain/ports/adapter"
)

// fallbackEncoding is used for models tiktoken does not know (DeepSeek etc.).
const fallbackEncoding = "cl100k_base"

// Loader builds the encoder for a model.
type Loader func(model string) (*tiktoken.Tiktoken, error)

// Counter caches one encoder per model. Encoders load in the background;
// until one is ready, and when it cannot be loaded, Count uses Estimate.
// Callers never wait on a load.
type Counter struct {
	mu      sync.Mutex
	enc     map[string]*tiktoken.Tiktoken
	loading map[string]bool
	load    Loader
}

// NewCounter loads encoders from the BPE ranks embedded in the binary, so
// counting never touches the network.
func NewCounter() *Counter {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	return NewCounterWith(loadEncoder)
}

// NewCounterWith uses load to build encoders.
func NewCounterWith(load Loader) *Counter {
	return &Counter{
		enc:     make(map[string]*tiktoken.Tiktoken),
		loading: make(map[string]bool),
		load:    load,
	}
}

// NewOfflineCounter never loads encoders and always uses Estimate.
func NewOfflineCounter() *Counter {
	return NewCounterWith(nil)
}

func loadEncoder(model string) (*tiktoken.Tiktoken, error) {
	e, err := tiktoken.EncodingForModel(model)
	if err != nil {
		e, err = tiktoken.GetEncoding(fallbackEncoding)
	}
	return e, err
}

// Warm starts loading the encoders for models without waiting.
func (c *Counter) Warm(models ...string) {
	for _, m := range models {
		c.encoder(m)
	}
}

// encoder returns the cached encoder for model, or nil while it is still
// loading or failed to load.
func (c *Counter) encoder(model string) *tiktoken.Tiktoken {
	if c.load == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.enc[model]; ok {
		return e
	}
	if !c.loading[model] {
		c.loading[model] = true
		go c.fill(model)
	}
	return nil
}

func (c *Counter) fill(model string) {
	e, err := c.load(model)
	if err != nil {
		e = nil
	}
	c.mu.Lock()
	c.enc[model] = e
	delete(c.loading, model)
	c.mu.Unlock()
}

// Count estimates the tokens of text for model.
func (c *Counter) Count(model, text string) int {
	if text == "" {
		return 0
	}
	if e := c.encoder(model); e != nil {
		return len(e.Encode(text, nil, nil))
	}
	return Estimate(text)
}

// CountMessages estimates the prompt size of msgs, including the per-message
// framing overhead chat models add.
func (c *Counter) CountMessages(model string, msgs []adapter.Message) int {
	n := 3
	for _, m := range msgs {
		n += 4 + c.Count(model, m.Role) + c.Count(model, m.Content)
	}
	return n
}

// Estimate is the offline heuristic: roughly one token per CJK rune and one
// per four bytes of other text.
func Estimate(text string) int {
	n, other := 0, 0
	for _, r := range text {
		if r >= 0x2E80 {
			n++
			continue
		}
		other += utf8.RuneLen(r)
	}
	return n + (other+3)/4
}
