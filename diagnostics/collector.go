package diagnostics

import (
	"context"
	"sync"
)

// Collector keeps reported diagnostics in memory.
type Collector struct {
	mu    sync.Mutex
	items []Diagnostic
}

var _ Sink = &Collector{}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Report(_ context.Context, d Diagnostic) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, d)
}

// Diagnostics returns a copy of everything reported so far, in report order.
func (c *Collector) Diagnostics() []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Diagnostic, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Collector) Errors() []Diagnostic {
	return c.filter(SeverityError)
}

func (c *Collector) Warnings() []Diagnostic {
	return c.filter(SeverityWarning)
}

func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Collector) filter(severity Severity) []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Diagnostic
	for _, d := range c.items {
		if d.Severity == severity {
			out = append(out, d)
		}
	}
	return out
}
