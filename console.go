package flume

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// ConsoleSink writes formatted records to an io.Writer, typically
// stdout or stderr. Filtering uses the explicit allow-set when one is
// configured, otherwise the minimum level rank.
type ConsoleSink struct {
	mu    sync.Mutex
	w     io.Writer
	min   Level
	allow LevelSet
}

// ConsoleOption customizes a ConsoleSink.
type ConsoleOption func(*ConsoleSink)

// WithAllowSet switches the sink to allow-set filtering.
func WithAllowSet(set LevelSet) ConsoleOption {
	return func(c *ConsoleSink) { c.allow = set }
}

// NewConsoleSink creates a console sink delivering records at or above
// min to w.
func NewConsoleSink(w io.Writer, min Level, opts ...ConsoleOption) *ConsoleSink {
	c := &ConsoleSink{w: w, min: min}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Accepts implements Sink.
func (c *ConsoleSink) Accepts(level Level) bool {
	if !c.allow.Empty() {
		return c.allow.Contains(level)
	}
	return level.AtLeast(c.min)
}

// Handle implements Sink.
func (c *ConsoleSink) Handle(_ context.Context, rec Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	line := rec.CreatedAt.Format(time.RFC3339) + " " + rec.Level.String() + " " + rec.Message
	if rec.Err != nil {
		line += fmt.Sprintf(" error=%v", rec.Err)
	}
	if rec.StackTrace != nil {
		line += fmt.Sprintf("\n%v", rec.StackTrace)
	}
	if rec.Fatal {
		line += " (fatal)"
	}
	if _, err := io.WriteString(c.w, line+"\n"); err != nil {
		return fmtErrorf("console write failed: %w", err)
	}
	return nil
}
