package redact

import (
	"context"
	"strings"
	"sync"

	flume "github.com/corvalt/flume"
)

// Encryptor turns a plaintext span into its protected form. The crypt
// package provides the stock implementation.
type Encryptor interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(payload string) (string, error)
}

// Fallback selects what replaces a sensitive span when encryption of
// that span fails.
type Fallback int

const (
	// FallbackMarker substitutes a fixed marker string. Default.
	FallbackMarker Fallback = iota
	// FallbackMask substitutes one '*' per original character.
	FallbackMask
	// FallbackPlaintext keeps the original span. Availability over
	// confidentiality; opt-in only.
	FallbackPlaintext
)

const defaultMarker = "[REDACTED]"

// Stage wraps a sink with redaction. Each record's message is scanned,
// matched spans are merged and individually encrypted, and the spliced
// message is forwarded to the wrapped sink.
//
// Records leave the stage in strict arrival order even though their
// encryption runs concurrently: every Handle call chains a completion
// channel onto the previous call's channel and forwards only after its
// predecessor has forwarded. Err and StackTrace payloads pass through
// byte for byte; only Message is rewritten.
type Stage struct {
	next     flume.Sink
	matcher  Matcher
	enc      Encryptor
	fallback Fallback
	marker   string

	mu   sync.Mutex
	tail chan struct{}
}

// StageOption adjusts stage construction.
type StageOption func(*Stage)

// WithFallback selects the failure policy for individual spans.
func WithFallback(f Fallback) StageOption {
	return func(s *Stage) { s.fallback = f }
}

// WithMarker overrides the marker text used by FallbackMarker.
func WithMarker(marker string) StageOption {
	return func(s *Stage) {
		if marker != "" {
			s.marker = marker
		}
	}
}

// NewStage wraps next with redaction through the given matcher and
// encryptor.
func NewStage(next flume.Sink, matcher Matcher, enc Encryptor, opts ...StageOption) *Stage {
	closed := make(chan struct{})
	close(closed)
	s := &Stage{
		next:    next,
		matcher: matcher,
		enc:     enc,
		marker:  defaultMarker,
		tail:    closed,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Accepts defers to the wrapped sink.
func (s *Stage) Accepts(level flume.Level) bool {
	return s.next.Accepts(level)
}

// Handle redacts the record's message and forwards it. The ordering
// chain is joined before any encryption work starts, so two concurrent
// calls always forward in the order they arrived here, regardless of
// how long either one spends encrypting.
func (s *Stage) Handle(ctx context.Context, rec flume.Record) error {
	done := make(chan struct{})
	s.mu.Lock()
	prev := s.tail
	s.tail = done
	s.mu.Unlock()
	defer close(done)

	// Encryption overlaps with the predecessor's forwarding.
	msg := s.conceal(rec.Message)

	select {
	case <-prev:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.next.Handle(ctx, rec.WithMessage(msg))
}

// conceal rewrites every merged sensitive range of message. Ranges are
// spliced back-to-front-agnostic by walking them left to right and
// copying the clear gaps between them.
func (s *Stage) conceal(message string) string {
	ranges := mergeRanges(s.matcher.Scan(message), len(message))
	if len(ranges) == 0 {
		return message
	}

	var b strings.Builder
	last := 0
	for _, r := range ranges {
		b.WriteString(message[last:r.Start])
		b.WriteString(s.protect(message[r.Start:r.End]))
		last = r.End
	}
	b.WriteString(message[last:])
	return b.String()
}

// protect encrypts one span, applying the fallback policy on failure.
func (s *Stage) protect(span string) string {
	out, err := s.enc.Encrypt(span)
	if err == nil {
		return out
	}
	switch s.fallback {
	case FallbackMask:
		return strings.Repeat("*", len(span))
	case FallbackPlaintext:
		return span
	default:
		return s.marker
	}
}

// Clean drains the ordering chain, closes the matcher, and forwards the
// clean to the wrapped sink when it supports one.
func (s *Stage) Clean(ctx context.Context) error {
	s.mu.Lock()
	tail := s.tail
	s.mu.Unlock()
	select {
	case <-tail:
	case <-ctx.Done():
		return ctx.Err()
	}

	err := s.matcher.Close()
	if cleaner, ok := s.next.(flume.Cleaner); ok {
		if cleanErr := cleaner.Clean(ctx); err == nil {
			err = cleanErr
		}
	}
	return err
}
