// Package compat adapts the flume engine to the logger interfaces of
// third-party servers. The adapters depend only on structural
// interfaces, so importing compat never pulls in the servers
// themselves.
package compat

import (
	"fmt"
	"strings"

	flume "github.com/corvalt/flume"
)

// FastHTTPAdapter wraps a flume.Engine to implement fasthttp's Logger
// interface (a single Printf method).
type FastHTTPAdapter struct {
	engine        *flume.Engine
	defaultLevel  flume.Level
	levelDetector func(string) (flume.Level, bool)
}

// FastHTTPOption allows customizing adapter behavior.
type FastHTTPOption func(*FastHTTPAdapter)

// WithDefaultLevel sets the level used when detection yields nothing.
func WithDefaultLevel(level flume.Level) FastHTTPOption {
	return func(a *FastHTTPAdapter) {
		a.defaultLevel = level
	}
}

// WithLevelDetector sets a custom message-content level detector.
func WithLevelDetector(detector func(string) (flume.Level, bool)) FastHTTPOption {
	return func(a *FastHTTPAdapter) {
		a.levelDetector = detector
	}
}

// NewFastHTTPAdapter creates a fasthttp-compatible logger adapter.
func NewFastHTTPAdapter(engine *flume.Engine, opts ...FastHTTPOption) *FastHTTPAdapter {
	adapter := &FastHTTPAdapter{
		engine:        engine,
		defaultLevel:  flume.LevelInfo,
		levelDetector: DetectLogLevel,
	}
	for _, opt := range opts {
		opt(adapter)
	}
	return adapter
}

// Printf implements fasthttp's Logger interface.
func (a *FastHTTPAdapter) Printf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)

	level := a.defaultLevel
	if a.levelDetector != nil {
		if detected, ok := a.levelDetector(msg); ok {
			level = detected
		}
	}
	a.engine.Log(level, "[fasthttp] "+msg)
}

// DetectLogLevel guesses a level from message content. The second
// return is false when no indicator matched.
func DetectLogLevel(msg string) (flume.Level, bool) {
	msgLower := strings.ToLower(msg)

	if strings.Contains(msgLower, "error") ||
		strings.Contains(msgLower, "failed") ||
		strings.Contains(msgLower, "fatal") ||
		strings.Contains(msgLower, "panic") {
		return flume.LevelError, true
	}
	if strings.Contains(msgLower, "warn") ||
		strings.Contains(msgLower, "deprecated") {
		return flume.LevelWarning, true
	}
	if strings.Contains(msgLower, "debug") ||
		strings.Contains(msgLower, "trace") {
		return flume.LevelDebug, true
	}
	return flume.LevelInfo, false
}
