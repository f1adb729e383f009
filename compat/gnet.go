package compat

import (
	"context"
	"fmt"
	"os"
	"time"

	flume "github.com/corvalt/flume"
)

// GnetAdapter wraps a flume.Engine to implement gnet's logging.Logger
// interface.
type GnetAdapter struct {
	engine       *flume.Engine
	fatalHandler func(msg string)
}

// GnetOption allows customizing adapter behavior.
type GnetOption func(*GnetAdapter)

// WithFatalHandler sets a custom fatal handler. The default exits the
// process, matching gnet expectations.
func WithFatalHandler(handler func(string)) GnetOption {
	return func(a *GnetAdapter) {
		a.fatalHandler = handler
	}
}

// NewGnetAdapter creates a gnet-compatible logger adapter.
func NewGnetAdapter(engine *flume.Engine, opts ...GnetOption) *GnetAdapter {
	adapter := &GnetAdapter{
		engine: engine,
		fatalHandler: func(msg string) {
			os.Exit(1)
		},
	}
	for _, opt := range opts {
		opt(adapter)
	}
	return adapter
}

// Debugf logs at debug level with printf-style formatting.
func (a *GnetAdapter) Debugf(format string, args ...any) {
	a.engine.Debug("[gnet] " + fmt.Sprintf(format, args...))
}

// Infof logs at info level with printf-style formatting.
func (a *GnetAdapter) Infof(format string, args ...any) {
	a.engine.Info("[gnet] " + fmt.Sprintf(format, args...))
}

// Warnf logs at warning level with printf-style formatting.
func (a *GnetAdapter) Warnf(format string, args ...any) {
	a.engine.Warning("[gnet] " + fmt.Sprintf(format, args...))
}

// Errorf logs at error level with printf-style formatting.
func (a *GnetAdapter) Errorf(format string, args ...any) {
	a.engine.Error("[gnet] " + fmt.Sprintf(format, args...))
}

// Fatalf logs a fatal error, destroys the engine so pending records
// reach their sinks, then invokes the fatal handler.
func (a *GnetAdapter) Fatalf(format string, args ...any) {
	msg := "[gnet] " + fmt.Sprintf(format, args...)
	a.engine.Error(msg, flume.WithError(msg), flume.AsFatal())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.engine.Destroy(ctx)

	if a.fatalHandler != nil {
		a.fatalHandler(msg)
	}
}
