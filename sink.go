package flume

import (
	"context"
)

// Sink consumes records dispatched by the Engine. Implementations must
// be safe for use from the single drain goroutine; Handle may block on
// I/O or on a worker round trip.
type Sink interface {
	// Accepts reports whether the sink wants records at this level.
	Accepts(level Level) bool
	// Handle delivers one record. Errors are isolated per sink and
	// reported on the engine's failure broadcast, never fatal.
	Handle(ctx context.Context, rec Record) error
}

// Cleaner is implemented by sinks that hold resources needing an
// orderly release. Engine.Destroy invokes Clean on every registered
// sink that exposes it.
type Cleaner interface {
	Clean(ctx context.Context) error
}

// Failure describes one failed sink operation, delivered to error
// subscribers.
type Failure struct {
	Err     error
	Context string
}
