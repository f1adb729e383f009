// Package worker offloads rotating-file I/O to a separate execution
// unit behind a message-passing boundary. The engine side exposes a
// flume.Sink; the worker side is an actor owning the real file sink.
// The two halves share no memory and communicate over exactly two
// unidirectional channels: a command channel (engine to worker) and a
// lifecycle channel (worker to engine).
package worker

import (
	flume "github.com/corvalt/flume"
	"github.com/corvalt/flume/filesink"
)

// command is the payload type of the engine-to-worker channel.
type command interface{ isCommand() }

// configureCmd carries the sink settings and level filter. It is always
// the first command the worker processes.
type configureCmd struct {
	sink filesink.Config
}

// recordCmd submits one record for writing.
type recordCmd struct {
	rec flume.Record
}

// shutdownCmd asks the worker to clean its sink and acknowledge.
type shutdownCmd struct{}

func (configureCmd) isCommand() {}
func (recordCmd) isCommand()    {}
func (shutdownCmd) isCommand()  {}

// event is the payload type of the worker-to-engine channel.
type event interface{ isEvent() }

// announceEvent is the initialization handshake: the worker publishes
// its inbound command channel.
type announceEvent struct {
	inbox chan command
}

// cleanedEvent acknowledges shutdown completion.
type cleanedEvent struct{}

// faultedEvent reports a non-fatal failure inside the worker loop,
// typically a file write error. The worker keeps running.
type faultedEvent struct {
	err error
}

// exitedEvent reports abnormal termination of the worker unit, carrying
// the opaque error and stack payload across the boundary.
type exitedEvent struct {
	err   error
	stack string
}

func (announceEvent) isEvent() {}
func (cleanedEvent) isEvent()  {}
func (faultedEvent) isEvent()  {}
func (exitedEvent) isEvent()   {}
