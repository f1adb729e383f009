// Package flume is an application logging pipeline. Callers emit
// leveled records through an Engine that batches and routes them to a
// dynamic set of sinks without blocking the caller and without losing
// or reordering records under concurrent load, sink churn, or shutdown.
//
// The root package holds the dispatch core: Level, Record, the Sink
// capability, and the Engine. Subpackages provide the moving parts a
// deployment composes around it: worker offloads file I/O to a separate
// execution unit behind a message protocol, redact rewrites sensitive
// spans of a message before delegating, filesink is the size- and
// count-bounded rotating file writer, crypt is the AES-GCM encryptor
// used by redact, and bootstrap assembles a full pipeline from a
// Config.
package flume
