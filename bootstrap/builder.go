// Package bootstrap assembles complete logging pipelines from a
// flume.Config: the dispatch engine, console sink, the worker-backed
// rotating file sink, and optionally the redaction stage wrapped around
// the file sink. It is the composition root; the subsystem packages
// never import each other's constructors.
package bootstrap

import (
	"os"

	flume "github.com/corvalt/flume"
	"github.com/corvalt/flume/crypt"
	"github.com/corvalt/flume/filesink"
	"github.com/corvalt/flume/redact"
	"github.com/corvalt/flume/worker"
)

// Builder provides a fluent API over flume.Config.
// It accumulates errors for deferred handling at Build.
type Builder struct {
	cfg     *flume.Config
	matcher redact.Matcher
	err     error
}

// NewBuilder creates a builder seeded with default values.
func NewBuilder() *Builder {
	return &Builder{cfg: flume.DefaultConfig()}
}

// FromConfig creates a builder over a copy of an existing configuration.
func FromConfig(cfg *flume.Config) *Builder {
	return &Builder{cfg: cfg.Clone()}
}

// FromFile creates a builder from a TOML configuration file.
func FromFile(path string) *Builder {
	cfg, err := flume.NewConfigFromFile(path)
	if err != nil {
		return &Builder{cfg: flume.DefaultConfig(), err: err}
	}
	return &Builder{cfg: cfg}
}

// Level sets the minimum level for the console sink.
func (b *Builder) Level(level string) *Builder {
	b.cfg.Level = level
	return b
}

// BatchSize sets the engine dispatch batch size.
func (b *Builder) BatchSize(n int64) *Builder {
	b.cfg.BatchSize = n
	return b
}

// EnableConsole toggles the console sink.
func (b *Builder) EnableConsole(enable bool) *Builder {
	b.cfg.EnableConsole = enable
	return b
}

// ConsoleTarget selects "stdout" or "stderr".
func (b *Builder) ConsoleTarget(target string) *Builder {
	b.cfg.ConsoleTarget = target
	return b
}

// EnableFile toggles the worker-backed rotating file sink.
func (b *Builder) EnableFile(enable bool) *Builder {
	b.cfg.EnableFile = enable
	return b
}

// Directory sets the log directory.
func (b *Builder) Directory(dir string) *Builder {
	b.cfg.Directory = dir
	return b
}

// FilePrefix sets the rotating file name prefix.
func (b *Builder) FilePrefix(prefix string) *Builder {
	b.cfg.FilePrefix = prefix
	return b
}

// MaxFileSizeKB sets the rotation threshold in KB.
func (b *Builder) MaxFileSizeKB(size int64) *Builder {
	b.cfg.MaxFileSizeKB = size
	return b
}

// MaxFileSizeMB sets the rotation threshold in MB. Convenience.
func (b *Builder) MaxFileSizeMB(size int64) *Builder {
	b.cfg.MaxFileSizeKB = size * 1000
	return b
}

// MaxFileCount sets how many archived files to retain.
func (b *Builder) MaxFileCount(count int64) *Builder {
	b.cfg.MaxFileCount = count
	return b
}

// Compress gzips rotated files.
func (b *Builder) Compress(enable bool) *Builder {
	b.cfg.Compress = enable
	return b
}

// EnableRedaction wraps the file sink in the redaction stage.
func (b *Builder) EnableRedaction(enable bool) *Builder {
	b.cfg.EnableRedaction = enable
	return b
}

// RedactionFallback selects the per-span encryption failure policy.
func (b *Builder) RedactionFallback(policy string) *Builder {
	b.cfg.RedactionFallback = policy
	return b
}

// Passphrase sets the encryption passphrase for redaction.
func (b *Builder) Passphrase(passphrase string) *Builder {
	b.cfg.Passphrase = passphrase
	return b
}

// Matcher overrides the redaction matcher. Default is the stock
// credential, email, and phone matcher.
func (b *Builder) Matcher(m redact.Matcher) *Builder {
	b.matcher = m
	return b
}

// InternalErrorsToStderr toggles engine diagnostics.
func (b *Builder) InternalErrorsToStderr(enable bool) *Builder {
	b.cfg.InternalErrorsToStderr = enable
	return b
}

// Build validates the configuration and assembles the pipeline. The
// returned engine is live; records may be submitted immediately, even
// before the file worker's handshake completes.
func (b *Builder) Build() (*flume.Engine, error) {
	if b.err != nil {
		return nil, b.err
	}
	if err := b.cfg.Validate(); err != nil {
		return nil, err
	}

	minLevel, err := flume.ParseLevel(b.cfg.Level)
	if err != nil {
		return nil, err
	}

	engine := flume.NewEngine()
	engine.SetBatchSize(b.cfg.BatchSize)
	engine.SetDiagnostics(b.cfg.InternalErrorsToStderr)

	if b.cfg.EnableConsole {
		target := os.Stdout
		if b.cfg.ConsoleTarget == "stderr" {
			target = os.Stderr
		}
		engine.AddSink(flume.NewConsoleSink(target, minLevel))
	}

	if b.cfg.EnableFile {
		fileSink, err := b.buildFileSink(minLevel)
		if err != nil {
			return nil, err
		}
		engine.AddSink(fileSink)
	}

	return engine, nil
}

// buildFileSink starts the file worker and, when redaction is enabled,
// wraps it in the redaction stage.
func (b *Builder) buildFileSink(minLevel flume.Level) (flume.Sink, error) {
	w, err := worker.Start(worker.Config{
		File: filesink.Config{
			Prefix:       b.cfg.FilePrefix,
			Directory:    b.cfg.Directory,
			MaxSizeBytes: b.cfg.MaxFileSizeKB * 1000,
			MaxFiles:     int(b.cfg.MaxFileCount),
			MinLevel:     minLevel,
			Compress:     b.cfg.Compress,
		},
	})
	if err != nil {
		return nil, err
	}
	if !b.cfg.EnableRedaction {
		return w, nil
	}

	cipher, err := crypt.New(b.cfg.Passphrase)
	if err != nil {
		return nil, err
	}
	matcher := b.matcher
	if matcher == nil {
		matcher = redact.NewDefaultMatcher()
	}
	var fallback redact.Fallback
	switch b.cfg.RedactionFallback {
	case "mask":
		fallback = redact.FallbackMask
	case "plaintext":
		fallback = redact.FallbackPlaintext
	default:
		fallback = redact.FallbackMarker
	}
	return redact.NewStage(w, matcher, cipher, redact.WithFallback(fallback)), nil
}
