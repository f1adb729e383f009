package flume

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/lixenwraith/config"
)

// Config describes a full pipeline assembly: engine tuning plus the
// sinks the bootstrap package should attach. The engine itself only
// consumes Level and BatchSize; the remaining fields drive composition.
type Config struct {
	// Engine
	Level     string `toml:"level"`
	BatchSize int64  `toml:"batch_size"`

	// Console sink
	EnableConsole bool   `toml:"enable_console"`
	ConsoleTarget string `toml:"console_target"` // "stdout" or "stderr"

	// Worker-backed rotating file sink
	EnableFile    bool   `toml:"enable_file"`
	Directory     string `toml:"directory"`
	FilePrefix    string `toml:"file_prefix"`
	MaxFileSizeKB int64  `toml:"max_file_size_kb"`
	MaxFileCount  int64  `toml:"max_file_count"`
	Compress      bool   `toml:"compress"`

	// Redaction stage wrapped around the file sink
	EnableRedaction   bool   `toml:"enable_redaction"`
	RedactionFallback string `toml:"redaction_fallback"` // "plaintext", "marker", or "mask"
	Passphrase        string `toml:"passphrase"`

	// Internal error handling
	InternalErrorsToStderr bool `toml:"internal_errors_to_stderr"`
}

// defaultConfig is the single source for all configurable default values
var defaultConfig = Config{
	Level:     "info",
	BatchSize: defaultBatchSize,

	EnableConsole: true,
	ConsoleTarget: "stdout",

	EnableFile:    false,
	Directory:     "./logs",
	FilePrefix:    "app",
	MaxFileSizeKB: 10_000,
	MaxFileCount:  5,
	Compress:      false,

	EnableRedaction:   false,
	RedactionFallback: "marker",
	Passphrase:        "",

	InternalErrorsToStderr: false,
}

// DefaultConfig returns a copy of the default configuration.
func DefaultConfig() *Config {
	copied := defaultConfig
	return &copied
}

// NewConfigFromFile loads configuration from a TOML file and returns a
// validated Config. Missing file falls back to defaults.
func NewConfigFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	loader := config.New()
	if err := loader.RegisterStruct("flume.", *cfg); err != nil {
		return nil, fmt.Errorf("failed to register config struct: %w", err)
	}
	if err := loader.Load(path, nil); err != nil && !errors.Is(err, config.ErrConfigNotFound) {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	if err := extractConfig(loader, "flume.", cfg); err != nil {
		return nil, fmt.Errorf("failed to extract config values: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// extractConfig copies loader values into cfg, field by toml tag.
func extractConfig(loader *config.Config, prefix string, cfg *Config) error {
	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tomlTag := field.Tag.Get("toml")
		if tomlTag == "" {
			continue
		}
		val, found := loader.Get(prefix + tomlTag)
		if !found {
			continue
		}
		if err := setFieldValue(v.Field(i), val); err != nil {
			return fmt.Errorf("failed to set field %s: %w", field.Name, err)
		}
	}
	return nil
}

// setFieldValue sets a reflect.Value with type conversion for the field
// kinds Config uses.
func setFieldValue(field reflect.Value, value any) error {
	switch field.Kind() {
	case reflect.String:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
		field.SetString(s)
	case reflect.Int64:
		switch v := value.(type) {
		case int64:
			field.SetInt(v)
		case int:
			field.SetInt(int64(v))
		default:
			return fmt.Errorf("expected int64, got %T", value)
		}
	case reflect.Bool:
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", value)
		}
		field.SetBool(b)
	default:
		return fmt.Errorf("unsupported field type: %v", field.Kind())
	}
	return nil
}

// Validate checks the configuration for construction-time invariant
// violations. These are the only errors allowed to surface
// synchronously from pipeline assembly.
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.Level); err != nil {
		return err
	}
	if c.BatchSize <= 0 {
		return fmtErrorf("batch_size must be positive: %d", c.BatchSize)
	}
	if c.ConsoleTarget != "stdout" && c.ConsoleTarget != "stderr" {
		return fmtErrorf("invalid console_target: '%s' (use stdout or stderr)", c.ConsoleTarget)
	}
	if c.EnableFile {
		if strings.TrimSpace(c.FilePrefix) == "" {
			return fmtErrorf("file_prefix cannot be empty")
		}
		if c.MaxFileSizeKB <= 0 {
			return fmtErrorf("max_file_size_kb must be positive: %d", c.MaxFileSizeKB)
		}
		if c.MaxFileCount <= 0 {
			return fmtErrorf("max_file_count must be positive: %d", c.MaxFileCount)
		}
	}
	switch c.RedactionFallback {
	case "plaintext", "marker", "mask":
	default:
		return fmtErrorf("invalid redaction_fallback: '%s' (use plaintext, marker, or mask)", c.RedactionFallback)
	}
	if c.EnableRedaction && strings.TrimSpace(c.Passphrase) == "" {
		return fmtErrorf("passphrase cannot be empty when redaction is enabled")
	}
	return nil
}

// Clone creates a copy of the configuration.
func (c *Config) Clone() *Config {
	copied := *c
	return &copied
}
