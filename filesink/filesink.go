// Package filesink implements the size- and count-bounded rotating file
// writer consumed by the worker protocol. Records are appended to
// `<prefix>_log<index>.log` in the configured directory; when the
// current file reaches the size limit it is flushed, closed, and a new
// file with an incremented index is opened, pruning the oldest archived
// files beyond the configured count.
package filesink

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	flume "github.com/corvalt/flume"
)

// Config describes one rotating file sink.
type Config struct {
	Prefix       string // base name for log files, must be non-empty
	Directory    string
	MaxSizeBytes int64 // rotation threshold, must be positive
	MaxFiles     int   // archived files retained past the active one, must be positive
	MinLevel     flume.Level
	Compress     bool // gzip archived files on rotation
}

// Validate rejects construction-time misconfiguration synchronously.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Prefix) == "" {
		return fmt.Errorf("filesink: prefix cannot be empty")
	}
	if c.Directory == "" {
		return fmt.Errorf("filesink: directory cannot be empty")
	}
	if c.MaxSizeBytes <= 0 {
		return fmt.Errorf("filesink: max size must be positive: %d", c.MaxSizeBytes)
	}
	if c.MaxFiles <= 0 {
		return fmt.Errorf("filesink: max file count must be positive: %d", c.MaxFiles)
	}
	return nil
}

// Sink is an append-only rotating writer. It is driven by the worker's
// single sequential processing loop and therefore does no locking of
// its own.
type Sink struct {
	cfg       Config
	formatter *Formatter
	file      *os.File
	size      int64
	index     int
}

// New validates the configuration, creates the directory if needed, and
// opens the highest-indexed existing file (or a fresh index 0 file).
func New(cfg Config) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Directory, 0755); err != nil {
		return nil, fmt.Errorf("filesink: failed to create directory '%s': %w", cfg.Directory, err)
	}

	s := &Sink{cfg: cfg, formatter: NewFormatter()}

	indices, err := s.scanIndices()
	if err != nil {
		return nil, err
	}
	if len(indices) > 0 {
		s.index = indices[len(indices)-1]
	}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

// Accepts implements flume.Sink.
func (s *Sink) Accepts(level flume.Level) bool {
	return level.AtLeast(s.cfg.MinLevel)
}

// Handle appends the formatted record to the current file, rotating
// first when the write would reach the size limit.
func (s *Sink) Handle(_ context.Context, rec flume.Record) error {
	data := s.formatter.Format(rec)
	if s.size+int64(len(data)) >= s.cfg.MaxSizeBytes {
		if err := s.rotate(); err != nil {
			return err
		}
	}
	n, err := s.file.Write(data)
	s.size += int64(n)
	if err != nil {
		return fmt.Errorf("filesink: write to '%s' failed: %w", s.file.Name(), err)
	}
	return nil
}

// Clean flushes and closes the current file.
func (s *Sink) Clean(_ context.Context) error {
	if s.file == nil {
		return nil
	}
	var finalErr error
	if err := s.file.Sync(); err != nil {
		finalErr = fmt.Errorf("filesink: sync failed: %w", err)
	}
	if err := s.file.Close(); err != nil {
		finalErr = fmt.Errorf("filesink: close failed: %w", err)
	}
	s.file = nil
	return finalErr
}

// CurrentIndex returns the index of the active file.
func (s *Sink) CurrentIndex() int {
	return s.index
}

func (s *Sink) path(index int) string {
	return filepath.Join(s.cfg.Directory, fmt.Sprintf("%s_log%d.log", s.cfg.Prefix, index))
}

func (s *Sink) open() error {
	file, err := os.OpenFile(s.path(s.index), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("filesink: failed to open '%s': %w", s.path(s.index), err)
	}
	s.file = file
	s.size = 0
	if fi, errStat := file.Stat(); errStat == nil {
		s.size = fi.Size()
	}
	return nil
}

// rotate flushes and closes the current file, opens the next index, and
// prunes archived files beyond MaxFiles.
func (s *Sink) rotate() error {
	if s.file != nil {
		_ = s.file.Sync()
		if err := s.file.Close(); err != nil {
			return fmt.Errorf("filesink: failed to close '%s' during rotation: %w", s.file.Name(), err)
		}
	}
	rotated := s.path(s.index)
	s.index++
	if err := s.open(); err != nil {
		return err
	}
	if s.cfg.Compress {
		if err := compressFile(rotated); err != nil {
			// Compression failure keeps the plain file; not fatal.
			fmt.Fprintf(os.Stderr, "filesink: %v\n", err)
		}
	}
	s.prune()
	return nil
}

// prune deletes the lowest-indexed archived files until at most
// MaxFiles remain, never touching the active file. Ordering uses the
// numeric index embedded in each filename, not modification time.
func (s *Sink) prune() {
	indices, err := s.scanIndices()
	if err != nil {
		return
	}
	var archived []int
	for _, idx := range indices {
		if idx != s.index {
			archived = append(archived, idx)
		}
	}
	excess := len(archived) - s.cfg.MaxFiles
	for i := 0; i < excess; i++ {
		p := s.path(archived[i])
		if err := os.Remove(p); err != nil {
			// A gzip'd archive has no plain file to remove.
			_ = err
		}
		_ = os.Remove(p + ".gz")
	}
}

var fileIndexPattern = regexp.MustCompile(`^(.+)_log(\d+)\.log(\.gz)?$`)

// scanIndices lists the indices of all files belonging to this sink,
// sorted ascending.
func (s *Sink) scanIndices() ([]int, error) {
	entries, err := os.ReadDir(s.cfg.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("filesink: failed to read directory '%s': %w", s.cfg.Directory, err)
	}
	seen := make(map[int]bool)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := fileIndexPattern.FindStringSubmatch(entry.Name())
		if m == nil || m[1] != s.cfg.Prefix {
			continue
		}
		idx, errConv := strconv.Atoi(m[2])
		if errConv != nil {
			continue
		}
		seen[idx] = true
	}
	indices := make([]int, 0, len(seen))
	for idx := range seen {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	return indices, nil
}

// compressFile gzips src to src.gz through a temp file and removes the
// original only after the rename succeeds, so a crash never leaves a
// truncated archive in place.
func compressFile(src string) error {
	source, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("filesink: compress open failed: %w", err)
	}
	defer source.Close()

	tempName := src + ".gz.tmp"
	target, err := os.Create(tempName)
	if err != nil {
		return fmt.Errorf("filesink: compress create failed: %w", err)
	}

	gz := gzip.NewWriter(target)
	if _, err := io.Copy(gz, source); err != nil {
		_ = target.Close()
		_ = os.Remove(tempName)
		return fmt.Errorf("filesink: compress copy failed: %w", err)
	}
	if err := gz.Close(); err != nil {
		_ = target.Close()
		_ = os.Remove(tempName)
		return fmt.Errorf("filesink: compress finalize failed: %w", err)
	}
	if err := target.Close(); err != nil {
		_ = os.Remove(tempName)
		return fmt.Errorf("filesink: compress close failed: %w", err)
	}
	if err := os.Rename(tempName, src+".gz"); err != nil {
		_ = os.Remove(tempName)
		return fmt.Errorf("filesink: compress rename failed: %w", err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("filesink: compress cleanup failed: %w", err)
	}
	return nil
}
