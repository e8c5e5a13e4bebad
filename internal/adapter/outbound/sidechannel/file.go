package sidechannel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/chain-gate/chaingate/internal/port/outbound"
)

// sinkFilePattern matches sink filenames: sidechannel-YYYY-MM-DD.log or
// sidechannel-YYYY-MM-DD-N.log.
var sinkFilePattern = regexp.MustCompile(`^sidechannel-(\d{4}-\d{2}-\d{2})(?:-(\d+))?\.log$`)

// FileSinkConfig holds configuration for the file-based metadata sink.
type FileSinkConfig struct {
	// Dir is the directory where sink files are stored.
	Dir string
	// RetentionDays is the number of days to keep sink files (default 7).
	RetentionDays int
	// MaxFileSizeMB is the maximum file size in megabytes before rotation
	// (default 100).
	MaxFileSizeMB int
}

// FileSink writes metadata entries as JSON Lines with daily rotation,
// size caps, and retention cleanup.
type FileSink struct {
	dir           string
	maxFileSize   int64
	retentionDays int

	mu            sync.Mutex
	currentFile   *os.File
	currentDate   string
	currentSize   int64
	currentSuffix int
	closed        bool

	cancel context.CancelFunc
	logger *slog.Logger
}

// Compile-time check that FileSink implements MetadataSink.
var _ outbound.MetadataSink = (*FileSink)(nil)

// NewFileSink creates a file sink. It creates the directory if needed,
// opens today's file, runs retention cleanup, and starts the hourly
// cleanup goroutine.
func NewFileSink(cfg FileSinkConfig, logger *slog.Logger) (*FileSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 7
	}
	if cfg.MaxFileSizeMB <= 0 {
		cfg.MaxFileSizeMB = 100
	}

	if err := os.MkdirAll(cfg.Dir, 0700); err != nil {
		return nil, fmt.Errorf("create sink directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &FileSink{
		dir:           cfg.Dir,
		maxFileSize:   int64(cfg.MaxFileSizeMB) * 1024 * 1024,
		retentionDays: cfg.RetentionDays,
		cancel:        cancel,
		logger:        logger,
	}

	today := time.Now().UTC().Format("2006-01-02")
	if err := s.openCurrentFile(today); err != nil {
		cancel()
		return nil, fmt.Errorf("open sink file: %w", err)
	}

	s.runCleanup()
	go s.cleanupLoop(ctx)

	return s, nil
}

// Record implements MetadataSink, appending one JSON line and rotating by
// date or size as needed.
func (s *FileSink) Record(_ context.Context, entry outbound.MetadataEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("sink is closed")
	}

	dateStr := entry.Timestamp.UTC().Format("2006-01-02")
	if dateStr != s.currentDate {
		if err := s.rotateDateLocked(dateStr); err != nil {
			return fmt.Errorf("date rotation: %w", err)
		}
	}
	if s.currentSize >= s.maxFileSize {
		if err := s.rotateSizeLocked(); err != nil {
			return fmt.Errorf("size rotation: %w", err)
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal sink entry: %w", err)
	}
	n, err := s.currentFile.Write(append(data, '\n'))
	if err != nil {
		return fmt.Errorf("write sink entry: %w", err)
	}
	s.currentSize += int64(n)
	return nil
}

// Healthy reports whether the sink can accept records.
func (s *FileSink) Healthy() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("sink is closed")
	}
	if s.currentFile == nil {
		return fmt.Errorf("no open sink file")
	}
	return nil
}

// Close syncs and closes the current file and stops the cleanup goroutine.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()

	if s.currentFile != nil {
		_ = s.currentFile.Sync()
		err := s.currentFile.Close()
		s.currentFile = nil
		return err
	}
	return nil
}

func (s *FileSink) openCurrentFile(dateStr string) error {
	suffix := s.findHighestSuffix(dateStr)
	f, size, err := s.openFile(dateStr, suffix)
	if err != nil {
		return err
	}
	s.currentFile = f
	s.currentDate = dateStr
	s.currentSize = size
	s.currentSuffix = suffix
	return nil
}

func (s *FileSink) findHighestSuffix(dateStr string) int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0
	}
	highest := 0
	for _, e := range entries {
		date, suffix, ok := parseSinkFilename(e.Name())
		if !ok || date != dateStr {
			continue
		}
		if suffix > highest {
			highest = suffix
		}
	}
	return highest
}

func (s *FileSink) openFile(dateStr string, suffix int) (*os.File, int64, error) {
	path := filepath.Join(s.dir, buildSinkFilename(dateStr, suffix))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, 0, fmt.Errorf("open file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("stat file: %w", err)
	}
	return f, info.Size(), nil
}

// rotateDateLocked switches to a new day's file. Must hold s.mu.
func (s *FileSink) rotateDateLocked(dateStr string) error {
	if s.currentFile != nil {
		_ = s.currentFile.Sync()
		_ = s.currentFile.Close()
		s.currentFile = nil
	}
	s.currentSuffix = 0
	return s.openCurrentFile(dateStr)
}

// rotateSizeLocked opens the next suffix for the current day. Must hold s.mu.
func (s *FileSink) rotateSizeLocked() error {
	if s.currentFile != nil {
		_ = s.currentFile.Sync()
		_ = s.currentFile.Close()
		s.currentFile = nil
	}
	suffix := s.currentSuffix + 1
	f, size, err := s.openFile(s.currentDate, suffix)
	if err != nil {
		return err
	}
	s.currentFile = f
	s.currentSize = size
	s.currentSuffix = suffix
	return nil
}

func (s *FileSink) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCleanup()
		}
	}
}

// runCleanup deletes sink files older than the retention window.
func (s *FileSink) runCleanup() {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays).Format("2006-01-02")
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn("sink retention scan failed", "error", err)
		return
	}
	for _, e := range entries {
		date, _, ok := parseSinkFilename(e.Name())
		if !ok || date >= cutoff {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			s.logger.Warn("sink retention delete failed", "file", e.Name(), "error", err)
		} else {
			s.logger.Debug("deleted expired sink file", "file", e.Name())
		}
	}
}

func parseSinkFilename(name string) (date string, suffix int, ok bool) {
	matches := sinkFilePattern.FindStringSubmatch(name)
	if matches == nil {
		return "", 0, false
	}
	if matches[2] != "" {
		n, err := strconv.Atoi(matches[2])
		if err != nil {
			return "", 0, false
		}
		suffix = n
	}
	return matches[1], suffix, true
}

func buildSinkFilename(dateStr string, suffix int) string {
	if suffix == 0 {
		return fmt.Sprintf("sidechannel-%s.log", dateStr)
	}
	return fmt.Sprintf("sidechannel-%s-%d.log", dateStr, suffix)
}
