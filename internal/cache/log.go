package cache

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2"
)

// LogFileName is the append-only output log inside the output directory.
const LogFileName = "output.jsonl"

// Entry is one line of the output log.
type Entry struct {
	File       string         `json:"file"`
	Type       string         `json:"type"`
	PresetID   string         `json:"presetId"`
	Descriptor map[string]any `json:"descriptor,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// Store checks cached outputs and maintains the log. Outputs live directly in
// the output directory as <hash>.mp4.
type Store struct {
	outputDir string
	logger    *slog.Logger

	mu sync.Mutex // serializes log appends
}

// NewStore creates a store over outputDir, creating it if needed.
func NewStore(outputDir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(outputDir)
	if err != nil {
		return nil, fmt.Errorf("resolving output dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0750); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	return &Store{outputDir: abs, logger: logger}, nil
}

// OutputDir returns the absolute output directory.
func (s *Store) OutputDir() string {
	return s.outputDir
}

// OutputPath returns the canonical output path for baseName.
func (s *Store) OutputPath(baseName string) string {
	return filepath.Join(s.outputDir, baseName+".mp4")
}

// Lookup reports whether the output named by hash exists, and its path.
func (s *Store) Lookup(hash string) (string, bool) {
	path := s.OutputPath(hash)
	if _, err := os.Stat(path); err != nil {
		return path, false
	}
	return path, true
}

// Append records one produced output in the log.
func (s *Store) Append(entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling log entry: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.logPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return fmt.Errorf("opening output log: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("appending to output log: %w", err)
	}
	return f.Close()
}

// Reconcile reads the log, drops entries whose files no longer exist and
// lines that fail to parse, and rewrites the log atomically. A missing log is
// not an error.
func (s *Store) Reconcile() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.logPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading output log: %w", err)
	}

	var kept bytes.Buffer
	var dropped int

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			dropped++
			s.logger.Warn("dropping malformed output log line", slog.String("error", err.Error()))
			continue
		}

		if _, err := os.Stat(filepath.Join(s.outputDir, entry.File)); err != nil {
			dropped++
			s.logger.Warn("dropping output log entry for missing file", slog.String("file", entry.File))
			continue
		}

		kept.Write(line)
		kept.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanning output log: %w", err)
	}

	if dropped == 0 {
		return nil
	}

	if err := renameio.WriteFile(s.logPath(), kept.Bytes(), 0640); err != nil {
		return fmt.Errorf("rewriting output log: %w", err)
	}

	s.logger.Info("reconciled output log", slog.Int("dropped", dropped))
	return nil
}

// Entries returns the parsed log entries in file order. Malformed lines are
// skipped.
func (s *Store) Entries() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.logPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading output log: %w", err)
	}

	var entries []Entry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, scanner.Err()
}

func (s *Store) logPath() string {
	return filepath.Join(s.outputDir, LogFileName)
}
