// Package state persists the migration offset across runs.
package state

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Store keeps a single integer in a text file: the 1-based sequence number
// of the next item to process. Writes go through a temp file plus rename,
// so a crash leaves either the old or the new value, never a torn one.
type Store struct {
	path   string
	logger *zap.Logger
}

// New creates a Store backed by the given file path.
func New(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{path: path, logger: logger}
}

// Load returns the persisted offset. A missing, unreadable or non-numeric
// file degrades to 1 (start from the beginning) rather than failing.
func (s *Store) Load() int {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("state file unreadable; starting from the beginning",
				zap.String("path", s.path), zap.Error(err))
		}
		return 1
	}
	raw := strings.TrimSpace(string(data))
	offset, err := strconv.Atoi(raw)
	if err != nil || offset < 1 {
		s.logger.Warn("state file holds no valid offset; starting from the beginning",
			zap.String("path", s.path), zap.String("content", raw))
		return 1
	}
	return offset
}

// Save atomically replaces the persisted offset.
func (s *Store) Save(offset int) error {
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.Itoa(offset)), 0o644); err != nil {
		return fmt.Errorf("write state temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
