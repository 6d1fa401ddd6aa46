package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Scratch is a directory for short-lived intermediate files such as provider
// downloads and synthesized masks. Files are named with a random uuid so
// concurrent jobs never collide.
type Scratch struct {
	dir string
}

// NewScratch creates dir if needed. An empty dir uses the OS temp directory.
func NewScratch(dir string) (*Scratch, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "maestro")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure scratch dir: %w", err)
	}
	return &Scratch{dir: dir}, nil
}

func (s *Scratch) Dir() string { return s.dir }

// WriteTemp stores data in a new scratch file and returns its path. ext may be
// given with or without the leading dot.
func (s *Scratch) WriteTemp(prefix, ext string, data []byte) (string, error) {
	if s == nil {
		return "", errors.New("storage: no scratch configured")
	}
	path := s.newPath(prefix, ext)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("storage: write scratch file: %w", err)
	}
	return path, nil
}

// Create opens a new scratch file for streaming writes.
func (s *Scratch) Create(prefix, ext string) (*os.File, error) {
	if s == nil {
		return nil, errors.New("storage: no scratch configured")
	}
	f, err := os.OpenFile(s.newPath(prefix, ext), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("storage: create scratch file: %w", err)
	}
	return f, nil
}

// Owns reports whether path lives inside the scratch directory.
func (s *Scratch) Owns(path string) bool {
	if s == nil || path == "" {
		return false
	}
	rel, err := filepath.Rel(s.dir, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..")
}

// Remove deletes path when it belongs to the scratch directory. Paths outside
// it are left alone so source media is never removed by accident.
func (s *Scratch) Remove(paths ...string) {
	for _, p := range paths {
		if s.Owns(p) {
			_ = os.Remove(p)
		}
	}
}

func (s *Scratch) newPath(prefix, ext string) string {
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" {
		ext = "bin"
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), "-")
	if prefix == "" {
		prefix = "tmp"
	}
	return filepath.Join(s.dir, fmt.Sprintf("%s-%s.%s", prefix, uuid.NewString(), ext))
}
