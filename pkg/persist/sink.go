package persist

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ErrSnapshotNotFound is returned by Sink.Load when no snapshot exists.
var ErrSnapshotNotFound = errors.New("persist: snapshot not found")

// Sink stores snapshots under string keys.
type Sink interface {
	Save(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
}

// FileSink stores snapshots as files in a directory.
type FileSink struct {
	dir string
}

// NewFileSink creates a FileSink, creating dir if needed.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &FileSink{dir: dir}, nil
}

// Dir returns the snapshot directory.
func (s *FileSink) Dir() string {
	return s.dir
}

// Save writes data to a temp file and renames it over the snapshot, so a
// reader never sees a partial write.
func (s *FileSink) Save(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

// Load reads a snapshot.
func (s *FileSink) Load(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrSnapshotNotFound
	}
	return data, err
}

// path resolves key inside dir and rejects keys that escape it.
func (s *FileSink) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if key == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.New("persist: invalid snapshot key " + `"` + key + `"`)
	}
	return filepath.Join(s.dir, clean), nil
}
