package local

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
)

type Storage struct {
	name string
	base string
}

func New(name, basePath string) *Storage {
	return &Storage{name: name, base: basePath}
}

func (s *Storage) Name() string { return s.name }

func (s *Storage) BasePath() string { return s.base }

// Put writes data to a temp file and renames it into place, so a reader never
// sees a partial archive.
func (s *Storage) Put(_ context.Context, key, _ string, data []byte) (*Object, error) {
	if key == "" || !filepath.IsLocal(filepath.FromSlash(key)) {
		return nil, fmt.Errorf("invalid key %q", key)
	}
	finalPath, err := filepath.Abs(filepath.Join(s.base, filepath.FromSlash(key)))
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}

	tmpPath := finalPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("write temp: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("rename: %w", err)
	}
	return &Object{path: finalPath}, nil
}

// Object is a file written by Put.
type Object struct {
	path string
}

func (o *Object) Path() string { return o.path }

func (o *Object) URL() string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(o.path)}
	return u.String()
}

func (o *Object) Release(_ context.Context) error {
	if err := os.Remove(o.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", o.path, err)
	}
	return nil
}
