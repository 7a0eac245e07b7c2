package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/avfoundry/proxa/internal/verr"
)

// LocalStore keeps blobs on the host filesystem underneath a base
// directory. References are paths relative to that base.
type LocalStore struct {
	baseDir string
}

func NewLocalStore(baseDir string) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, os.ModeDir|os.ModePerm); err != nil {
		return nil, verr.Wrapf(verr.Configuration, err, "blob base dir '%s' could not be created", baseDir)
	}

	return &LocalStore{baseDir: baseDir}, nil
}

func (s *LocalStore) Put(_ context.Context, key string, r io.Reader) (string, error) {
	path := filepath.Join(s.baseDir, filepath.Clean(key))
	if err := os.MkdirAll(filepath.Dir(path), os.ModeDir|os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create blob dir for '%s': %w", key, err)
	}

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create blob file '%s': %w", path, err)
	}
	defer file.Close()

	if _, err := io.Copy(file, r); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write blob '%s': %w", key, err)
	}

	return key, nil
}

func (s *LocalStore) Remove(_ context.Context, ref string) error {
	err := os.Remove(filepath.Join(s.baseDir, filepath.Clean(ref)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove blob '%s': %w", ref, err)
	}

	return nil
}

func (s *LocalStore) URL(ref string) string {
	return filepath.Join(s.baseDir, filepath.Clean(ref))
}

func (s *LocalStore) URI(ref string) string {
	return s.URL(ref)
}
