// Package blob provides the filesystem-backed blob store.
//
// Blobs are addressed by relative keys (e.g. "a1b2.mp4",
// "output/a1b2.json"). The store returns relative keys from writes and
// absolute paths from reads; the job table only ever stores relative keys.
package blob

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rogermt/forgesyte-sub004/errors"
)

// Store writes and resolves blobs under a single base directory.
type Store struct {
	baseDir string
}

// NewStore creates a blob store rooted at baseDir.
// baseDir is resolved to an absolute path; creation of the directory
// itself is the caller's startup responsibility, parents of individual
// keys are created on Put.
func NewStore(baseDir string) (*Store, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve blob base dir %s", baseDir)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create blob base dir %s", abs)
	}
	return &Store{baseDir: abs}, nil
}

// BaseDir returns the absolute base directory of the store.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// ValidateKey rejects keys that are empty, absolute, or traverse upward.
func ValidateKey(relKey string) error {
	if relKey == "" {
		return errors.Wrap(errors.ErrBadKey, "empty key")
	}
	if filepath.IsAbs(relKey) || strings.HasPrefix(relKey, "/") {
		return errors.Wrapf(errors.ErrBadKey, "key must be relative: %s", relKey)
	}
	for _, part := range strings.Split(filepath.ToSlash(relKey), "/") {
		if part == ".." {
			return errors.Wrapf(errors.ErrBadKey, "key must not traverse upward: %s", relKey)
		}
	}
	return nil
}

// Put writes the bytes from src to baseDir/relKey, creating parent
// directories as needed, and returns the relative key it was given.
// Returning the input key (never an absolute path) is load-bearing:
// callers persist the return value directly, and a store that returned
// anything else would reintroduce double-prefix bugs.
func (s *Store) Put(src io.Reader, relKey string) (string, error) {
	if err := ValidateKey(relKey); err != nil {
		return "", err
	}

	destPath := filepath.Join(s.baseDir, filepath.FromSlash(relKey))
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create parent dir for %s", relKey)
	}

	dest, err := os.Create(destPath)
	if err != nil {
		return "", errors.Wrapf(err, "failed to create blob %s", relKey)
	}

	if _, err := io.Copy(dest, src); err != nil {
		dest.Close()
		os.Remove(destPath)
		return "", errors.Wrapf(err, "failed to write blob %s", relKey)
	}
	if err := dest.Close(); err != nil {
		os.Remove(destPath)
		return "", errors.Wrapf(err, "failed to close blob %s", relKey)
	}

	return relKey, nil
}

// Open returns the absolute filesystem path for relKey.
// Existence is not checked; readers handle not-found themselves.
func (s *Store) Open(relKey string) (string, error) {
	if err := ValidateKey(relKey); err != nil {
		return "", err
	}
	return filepath.Join(s.baseDir, filepath.FromSlash(relKey)), nil
}

// Delete removes the blob at relKey. A missing blob is not an error.
func (s *Store) Delete(relKey string) error {
	if err := ValidateKey(relKey); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.baseDir, filepath.FromSlash(relKey)))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to delete blob %s", relKey)
	}
	return nil
}
