package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kuitang/epic-notes/internal/obs"
)

const localBackend = "local"

// LocalStore keeps blobs in a directory tree on the local filesystem.
type LocalStore struct {
	root string
}

// NewLocalStore creates a store rooted at root, creating it if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("blob root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(abs, "tmp"), 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &LocalStore{root: abs}, nil
}

// Root returns the absolute root directory.
func (s *LocalStore) Root() string {
	return s.root
}

// Write stores data via a temp file and rename so readers never see a partial blob.
func (s *LocalStore) Write(ctx context.Context, data []byte, originalName, _ string) (ref string, err error) {
	defer func() {
		record(localBackend, "write", err)
		if err == nil {
			obs.BlobBytesWritten.WithLabelValues(localBackend).Add(float64(len(data)))
		}
	}()

	if len(data) == 0 {
		return "", fmt.Errorf("blob payload is empty")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ref, err = NewRef(originalName)
	if err != nil {
		return "", err
	}
	dst, err := s.pathFromRef(ref)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create blob directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Join(s.root, "tmp"), "put-*")
	if err != nil {
		return "", fmt.Errorf("create temp blob: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return "", fmt.Errorf("write blob %q: %w", ref, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return "", fmt.Errorf("sync blob %q: %w", ref, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", fmt.Errorf("close blob %q: %w", ref, err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		cleanup()
		return "", fmt.Errorf("commit blob %q: %w", ref, err)
	}
	return ref, nil
}

// Open reads the blob stored under ref.
func (s *LocalStore) Open(ctx context.Context, ref string) (data []byte, err error) {
	defer func() { record(localBackend, "open", err) }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.pathFromRef(ref)
	if err != nil {
		return nil, err
	}
	data, err = os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read blob %q: %w", ref, err)
	}
	return data, nil
}

// Delete removes the blob. Missing files are ignored.
func (s *LocalStore) Delete(ctx context.Context, ref string) (err error) {
	defer func() { record(localBackend, "delete", err) }()

	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.pathFromRef(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete blob %q: %w", ref, err)
	}
	return nil
}

func (s *LocalStore) pathFromRef(ref string) (string, error) {
	if err := validateRef(ref); err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(ref)), nil
}
