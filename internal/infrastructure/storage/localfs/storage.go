// Package localfs stores uploaded documents on the local filesystem.
// Files are laid out as <root>/<owner_id>/<object_id> with restrictive
// permissions since the content is personal health data.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/medivault/health-record-vault/internal/core/domain"
)

type Storage struct {
	root string
}

func New(root string) (*Storage, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("localfs: storage root is required")
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("localfs: create root: %w", err)
	}
	return &Storage{root: root}, nil
}

// Save writes body under the owner's directory and returns the storage
// path relative to the root.
func (s *Storage) Save(ctx context.Context, ownerID, objectID string, body io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	rel := filepath.Join(ownerID, objectID)
	abs, err := s.resolve(rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o700); err != nil {
		return "", fmt.Errorf("localfs: create owner directory: %w", err)
	}

	file, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("localfs: create object: %w", err)
	}
	if _, err := io.Copy(file, body); err != nil {
		file.Close()
		os.Remove(abs)
		return "", fmt.Errorf("localfs: write object: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("localfs: close object: %w", err)
	}
	return rel, nil
}

func (s *Storage) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	abs, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(abs)
	if errors.Is(err, os.ErrNotExist) {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "open object", err)
	}
	if err != nil {
		return nil, fmt.Errorf("localfs: open object: %w", err)
	}
	return file, nil
}

func (s *Storage) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	abs, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("localfs: delete object: %w", err)
	}
	return nil
}

// resolve joins path onto the root and rejects traversal outside it.
func (s *Storage) resolve(path string) (string, error) {
	abs := filepath.Join(s.root, filepath.Clean("/"+path))
	if !strings.HasPrefix(abs, filepath.Clean(s.root)+string(os.PathSeparator)) {
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve object path",
			fmt.Errorf("path %q escapes storage root", path))
	}
	return abs, nil
}
