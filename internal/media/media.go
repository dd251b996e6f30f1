// Package media keeps local copies of attached files, addressed by content
// hash. The returned ref is the client-local handle carried by image
// messages; uploading media to the server is a collaborator concern.
package media

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Store is the media surface the dispatcher needs.
type Store interface {
	// Save stores the content and returns its ref. Idempotent: saving the
	// same bytes twice returns the same ref.
	Save(r io.Reader) (string, error)

	// Get retrieves the content for a previously returned ref.
	Get(ref string) (io.ReadCloser, error)
}

// LocalStore implements Store on the local filesystem.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) getPath(ref string) string {
	if len(ref) < 2 {
		return filepath.Join(s.root, ref)
	}
	return filepath.Join(s.root, ref[:2], ref)
}

func (s *LocalStore) Save(r io.Reader) (string, error) {
	var buf bytes.Buffer
	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(&buf, hasher), r); err != nil {
		return "", fmt.Errorf("failed to read content: %w", err)
	}
	ref := hex.EncodeToString(hasher.Sum(nil))

	path := s.getPath(ref)
	if _, err := os.Stat(path); err == nil {
		return ref, nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	// Write to a temporary file first, then rename atomically.
	tmp, err := os.CreateTemp(dir, "media-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		return "", fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to rename file: %w", err)
	}

	return ref, nil
}

func (s *LocalStore) Get(ref string) (io.ReadCloser, error) {
	f, err := os.Open(s.getPath(ref))
	if err != nil {
		return nil, fmt.Errorf("failed to open media %s: %w", ref, err)
	}
	return f, nil
}
