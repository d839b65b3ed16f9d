// SPDX-License-Identifier: MIT

package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
)

// FSStore is a filesystem-backed ObjectStore. Writes are atomic: the blob is
// staged in a temp file and renamed into place, so readers never observe a
// partial object.
type FSStore struct {
	root    string
	baseURL string
}

// NewFSStore creates a store rooted at dir, serving objects under baseURL.
func NewFSStore(dir, baseURL string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &FSStore{root: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *FSStore) Put(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	clean := path.Clean("/" + key)
	if strings.Contains(clean, "..") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	dst := filepath.Join(s.root, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return "", err
	}

	t, err := renameio.TempFile("", dst)
	if err != nil {
		return "", fmt.Errorf("stage object: %w", err)
	}
	defer func() { _ = t.Cleanup() }()

	if _, err := io.Copy(t, r); err != nil {
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return "", fmt.Errorf("commit object: %w", err)
	}
	return s.baseURL + clean, nil
}
