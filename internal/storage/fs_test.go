// SPDX-License-Identifier: MIT

package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStorePutAndURL(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFSStore(dir, "https://cdn.example.com/media/")
	require.NoError(t, err)

	url, err := s.Put(ctx, "photos/u1/req-1.jpg", "image/jpeg", strings.NewReader("jpegbytes"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/media/photos/u1/req-1.jpg", url)

	data, err := os.ReadFile(filepath.Join(dir, "photos", "u1", "req-1.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpegbytes", string(data))
}

func TestFSStoreOverwriteIsAtomicReplace(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFSStore(dir, "/media")
	require.NoError(t, err)

	_, err = s.Put(ctx, "photos/u1/a.jpg", "image/jpeg", strings.NewReader("one"))
	require.NoError(t, err)
	_, err = s.Put(ctx, "photos/u1/a.jpg", "image/jpeg", strings.NewReader("two"))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "photos", "u1", "a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

func TestFSStoreConfinesTraversalKeys(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFSStore(dir, "/media")
	require.NoError(t, err)

	// Dot-dot segments collapse against the virtual root instead of
	// escaping the media directory.
	url, err := s.Put(ctx, "../../etc/passwd", "text/plain", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "/media/etc/passwd", url)

	_, statErr := os.Stat(filepath.Join(dir, "etc", "passwd"))
	assert.NoError(t, statErr)
	_, statErr = os.Stat(filepath.Join(filepath.Dir(dir), "etc"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestMemStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore("/media")

	url, err := s.Put(ctx, "photos/u1/r.jpg", "image/jpeg", strings.NewReader("blob"))
	require.NoError(t, err)
	assert.Equal(t, "/media/photos/u1/r.jpg", url)

	got, ok := s.Get("photos/u1/r.jpg")
	require.True(t, ok)
	assert.Equal(t, []byte("blob"), got)
}
