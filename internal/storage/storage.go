// SPDX-License-Identifier: MIT

// Package storage defines the object-storage collaborator used for captured
// media. The core only needs Put-and-get-a-URL semantics.
package storage

import (
	"context"
	"io"
)

// ObjectStore stores opaque media blobs and returns a public URL.
type ObjectStore interface {
	// Put stores the object under key and returns its public URL.
	Put(ctx context.Context, key, contentType string, r io.Reader) (string, error)
}
