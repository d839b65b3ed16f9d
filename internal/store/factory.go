// SPDX-License-Identifier: MIT

package store

import "fmt"

// Open creates a Store based on the backend configuration.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "memory":
		return NewMemoryStore(), nil
	case "badger", "":
		return OpenBadgerStore(path)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", backend)
	}
}
