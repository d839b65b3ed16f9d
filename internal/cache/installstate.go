// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"time"

	"github.com/openglass/cloudcore/internal/store"
)

const installStateTTL = 30 * time.Second

// InstallState answers "does the user have this package installed" with a
// cached read-through to the persistent store. Sessions consult it to
// reject messages from TPAs the user has uninstalled mid-session.
type InstallState struct {
	cache Cache
	store store.Store
}

// NewInstallState wraps cache and store into a read-through view.
func NewInstallState(c Cache, s store.Store) *InstallState {
	return &InstallState{cache: c, store: s}
}

// Installed reports whether packageName is installed for userID. Store
// errors degrade to "installed" so a cache outage never kills live traffic.
func (i *InstallState) Installed(ctx context.Context, userID, packageName string) bool {
	pkgs, ok := i.cache.Get("install:" + userID)
	if !ok {
		var err error
		pkgs, err = i.store.InstalledApps(ctx, userID)
		if err != nil {
			return true
		}
		i.cache.Set("install:"+userID, pkgs, installStateTTL)
	}
	for _, p := range pkgs {
		if p == packageName {
			return true
		}
	}
	return false
}

// Invalidate drops the cached install list for the user, forcing the next
// lookup to hit the store.
func (i *InstallState) Invalidate(userID string) {
	i.cache.Delete("install:" + userID)
}
