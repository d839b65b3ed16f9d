// SPDX-License-Identifier: MIT

// Package session implements the per-user session actor and the
// process-wide registry that owns every live session. A session multiplexes
// one glasses link with many TPA links; all mutations of session state run
// on a single goroutine fed by an inbox.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openglass/cloudcore/internal/cache"
	"github.com/openglass/cloudcore/internal/config"
	"github.com/openglass/cloudcore/internal/metrics"
	"github.com/openglass/cloudcore/internal/protocol"
	"github.com/openglass/cloudcore/internal/store"
	"github.com/openglass/cloudcore/internal/stt"
	"github.com/openglass/cloudcore/internal/transport"
)

// Deps are the external collaborators a session consumes.
type Deps struct {
	Store        store.Store
	InstallState *cache.InstallState
	SttProvider  stt.Provider
}

// Registry is the process-wide mapping from user identity to live session.
// Reads are frequent and writes rare; a reader-writer lock keeps lookups
// cheap.
type Registry struct {
	cfg  config.AppConfig
	deps Deps

	mu      sync.RWMutex
	byUser  map[string]*UserSession
	byID    map[string]*UserSession
	closing bool
	wg      sync.WaitGroup
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg config.AppConfig, deps Deps) *Registry {
	if deps.SttProvider == nil {
		deps.SttProvider = stt.NoopProvider{}
	}
	return &Registry{
		cfg:    cfg,
		deps:   deps,
		byUser: make(map[string]*UserSession),
		byID:   make(map[string]*UserSession),
	}
}

// Find returns the live session for a user, or nil. Non-blocking read.
func (r *Registry) Find(userID string) *UserSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byUser[userID]
}

// findByID resolves a session id; it also accepts the sub-session form
// "{session-id}-{package}" that TPAs receive.
func (r *Registry) findByID(id string) *UserSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.byID[id]; ok {
		return s
	}
	// Session ids are 36-char uuids; a longer id with a separator is the
	// sub-session form.
	if len(id) > 37 && id[36] == '-' {
		return r.byID[id[:36]]
	}
	return nil
}

// ActiveCount reports the number of live sessions.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// AttachGlasses binds an authenticated glasses link to the user's session,
// re-attaching within the grace window or creating a fresh session.
func (r *Registry) AttachGlasses(ctx context.Context, userID string, link *transport.Link) (transport.GlassesSink, error) {
	installed, err := r.deps.Store.InstalledApps(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load installed apps: %w", err)
	}
	apps := r.appRefs(ctx, installed)

	r.mu.Lock()
	if r.closing {
		r.mu.Unlock()
		return nil, fmt.Errorf("registry shutting down")
	}
	s := r.byUser[userID]
	if s == nil {
		s = newUserSession(r, userID, uuid.NewString())
		r.byUser[userID] = s
		r.byID[s.ID] = s
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			s.run()
		}()
		metrics.SessionsActive.Set(float64(len(r.byUser)))
		metrics.IncSessionEvent("started")
	} else {
		metrics.IncSessionEvent("reconnected")
	}
	r.mu.Unlock()

	return s.attachGlasses(link, apps)
}

// AttachTpa binds an authenticated TPA link to the session it targets.
func (r *Registry) AttachTpa(ctx context.Context, userSessionID, packageName string, link *transport.Link) (transport.TpaSink, error) {
	s := r.findByID(userSessionID)
	if s == nil {
		return nil, fmt.Errorf("%w: session %s", protocol.ErrUnknownSession, userSessionID)
	}
	if !r.deps.InstallState.Installed(ctx, s.UserID, packageName) {
		return nil, fmt.Errorf("%w: package %s not installed for user", protocol.ErrUnknownSession, packageName)
	}
	entry, err := r.deps.Store.GetApp(ctx, packageName)
	if err != nil {
		return nil, fmt.Errorf("load app entry: %w", err)
	}
	return s.attachTpa(packageName, entry, link)
}

func (r *Registry) appRefs(ctx context.Context, packages []string) []protocol.AppRef {
	refs := make([]protocol.AppRef, 0, len(packages))
	for _, pkg := range packages {
		name := pkg
		if entry, err := r.deps.Store.GetApp(ctx, pkg); err == nil {
			name = entry.Name
		}
		refs = append(refs, protocol.AppRef{PackageName: pkg, Name: name})
	}
	return refs
}

// remove drops a destroyed session from the registry.
func (r *Registry) remove(s *UserSession) {
	r.mu.Lock()
	if r.byUser[s.UserID] == s {
		delete(r.byUser, s.UserID)
	}
	delete(r.byID, s.ID)
	metrics.SessionsActive.Set(float64(len(r.byUser)))
	r.mu.Unlock()
}

// Shutdown destroys every session and waits, bounded by ctx, for their
// actors to drain.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closing = true
	sessions := make([]*UserSession, 0, len(r.byUser))
	for _, s := range r.byUser {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.Destroy("shutdown")
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("session drain timeout: %w", ctx.Err())
	}
}

// graceWindow exposes the configured glasses grace for the session.
func (r *Registry) graceWindow() time.Duration { return r.cfg.GlassesGrace }
