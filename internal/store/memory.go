// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and single-node dev runs.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[string]UserProfile
	apps      map[string]AppEntry
	installed map[string][]string
	tokens    map[string]tempToken
	audits    map[string]PhotoAudit
}

type tempToken struct {
	userID    string
	expiresAt time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]UserProfile),
		apps:      make(map[string]AppEntry),
		installed: make(map[string][]string),
		tokens:    make(map[string]tempToken),
		audits:    make(map[string]PhotoAudit),
	}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) GetUser(ctx context.Context, userID string) (*UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *MemoryStore) PutUser(ctx context.Context, profile *UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[profile.UserID] = *profile
	return nil
}

func (s *MemoryStore) GetApp(ctx context.Context, packageName string) (*AppEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.apps[packageName]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (s *MemoryStore) PutApp(ctx context.Context, entry *AppEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apps[entry.PackageName] = *entry
	return nil
}

func (s *MemoryStore) ListApps(ctx context.Context) ([]*AppEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*AppEntry, 0, len(s.apps))
	for _, e := range s.apps {
		entry := e
		out = append(out, &entry)
	}
	return out, nil
}

func (s *MemoryStore) InstalledApps(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.installed[userID]...), nil
}

func (s *MemoryStore) SetInstalledApps(ctx context.Context, userID string, packages []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.installed[userID] = append([]string(nil), packages...)
	return nil
}

func (s *MemoryStore) PutTempToken(ctx context.Context, token, userID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = tempToken{userID: userID, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) ResolveTempToken(ctx context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[token]
	if !ok {
		return "", ErrNotFound
	}
	if time.Now().After(t.expiresAt) {
		delete(s.tokens, token)
		return "", ErrNotFound
	}
	return t.userID, nil
}

func (s *MemoryStore) PutPhotoAudit(ctx context.Context, rec *PhotoAudit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits[rec.RequestID] = *rec
	return nil
}
