// SPDX-License-Identifier: MIT

// Package subscription tracks which TPA wants which stream for one session
// and answers fan-out queries. The manager is mutated only from the session
// actor; reads from other tasks go through snapshot methods.
package subscription

import (
	"sort"
	"sync"

	"github.com/openglass/cloudcore/internal/metrics"
	"github.com/openglass/cloudcore/internal/protocol"
)

// Change describes the delta produced by one Set or Clear call.
type Change struct {
	PackageName string
	Added       []protocol.StreamKind
	Removed     []protocol.StreamKind

	// LanguagePairs is the post-change authoritative union of
	// transcription/translation kinds across all packages.
	LanguagePairs []protocol.StreamKind
	// AudioNeeded reports whether any package still consumes microphone
	// audio (audio_chunk, transcription, or translation).
	AudioNeeded bool
}

// Manager is the per-session subscription index.
type Manager struct {
	mu   sync.RWMutex
	subs map[string]map[string]protocol.StreamKind // pkg → canonical form → kind
}

// NewManager returns an empty subscription index.
func NewManager() *Manager {
	return &Manager{subs: make(map[string]map[string]protocol.StreamKind)}
}

// Set atomically replaces the full subscription set for one package and
// returns the delta.
func (m *Manager) Set(pkg string, kinds []protocol.StreamKind) Change {
	next := make(map[string]protocol.StreamKind, len(kinds))
	for _, k := range kinds {
		next[k.String()] = k
	}

	m.mu.Lock()
	prev := m.subs[pkg]
	m.subs[pkg] = next

	ch := Change{PackageName: pkg}
	for key, k := range next {
		if _, ok := prev[key]; !ok {
			ch.Added = append(ch.Added, k)
		}
	}
	for key, k := range prev {
		if _, ok := next[key]; !ok {
			ch.Removed = append(ch.Removed, k)
		}
	}
	ch.LanguagePairs = m.languagePairsLocked()
	ch.AudioNeeded = m.audioNeededLocked()
	m.mu.Unlock()

	metrics.SubscriptionChanges.Inc()
	return ch
}

// Clear removes every subscription of a package, typically on TPA
// disconnect, and returns the delta.
func (m *Manager) Clear(pkg string) Change {
	m.mu.Lock()
	prev := m.subs[pkg]
	delete(m.subs, pkg)

	ch := Change{PackageName: pkg}
	for _, k := range prev {
		ch.Removed = append(ch.Removed, k)
	}
	ch.LanguagePairs = m.languagePairsLocked()
	ch.AudioNeeded = m.audioNeededLocked()
	m.mu.Unlock()
	return ch
}

// Get returns the packages subscribed to exactly this stream kind, sorted
// for deterministic fan-out order.
func (m *Manager) Get(kind protocol.StreamKind) []string {
	key := kind.String()
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for pkg, kinds := range m.subs {
		if _, ok := kinds[key]; ok {
			out = append(out, pkg)
		}
	}
	sort.Strings(out)
	return out
}

// HasSubscribers reports whether any package wants this stream kind.
func (m *Manager) HasSubscribers(kind protocol.StreamKind) bool {
	key := kind.String()
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, kinds := range m.subs {
		if _, ok := kinds[key]; ok {
			return true
		}
	}
	return false
}

// Subscriptions returns the current set for one package.
func (m *Manager) Subscriptions(pkg string) []protocol.StreamKind {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]protocol.StreamKind, 0, len(m.subs[pkg]))
	for _, k := range m.subs[pkg] {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// AudioNeeded reports whether any package still consumes microphone audio.
func (m *Manager) AudioNeeded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.audioNeededLocked()
}

// LanguagePairs returns the authoritative union of transcription and
// translation kinds across all packages.
func (m *Manager) LanguagePairs() []protocol.StreamKind {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.languagePairsLocked()
}

func (m *Manager) languagePairsLocked() []protocol.StreamKind {
	seen := make(map[string]protocol.StreamKind)
	for _, kinds := range m.subs {
		for key, k := range kinds {
			if k.Kind == protocol.StreamTranscription || k.Kind == protocol.StreamTranslation {
				seen[key] = k
			}
		}
	}
	out := make([]protocol.StreamKind, 0, len(seen))
	for _, k := range seen {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func (m *Manager) audioNeededLocked() bool {
	for _, kinds := range m.subs {
		for _, k := range kinds {
			if k.RequiresAudio() {
				return true
			}
		}
	}
	return false
}
