// SPDX-License-Identifier: MIT

// Package display implements the per-session display arbiter: the single
// writer to the glasses main view. It serialises competing TPA display
// requests through per-package throttle slots and bounded boot queues, and
// reports an outcome for every accepted request. All methods must be called
// from the session actor; scheduled ticks re-enter the actor through the
// Schedule hook.
package display

import (
	"fmt"
	"time"

	"github.com/openglass/cloudcore/internal/metrics"
	"github.com/openglass/cloudcore/internal/protocol"
)

// Hooks are the manager's only way out: writes to the glasses link, status
// notifications to TPA links, and timer scheduling. The session implements
// them; fire functions passed to Schedule run on the session actor.
type Hooks interface {
	EmitDisplay(ev protocol.DisplayEvent) error
	NotifyStatus(pkg, status, reason string)
	Schedule(d time.Duration, fire func()) (cancel func())
}

// Config carries the arbitration knobs.
type Config struct {
	Throttle      time.Duration // min interval between MAIN emissions per TPA
	BootDuration  time.Duration // boot window per started app
	BootQueueCap  int           // queued requests per app during boot, drop-oldest
	SystemPackage string        // the designated system dashboard package
}

// Active is the currently shown display request.
type Active struct {
	Request   protocol.DisplayRequest
	ShownAt   time.Time
	ExpiresAt time.Time // zero when the request has no duration
}

type throttleEntry struct {
	lastSend   time.Time
	pending    *protocol.DisplayRequest
	cancelTick func()
}

type bootEntry struct {
	startedAt time.Time
	cancel    func()
}

// Manager arbitrates the glasses display for one session.
type Manager struct {
	cfg   Config
	hooks Hooks

	current    *Active
	lastSentAt time.Time

	throttle   map[string]*throttleEntry
	boot       map[string]*bootEntry
	bootQueues map[string][]protocol.DisplayRequest

	// most recent request per view that failed to reach the transport
	undelivered map[protocol.View]protocol.DisplayRequest

	cancelExpiry func()

	now func() time.Time
}

// NewManager creates a display manager with the given hooks.
func NewManager(cfg Config, hooks Hooks) *Manager {
	return &Manager{
		cfg:         cfg,
		hooks:       hooks,
		throttle:    make(map[string]*throttleEntry),
		boot:        make(map[string]*bootEntry),
		bootQueues:  make(map[string][]protocol.DisplayRequest),
		undelivered: make(map[protocol.View]protocol.DisplayRequest),
		now:         time.Now,
	}
}

// Current returns the active display, or nil.
func (m *Manager) Current() *Active { return m.current }

// HandleRequest runs the arbitration algorithm for one display request.
func (m *Manager) HandleRequest(r protocol.DisplayRequest) {
	if err := r.Validate(); err != nil {
		m.reject(r.PackageName, err.Error())
		return
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = m.now()
	}

	if r.View == protocol.ViewDashboard {
		if r.PackageName != m.cfg.SystemPackage {
			m.reject(r.PackageName, "only the system dashboard package may write the dashboard view")
			return
		}
		m.emit(r)
		return
	}

	m.submitMain(r, false)
}

// submitMain runs steps 2a–2d. fromQueue suppresses the queued_boot
// notification when draining boot queues, so a request reports queued_boot
// at most once.
func (m *Manager) submitMain(r protocol.DisplayRequest, fromQueue bool) {
	pkg := r.PackageName

	// Critical requests skip boot queuing, whether the boot window belongs
	// to this package or another. The throttle still applies.
	if len(m.boot) > 0 && r.Priority != protocol.PriorityCritical {
		m.queueBoot(r, fromQueue)
		return
	}

	e := m.throttleFor(pkg)
	if since := m.now().Sub(e.lastSend); !e.lastSend.IsZero() && since < m.cfg.Throttle {
		// Newer wins per app: overwrite any prior pending.
		req := r
		e.pending = &req
		if e.cancelTick == nil {
			wait := m.cfg.Throttle - since
			e.cancelTick = m.hooks.Schedule(wait, func() { m.throttleTick(pkg) })
		}
		m.hooks.NotifyStatus(pkg, protocol.StatusThrottled, "")
		metrics.IncDisplayOutcome(protocol.StatusThrottled)
		return
	}

	m.emit(r)
}

func (m *Manager) queueBoot(r protocol.DisplayRequest, fromQueue bool) {
	pkg := r.PackageName
	q := append(m.bootQueues[pkg], r)
	if len(q) > m.cfg.BootQueueCap {
		q = q[len(q)-m.cfg.BootQueueCap:]
		metrics.BootQueueDrops.Inc()
	}
	m.bootQueues[pkg] = q
	if !fromQueue {
		m.hooks.NotifyStatus(pkg, protocol.StatusQueuedBoot, "")
		metrics.IncDisplayOutcome(protocol.StatusQueuedBoot)
	}
}

// emit writes a request to the glasses link and makes it the active display.
func (m *Manager) emit(r protocol.DisplayRequest) {
	now := m.now()
	ev := protocol.DisplayEvent{
		Type:        protocol.GlassesDisplayEvent,
		PackageName: r.PackageName,
		View:        r.View,
		Layout:      r.Layout,
		DurationMs:  r.DurationMs,
	}

	err := m.hooks.EmitDisplay(ev)

	active := &Active{Request: r, ShownAt: now}
	if r.Duration > 0 {
		active.ExpiresAt = now.Add(r.Duration)
	}
	m.current = active
	m.lastSentAt = now
	m.throttleFor(r.PackageName).lastSend = now

	if err != nil {
		// Keep only the most recent undelivered request per view for the
		// one-shot retry on reconnect.
		m.undelivered[r.View] = r
	} else {
		delete(m.undelivered, r.View)
	}

	if m.cancelExpiry != nil {
		m.cancelExpiry()
		m.cancelExpiry = nil
	}
	if r.Duration > 0 {
		req := r
		m.cancelExpiry = m.hooks.Schedule(r.Duration, func() { m.expireTick(req) })
	}

	m.hooks.NotifyStatus(r.PackageName, protocol.StatusDisplayed, "")
	metrics.IncDisplayOutcome(protocol.StatusDisplayed)
}

func (m *Manager) reject(pkg, reason string) {
	m.hooks.NotifyStatus(pkg, protocol.StatusRejected, reason)
	metrics.IncDisplayOutcome(protocol.StatusRejected)
}

func (m *Manager) throttleFor(pkg string) *throttleEntry {
	e, ok := m.throttle[pkg]
	if !ok {
		e = &throttleEntry{}
		m.throttle[pkg] = e
	}
	return e
}

// throttleTick fires when a package's throttle window elapses. A send by any
// other package never clears this package's pending.
func (m *Manager) throttleTick(pkg string) {
	e, ok := m.throttle[pkg]
	if !ok {
		return
	}
	e.cancelTick = nil
	if e.pending == nil {
		return
	}
	r := *e.pending
	e.pending = nil
	m.emit(r)
}

// expireTick clears the active display when its duration elapses, then
// promotes the highest-priority pending request whose package is outside
// its throttle window. Expired requests are never retried.
func (m *Manager) expireTick(r protocol.DisplayRequest) {
	m.cancelExpiry = nil
	if m.current == nil || !m.current.Request.Timestamp.Equal(r.Timestamp) ||
		m.current.Request.PackageName != r.PackageName {
		return
	}
	m.current = nil
	delete(m.undelivered, r.View)

	if next, pkg := m.bestPending(); next != nil {
		e := m.throttle[pkg]
		if !e.lastSend.IsZero() && m.now().Sub(e.lastSend) < m.cfg.Throttle {
			// Inside the package's throttle window. The armed throttle
			// tick delivers the pending; promoting now would put two of
			// its sends closer together than the minimum interval.
			return
		}
		e.pending = nil
		if e.cancelTick != nil {
			e.cancelTick()
			e.cancelTick = nil
		}
		m.emit(*next)
	}
}

// bestPending picks the pending request to promote: critical beats normal,
// then newest timestamp.
func (m *Manager) bestPending() (*protocol.DisplayRequest, string) {
	var best *protocol.DisplayRequest
	var bestPkg string
	for pkg, e := range m.throttle {
		if e.pending == nil {
			continue
		}
		if best == nil || better(*e.pending, *best) {
			best = e.pending
			bestPkg = pkg
		}
	}
	return best, bestPkg
}

func better(a, b protocol.DisplayRequest) bool {
	ac := a.Priority == protocol.PriorityCritical
	bc := b.Priority == protocol.PriorityCritical
	if ac != bc {
		return ac
	}
	return a.Timestamp.After(b.Timestamp)
}

// StartBoot opens a boot window for a freshly started app and shows the
// system boot card, bypassing throttle.
func (m *Manager) StartBoot(pkg, appName string) {
	if appName == "" {
		appName = pkg
	}
	if e, ok := m.boot[pkg]; ok {
		// Restart extends the window.
		e.cancel()
	}
	entry := &bootEntry{startedAt: m.now()}
	entry.cancel = m.hooks.Schedule(m.cfg.BootDuration, func() { m.endBoot(pkg) })
	m.boot[pkg] = entry

	card := protocol.DisplayRequest{
		PackageName: m.cfg.SystemPackage,
		View:        protocol.ViewMain,
		Layout:      protocol.ReferenceCard("Starting App", fmt.Sprintf("Starting %s", appName)),
		Timestamp:   m.now(),
	}
	m.emit(card)
}

// endBoot closes a boot window and drains queues: the booted package first,
// FIFO, then the queues other packages accumulated while it booted.
func (m *Manager) endBoot(pkg string) {
	if _, ok := m.boot[pkg]; !ok {
		return
	}
	delete(m.boot, pkg)

	m.drainQueue(pkg)
	if len(m.boot) == 0 {
		for other := range m.bootQueues {
			m.drainQueue(other)
		}
	}
}

func (m *Manager) drainQueue(pkg string) {
	q := m.bootQueues[pkg]
	delete(m.bootQueues, pkg)
	for _, r := range q {
		m.submitMain(r, true)
	}
}

// Booting reports whether pkg is inside its boot window.
func (m *Manager) Booting(pkg string) bool {
	_, ok := m.boot[pkg]
	return ok
}

// RemovePackage drops all arbitration state of a disconnected TPA.
func (m *Manager) RemovePackage(pkg string) {
	if e, ok := m.throttle[pkg]; ok {
		if e.cancelTick != nil {
			e.cancelTick()
		}
		delete(m.throttle, pkg)
	}
	if e, ok := m.boot[pkg]; ok {
		e.cancel()
		delete(m.boot, pkg)
	}
	delete(m.bootQueues, pkg)
}

// OnGlassesReconnect retries, once, the most recent undelivered request per
// view. Requests whose durations have expired are skipped.
func (m *Manager) OnGlassesReconnect() {
	now := m.now()
	for view, r := range m.undelivered {
		delete(m.undelivered, view)
		if r.Duration > 0 && m.current != nil &&
			m.current.Request.Timestamp.Equal(r.Timestamp) && now.After(m.current.ExpiresAt) {
			continue
		}
		ev := protocol.DisplayEvent{
			Type:        protocol.GlassesDisplayEvent,
			PackageName: r.PackageName,
			View:        r.View,
			Layout:      r.Layout,
			DurationMs:  r.DurationMs,
		}
		_ = m.hooks.EmitDisplay(ev)
	}
}

// Shutdown cancels all outstanding timers.
func (m *Manager) Shutdown() {
	for _, e := range m.throttle {
		if e.cancelTick != nil {
			e.cancelTick()
			e.cancelTick = nil
		}
	}
	for _, e := range m.boot {
		e.cancel()
	}
	if m.cancelExpiry != nil {
		m.cancelExpiry()
		m.cancelExpiry = nil
	}
}
