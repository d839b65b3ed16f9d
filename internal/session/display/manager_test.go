// SPDX-License-Identifier: MIT

package display

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openglass/cloudcore/internal/protocol"
)

type statusRec struct {
	pkg    string
	status string
	reason string
}

type fakeTimer struct {
	d       time.Duration
	fire    func()
	stopped bool
	fired   bool
}

// fakeHooks captures emissions and statuses and holds timers for manual
// firing, so tests control the clock entirely.
type fakeHooks struct {
	emits    []protocol.DisplayEvent
	emitErr  error
	statuses []statusRec
	timers   []*fakeTimer
}

func (h *fakeHooks) EmitDisplay(ev protocol.DisplayEvent) error {
	h.emits = append(h.emits, ev)
	return h.emitErr
}

func (h *fakeHooks) NotifyStatus(pkg, status, reason string) {
	h.statuses = append(h.statuses, statusRec{pkg, status, reason})
}

func (h *fakeHooks) Schedule(d time.Duration, fire func()) func() {
	t := &fakeTimer{d: d, fire: fire}
	h.timers = append(h.timers, t)
	return func() { t.stopped = true }
}

// fireNext fires the oldest pending timer.
func (h *fakeHooks) fireNext(t *testing.T) {
	t.Helper()
	for _, tm := range h.timers {
		if !tm.stopped && !tm.fired {
			tm.fired = true
			tm.fire()
			return
		}
	}
	t.Fatal("no pending timer")
}

func (h *fakeHooks) pendingTimers() int {
	n := 0
	for _, tm := range h.timers {
		if !tm.stopped && !tm.fired {
			n++
		}
	}
	return n
}

func (h *fakeHooks) lastStatus() statusRec {
	return h.statuses[len(h.statuses)-1]
}

func newTestManager(t *testing.T) (*Manager, *fakeHooks, *time.Time) {
	t.Helper()
	h := &fakeHooks{}
	m := NewManager(Config{
		Throttle:      300 * time.Millisecond,
		BootDuration:  1500 * time.Millisecond,
		BootQueueCap:  4,
		SystemPackage: "system",
	}, h)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	return m, h, &now
}

func mainReq(pkg, text string, ts time.Time) protocol.DisplayRequest {
	return protocol.DisplayRequest{
		PackageName: pkg,
		View:        protocol.ViewMain,
		Layout:      protocol.TextWall(text),
		Timestamp:   ts,
	}
}

func TestHandleRequestRejectsInvalid(t *testing.T) {
	m, h, _ := newTestManager(t)

	m.HandleRequest(protocol.DisplayRequest{PackageName: "app", View: "SIDE"})

	require.Len(t, h.statuses, 1)
	assert.Equal(t, protocol.StatusRejected, h.statuses[0].status)
	assert.Empty(t, h.emits)
}

func TestDashboardViewSystemOnly(t *testing.T) {
	m, h, now := newTestManager(t)

	r := protocol.DisplayRequest{
		PackageName: "com.example.app",
		View:        protocol.ViewDashboard,
		Layout:      protocol.TextWall("sneaky"),
		Timestamp:   *now,
	}
	m.HandleRequest(r)
	require.Len(t, h.statuses, 1)
	assert.Equal(t, protocol.StatusRejected, h.lastStatus().status)
	assert.Empty(t, h.emits)

	r.PackageName = "system"
	m.HandleRequest(r)
	require.Len(t, h.emits, 1)
	assert.Equal(t, protocol.ViewDashboard, h.emits[0].View)
	assert.Equal(t, protocol.StatusDisplayed, h.lastStatus().status)
}

func TestThrottleNewerWins(t *testing.T) {
	m, h, now := newTestManager(t)

	m.HandleRequest(mainReq("app", "one", *now))
	require.Len(t, h.emits, 1)
	assert.Equal(t, protocol.StatusDisplayed, h.lastStatus().status)

	// Second request inside the window parks as pending.
	*now = now.Add(100 * time.Millisecond)
	m.HandleRequest(mainReq("app", "two", *now))
	assert.Len(t, h.emits, 1)
	assert.Equal(t, protocol.StatusThrottled, h.lastStatus().status)
	assert.Equal(t, 1, h.pendingTimers())

	// Third request overwrites the pending without re-arming the timer.
	*now = now.Add(50 * time.Millisecond)
	m.HandleRequest(mainReq("app", "three", *now))
	assert.Equal(t, protocol.StatusThrottled, h.lastStatus().status)
	assert.Equal(t, 1, h.pendingTimers())

	// Window elapses: only the newest pending is shown.
	*now = now.Add(150 * time.Millisecond)
	h.fireNext(t)
	require.Len(t, h.emits, 2)
	assert.Equal(t, "three", h.emits[1].Layout.Text)
	assert.Equal(t, protocol.StatusDisplayed, h.lastStatus().status)
}

func TestThrottlePerPackageIndependent(t *testing.T) {
	m, h, now := newTestManager(t)

	m.HandleRequest(mainReq("a", "a1", *now))
	*now = now.Add(50 * time.Millisecond)
	m.HandleRequest(mainReq("b", "b1", *now))

	// Each package emitted immediately; neither throttled the other.
	require.Len(t, h.emits, 2)
	assert.Equal(t, "a1", h.emits[0].Layout.Text)
	assert.Equal(t, "b1", h.emits[1].Layout.Text)
}

func TestBootQueueDropOldest(t *testing.T) {
	m, h, now := newTestManager(t)

	m.StartBoot("app", "Captions")
	require.Len(t, h.emits, 1)
	assert.Equal(t, "system", h.emits[0].PackageName)
	assert.Equal(t, protocol.LayoutReferenceCard, h.emits[0].Layout.LayoutType)
	assert.True(t, m.Booting("app"))

	// Five requests against a queue capacity of four: the first is dropped.
	for i, text := range []string{"q1", "q2", "q3", "q4", "q5"} {
		*now = now.Add(10 * time.Millisecond)
		m.HandleRequest(mainReq("app", text, *now))
		assert.Equal(t, protocol.StatusQueuedBoot, h.lastStatus().status, "request %d", i)
	}
	assert.Len(t, m.bootQueues["app"], 4)
	assert.Equal(t, "q2", m.bootQueues["app"][0].Layout.Text)
}

func TestBootDrainFIFOThenThrottle(t *testing.T) {
	m, h, now := newTestManager(t)

	m.StartBoot("app", "Captions")
	*now = now.Add(10 * time.Millisecond)
	m.HandleRequest(mainReq("app", "first", *now))
	*now = now.Add(10 * time.Millisecond)
	m.HandleRequest(mainReq("app", "second", *now))

	// Boot window elapses: the queue drains through normal arbitration.
	*now = now.Add(m.cfg.BootDuration)
	h.fireNext(t)
	assert.False(t, m.Booting("app"))

	// "first" emitted, "second" landed in the throttle slot.
	require.GreaterOrEqual(t, len(h.emits), 2)
	assert.Equal(t, "first", h.emits[len(h.emits)-1].Layout.Text)

	*now = now.Add(m.cfg.Throttle)
	h.fireNext(t)
	assert.Equal(t, "second", h.emits[len(h.emits)-1].Layout.Text)
}

func TestCriticalBypassesForeignBoot(t *testing.T) {
	m, h, now := newTestManager(t)

	m.StartBoot("booting.app", "Slow App")
	emitsBefore := len(h.emits)

	*now = now.Add(10 * time.Millisecond)
	normal := mainReq("other.app", "normal", *now)
	m.HandleRequest(normal)
	assert.Equal(t, protocol.StatusQueuedBoot, h.lastStatus().status)
	assert.Len(t, h.emits, emitsBefore)

	// Critical from a non-booting package goes straight through. The system
	// boot card just went out, so other.app's own throttle slot is clean.
	*now = now.Add(10 * time.Millisecond)
	critical := mainReq("other.app", "critical", *now)
	critical.Priority = protocol.PriorityCritical
	m.HandleRequest(critical)
	require.Len(t, h.emits, emitsBefore+1)
	assert.Equal(t, "critical", h.emits[len(h.emits)-1].Layout.Text)
}

func TestCriticalBypassesOwnBoot(t *testing.T) {
	m, h, now := newTestManager(t)

	m.StartBoot("app.a", "App A")
	emitsBefore := len(h.emits)

	*now = now.Add(10 * time.Millisecond)
	normal := mainReq("app.a", "normal", *now)
	m.HandleRequest(normal)
	assert.Equal(t, protocol.StatusQueuedBoot, h.lastStatus().status)
	assert.Len(t, h.emits, emitsBefore)

	// A critical request from the booting package itself skips its own
	// boot queue.
	*now = now.Add(10 * time.Millisecond)
	critical := mainReq("app.a", "critical", *now)
	critical.Priority = protocol.PriorityCritical
	m.HandleRequest(critical)
	require.Len(t, h.emits, emitsBefore+1)
	assert.Equal(t, "critical", h.emits[len(h.emits)-1].Layout.Text)
	assert.Equal(t, protocol.StatusDisplayed, h.lastStatus().status)
}

func TestExpiryPromotionHonorsThrottle(t *testing.T) {
	m, h, now := newTestManager(t)

	timed := mainReq("a", "first", *now)
	timed.Duration = 100 * time.Millisecond
	timed.DurationMs = 100
	m.HandleRequest(timed)
	require.Len(t, h.emits, 1)

	*now = now.Add(50 * time.Millisecond)
	m.HandleRequest(mainReq("a", "second", *now))
	assert.Equal(t, protocol.StatusThrottled, h.lastStatus().status)

	// Duration expiry lands inside a's throttle window: the display clears
	// but the pending must wait for the throttle tick, keeping consecutive
	// sends from a at least the minimum interval apart.
	*now = now.Add(50 * time.Millisecond)
	h.fireNext(t)
	assert.Nil(t, m.Current())
	require.Len(t, h.emits, 1)
	require.Equal(t, 1, h.pendingTimers())

	*now = now.Add(200 * time.Millisecond)
	h.fireNext(t)
	require.Len(t, h.emits, 2)
	assert.Equal(t, "second", h.emits[1].Layout.Text)
}

func TestExpiryPromotesCriticalPending(t *testing.T) {
	m, h, now := newTestManager(t)

	// Warm b's throttle slot so its later request parks as pending.
	m.HandleRequest(mainReq("b", "b1", *now))

	*now = now.Add(10 * time.Millisecond)
	timed := mainReq("a", "timed", *now)
	timed.Duration = time.Second
	timed.DurationMs = 1000
	m.HandleRequest(timed)
	require.Len(t, h.emits, 2)

	// Two pendings behind throttles: an older critical from a and a newer
	// normal from b. Critical wins promotion.
	*now = now.Add(10 * time.Millisecond)
	crit := mainReq("a", "crit", *now)
	crit.Priority = protocol.PriorityCritical
	m.HandleRequest(crit)
	assert.Equal(t, protocol.StatusThrottled, h.lastStatus().status)

	*now = now.Add(10 * time.Millisecond)
	m.HandleRequest(mainReq("b", "newer", *now))
	assert.Equal(t, protocol.StatusThrottled, h.lastStatus().status)
	require.Len(t, h.emits, 2)

	// The expiry timer was armed before either throttle tick: fire it.
	*now = now.Add(time.Second)
	h.fireNext(t)
	require.Len(t, h.emits, 3)
	assert.Equal(t, "crit", h.emits[2].Layout.Text)

	// a's throttle tick was cancelled by the promotion; b's still fires.
	require.Equal(t, 1, h.pendingTimers())
	h.fireNext(t)
	assert.Equal(t, "newer", h.emits[len(h.emits)-1].Layout.Text)
}

func TestDurationExpiryClearsCurrent(t *testing.T) {
	m, h, now := newTestManager(t)

	timed := mainReq("a", "timed", *now)
	timed.Duration = time.Second
	timed.DurationMs = 1000
	m.HandleRequest(timed)
	require.NotNil(t, m.Current())

	*now = now.Add(time.Second)
	h.fireNext(t)
	assert.Nil(t, m.Current())
}

func TestUndeliveredRetriedOnceOnReconnect(t *testing.T) {
	m, h, now := newTestManager(t)

	h.emitErr = assert.AnError
	m.HandleRequest(mainReq("app", "lost", *now))
	require.Len(t, h.emits, 1)

	h.emitErr = nil
	m.OnGlassesReconnect()
	require.Len(t, h.emits, 2)
	assert.Equal(t, "lost", h.emits[1].Layout.Text)

	// Second reconnect does not replay again.
	m.OnGlassesReconnect()
	assert.Len(t, h.emits, 2)
}

func TestRemovePackageDropsState(t *testing.T) {
	m, h, now := newTestManager(t)

	m.HandleRequest(mainReq("app", "one", *now))
	*now = now.Add(50 * time.Millisecond)
	m.HandleRequest(mainReq("app", "two", *now))
	require.Equal(t, 1, h.pendingTimers())

	m.RemovePackage("app")
	assert.Equal(t, 0, h.pendingTimers())
	assert.Empty(t, m.bootQueues["app"])

	// The pending never fires.
	assert.Len(t, h.emits, 1)
}
