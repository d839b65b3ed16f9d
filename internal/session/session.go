// SPDX-License-Identifier: MIT

package session

import (
	"context"
	"sort"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/openglass/cloudcore/internal/log"
	"github.com/openglass/cloudcore/internal/media"
	"github.com/openglass/cloudcore/internal/metrics"
	"github.com/openglass/cloudcore/internal/protocol"
	"github.com/openglass/cloudcore/internal/session/audio"
	"github.com/openglass/cloudcore/internal/session/dashboard"
	"github.com/openglass/cloudcore/internal/session/display"
	"github.com/openglass/cloudcore/internal/session/subscription"
	"github.com/openglass/cloudcore/internal/store"
	"github.com/openglass/cloudcore/internal/stt"
	"github.com/openglass/cloudcore/internal/transport"
)

const inboxDepth = 1024

// photoSweepEvery bounds how stale an expired photo request can linger.
const photoSweepEvery = 15 * time.Second

// installRecheckEvery bounds how long an uninstalled TPA can keep its link.
const installRecheckEvery = 60 * time.Second

// tpaState is the actor-owned record of one connected TPA link.
type tpaState struct {
	link      *transport.Link
	entry     *store.AppEntry
	lastFrame time.Time
}

// UserSession is the actor owning all state for one user: the glasses link,
// the TPA links, subscriptions, display arbitration, the dashboard, audio
// buffering and photo requests. Every mutation runs on the actor goroutine;
// collaborators communicate by posting messages to the inbox.
type UserSession struct {
	ID     string
	UserID string

	registry *Registry
	logger   zerolog.Logger

	inbox chan inboxMsg
	done  chan struct{}

	// Actor-owned state below. Never touch off the actor goroutine.
	glasses      *transport.Link
	everAttached bool
	graceCancel  func()
	tpas         map[string]*tpaState
	activeApps   map[string]bool
	micEnabled   bool
	startedAt    time.Time
	lastActivity time.Time
	destroyed    bool

	subs   *subscription.Manager
	disp   *display.Manager
	dash   *dashboard.Manager
	buf    *audio.Buffer
	sender *audio.Sender
	sttCtl *stt.Control
	photos *media.Table

	// Outbound glasses frames buffered during the disconnect grace window,
	// drop-oldest.
	pendingGlasses [][]byte

	periodics map[string]func()
}

type inboxMsg interface{ isInboxMsg() }

type attachGlassesMsg struct {
	link *transport.Link
	apps []protocol.AppRef
}
type glassesFrameMsg struct {
	link  *transport.Link
	frame transport.Frame
}
type glassesGoneMsg struct {
	link *transport.Link
	info transport.CloseInfo
}
type attachTpaMsg struct {
	pkg   string
	entry *store.AppEntry
	link  *transport.Link
}
type tpaFrameMsg struct {
	pkg   string
	link  *transport.Link
	frame transport.Frame
}
type tpaGoneMsg struct {
	pkg  string
	link *transport.Link
	info transport.CloseInfo
}

// timerMsg and callMsg run a closure on the actor goroutine.
type timerMsg struct{ fire func() }
type callMsg struct{ fn func() }
type destroyMsg struct{ reason string }

func (attachGlassesMsg) isInboxMsg() {}
func (glassesFrameMsg) isInboxMsg()  {}
func (glassesGoneMsg) isInboxMsg()   {}
func (attachTpaMsg) isInboxMsg()     {}
func (tpaFrameMsg) isInboxMsg()      {}
func (tpaGoneMsg) isInboxMsg()       {}
func (timerMsg) isInboxMsg()         {}
func (callMsg) isInboxMsg()          {}
func (destroyMsg) isInboxMsg()       {}

func newUserSession(r *Registry, userID, id string) *UserSession {
	cfg := r.cfg
	s := &UserSession{
		ID:        id,
		UserID:    userID,
		registry:  r,
		logger:    log.WithSession("session", id).With().Str(log.FieldUserID, userID).Logger(),
		inbox:     make(chan inboxMsg, inboxDepth),
		done:      make(chan struct{}),
		tpas:      make(map[string]*tpaState),
		activeApps: make(map[string]bool),
		startedAt: time.Now(),
		subs:      subscription.NewManager(),
		photos:    media.NewTable(cfg.PhotoExpire),
		periodics: make(map[string]func()),
	}
	s.buf = audio.NewBuffer(cfg.LiveFrameCap(), cfg.SlideFrameCap())
	s.sttCtl = stt.NewControl(r.deps.SttProvider, 16000, s.onSttResult)
	s.sender = audio.NewSender(s.buf, s.sttCtl.FanAudio, s.logger)
	s.disp = display.NewManager(display.Config{
		Throttle:      cfg.DisplayThrottle,
		BootDuration:  cfg.BootDuration,
		BootQueueCap:  cfg.BootQueueCap,
		SystemPackage: cfg.SystemDashboardPackage,
	}, s)
	s.dash = dashboard.NewManager(cfg.SystemDashboardPackage, s)
	return s
}

// post delivers a message to the actor, dropping it once the session is
// gone. Reports whether the message was accepted.
func (s *UserSession) post(m inboxMsg) bool {
	select {
	case s.inbox <- m:
		return true
	case <-s.done:
		return false
	}
}

func (s *UserSession) run() {
	go s.sender.Run()

	cfg := s.registry.cfg
	s.startPeriodic("dashboard", cfg.DashboardTick, s.dash.Recompose)
	s.startPeriodic("photo_sweep", photoSweepEvery, s.sweepPhotos)
	s.startPeriodic("install_recheck", installRecheckEvery, s.recheckInstalled)
	if cfg.TpaIdleTimeout > 0 {
		s.startPeriodic("tpa_idle", cfg.TpaIdleTimeout/2, s.reapIdleTpas)
	}

	s.logger.Info().Str(log.FieldEvent, "session_started").Send()
	for {
		select {
		case m := <-s.inbox:
			s.handle(m)
			if s.destroyed {
				return
			}
		case <-s.done:
			return
		}
	}
}

// handle dispatches one inbox message with panic containment: a fault in
// one handler must not take down the whole session.
func (s *UserSession) handle(m inboxMsg) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str(log.FieldEvent, "handler_panic").
				Interface("panic", r).
				Type("message", m).
				Msg("session handler panicked")
		}
	}()

	switch m := m.(type) {
	case attachGlassesMsg:
		s.handleAttachGlasses(m)
	case glassesFrameMsg:
		if m.link == s.glasses {
			s.handleGlassesFrame(m.frame)
		}
	case glassesGoneMsg:
		s.handleGlassesGone(m)
	case attachTpaMsg:
		s.handleAttachTpa(m)
	case tpaFrameMsg:
		if t := s.tpas[m.pkg]; t != nil && t.link == m.link {
			t.lastFrame = time.Now()
			s.handleTpaFrame(m.pkg, t, m.frame)
		}
	case tpaGoneMsg:
		s.handleTpaGone(m)
	case timerMsg:
		m.fire()
	case callMsg:
		m.fn()
	case destroyMsg:
		s.destroy(m.reason)
	}
}

// Schedule runs fire on the actor goroutine after d. It implements the
// display and dashboard managers' timer hook.
func (s *UserSession) Schedule(d time.Duration, fire func()) (cancel func()) {
	t := time.AfterFunc(d, func() {
		s.post(timerMsg{fire: fire})
	})
	return func() { t.Stop() }
}

func (s *UserSession) startPeriodic(name string, d time.Duration, fn func()) {
	var arm func()
	arm = func() {
		s.periodics[name] = s.Schedule(d, func() {
			if s.destroyed {
				return
			}
			fn()
			arm()
		})
	}
	arm()
}

// --- glasses link lifecycle -------------------------------------------------

func (s *UserSession) attachGlasses(link *transport.Link, apps []protocol.AppRef) (transport.GlassesSink, error) {
	if !s.post(attachGlassesMsg{link: link, apps: apps}) {
		return nil, protocol.ErrUnknownSession
	}
	return glassesPump{s: s, link: link}, nil
}

func (s *UserSession) handleAttachGlasses(m attachGlassesMsg) {
	if s.glasses != nil {
		s.glasses.Close(websocket.StatusPolicyViolation, "superseded by new connection")
	}
	if s.graceCancel != nil {
		s.graceCancel()
		s.graceCancel = nil
	}
	reconnected := s.everAttached
	s.glasses = m.link
	s.everAttached = true
	s.lastActivity = time.Now()

	ack := protocol.GlassesAck{
		Type:                  protocol.GlassesConnectionAck,
		SessionID:             s.ID,
		InstalledApps:         m.apps,
		ActiveAppPackageNames: s.activeAppList(),
		Reconnected:           reconnected,
	}
	if err := m.link.SendEnvelope(ack); err != nil {
		s.logger.Warn().Err(err).Str(log.FieldEvent, "ack_failed").Send()
		return
	}

	if reconnected {
		s.flushPendingGlasses()
		s.disp.OnGlassesReconnect()
		s.sender.NotifyReconnect()
	}
	s.logger.Info().
		Str(log.FieldEvent, "glasses_attached").
		Bool("reconnected", reconnected).
		Send()
}

func (s *UserSession) handleGlassesGone(m glassesGoneMsg) {
	if m.link != s.glasses {
		return
	}
	s.glasses = nil
	grace := s.registry.graceWindow()
	s.graceCancel = s.Schedule(grace, func() {
		s.destroy("glasses grace expired")
	})
	metrics.IncSessionEvent("glasses_disconnected")
	s.logger.Info().
		Str(log.FieldEvent, "glasses_gone").
		Int(log.FieldCloseCode, int(m.info.Code)).
		Str(log.FieldCloseReason, m.info.Reason).
		Bool("abrupt", m.info.Abrupt).
		Dur("grace", grace).
		Send()
}

func (s *UserSession) activeAppList() []string {
	out := make([]string, 0, len(s.activeApps))
	for pkg := range s.activeApps {
		out = append(out, pkg)
	}
	sort.Strings(out)
	return out
}

// sendToGlasses delivers a control envelope to the device, buffering it
// drop-oldest while the link is inside the grace window.
func (s *UserSession) sendToGlasses(v any) error {
	data := protocol.Marshal(v)
	if s.glasses == nil {
		limit := s.registry.cfg.OutboundHighWater
		if len(s.pendingGlasses) >= limit {
			s.pendingGlasses = s.pendingGlasses[1:]
			metrics.BackpressureDrops.WithLabelValues("glasses_grace").Inc()
		}
		s.pendingGlasses = append(s.pendingGlasses, data)
		return nil
	}
	return s.glasses.Send(data)
}

func (s *UserSession) flushPendingGlasses() {
	for _, data := range s.pendingGlasses {
		if err := s.glasses.Send(data); err != nil {
			break
		}
	}
	s.pendingGlasses = nil
}

// --- TPA link lifecycle -----------------------------------------------------

func (s *UserSession) attachTpa(pkg string, entry *store.AppEntry, link *transport.Link) (transport.TpaSink, error) {
	if !s.post(attachTpaMsg{pkg: pkg, entry: entry, link: link}) {
		return nil, protocol.ErrUnknownSession
	}
	return tpaPump{s: s, pkg: pkg, link: link}, nil
}

func (s *UserSession) handleAttachTpa(m attachTpaMsg) {
	if prev := s.tpas[m.pkg]; prev != nil {
		_ = prev.link.SendEnvelope(protocol.SessionClosing{
			Type:   protocol.TpaSessionClosing,
			Reason: "superseded by new connection",
		})
		prev.link.Close(websocket.StatusPolicyViolation, "superseded")
	} else {
		metrics.TpaLinksActive.Inc()
	}
	s.tpas[m.pkg] = &tpaState{link: m.link, entry: m.entry, lastFrame: time.Now()}
	// Subscriptions survive a supersede; point audio fan-out at the new link.
	s.refreshAudioTargets()

	if err := m.link.SendEnvelope(protocol.TpaAck{
		Type:      protocol.TpaConnectionAck,
		SessionID: s.ID + "-" + m.pkg,
	}); err != nil {
		s.logger.Warn().Err(err).Str(log.FieldPackage, m.pkg).Str(log.FieldEvent, "tpa_ack_failed").Send()
		return
	}
	s.logger.Info().Str(log.FieldPackage, m.pkg).Str(log.FieldEvent, "tpa_attached").Send()
}

func (s *UserSession) handleTpaGone(m tpaGoneMsg) {
	t := s.tpas[m.pkg]
	if t == nil || t.link != m.link {
		return
	}
	delete(s.tpas, m.pkg)
	metrics.TpaLinksActive.Dec()

	s.applySubChange(s.subs.Clear(m.pkg))
	s.disp.RemovePackage(m.pkg)
	s.dash.RemovePackage(m.pkg)

	s.logger.Info().
		Str(log.FieldPackage, m.pkg).
		Str(log.FieldEvent, "tpa_gone").
		Int(log.FieldCloseCode, int(m.info.Code)).
		Str(log.FieldCloseReason, m.info.Reason).
		Send()
}

// recheckInstalled closes links of TPAs the user uninstalled mid-session.
// The install-state cache degrades open, so a store outage never evicts a
// connected TPA.
func (s *UserSession) recheckInstalled() {
	ctx := context.Background()
	for pkg, t := range s.tpas {
		if t.entry != nil && t.entry.IsSystem {
			continue
		}
		if s.registry.deps.InstallState.Installed(ctx, s.UserID, pkg) {
			continue
		}
		s.logger.Info().Str(log.FieldPackage, pkg).Str(log.FieldEvent, "tpa_uninstalled").Send()
		_ = t.link.SendEnvelope(protocol.SessionClosing{
			Type:   protocol.TpaSessionClosing,
			Reason: "uninstalled",
		})
		t.link.Close(websocket.StatusPolicyViolation, "uninstalled")
	}
}

func (s *UserSession) reapIdleTpas() {
	idle := s.registry.cfg.TpaIdleTimeout
	now := time.Now()
	for pkg, t := range s.tpas {
		if now.Sub(t.lastFrame) > idle {
			s.logger.Info().Str(log.FieldPackage, pkg).Str(log.FieldEvent, "tpa_idle_close").Send()
			t.link.Close(websocket.StatusGoingAway, "idle timeout")
		}
	}
}

// --- subscriptions and fan-out ----------------------------------------------

func (s *UserSession) applySubChange(ch subscription.Change) {
	metrics.SubscriptionChanges.Inc()
	s.sttCtl.Apply(context.Background(), ch.LanguagePairs)
	if ch.AudioNeeded != s.micEnabled {
		s.micEnabled = ch.AudioNeeded
		if err := s.sendToGlasses(protocol.MicStateChange{
			Type:                protocol.GlassesMicStateChange,
			IsMicrophoneEnabled: s.micEnabled,
		}); err != nil {
			s.logger.Warn().Err(err).Str(log.FieldEvent, "mic_state_send_failed").Send()
		}
	}
	s.refreshAudioTargets()
}

func (s *UserSession) refreshAudioTargets() {
	pkgs := s.subs.Get(protocol.Simple(protocol.StreamAudioChunk))
	targets := make([]audio.Target, 0, len(pkgs))
	for _, pkg := range pkgs {
		t := s.tpas[pkg]
		if t == nil {
			continue
		}
		targets = append(targets, audio.Target{PackageName: pkg, Push: t.link.SendBinary})
	}
	s.sender.SetTargets(targets)
}

// fanStream delivers one event to every TPA subscribed to kind.
func (s *UserSession) fanStream(kind protocol.StreamKind, payload []byte) {
	s.fanTo(s.subs.Get(kind), kind, payload)
}

func (s *UserSession) fanTo(pkgs []string, kind protocol.StreamKind, payload []byte) {
	if len(pkgs) == 0 {
		return
	}
	data := protocol.Marshal(protocol.DataStream{
		Type:       protocol.TpaDataStream,
		StreamKind: kind,
		Payload:    payload,
	})
	for _, pkg := range pkgs {
		t := s.tpas[pkg]
		if t == nil {
			continue
		}
		if err := t.link.Send(data); err != nil {
			s.logger.Warn().Err(err).
				Str(log.FieldPackage, pkg).
				Str(log.FieldStream, kind.String()).
				Str(log.FieldEvent, "fan_failed").
				Send()
		}
	}
}

// onSttResult runs on a provider pump goroutine; hop onto the actor before
// touching link state.
func (s *UserSession) onSttResult(res stt.Result) {
	s.post(callMsg{fn: func() { s.fanResult(res) }})
}

func (s *UserSession) fanResult(res stt.Result) {
	kind := protocol.Transcription(res.Language)
	if res.Target != "" {
		kind = protocol.Translation(res.Language, res.Target)
	}
	payload := protocol.Marshal(struct {
		Text           string    `json:"text"`
		Language       string    `json:"language"`
		TargetLanguage string    `json:"targetLanguage,omitempty"`
		IsFinal        bool      `json:"isFinal"`
		Timestamp      time.Time `json:"timestamp"`
	}{res.Text, res.Language, res.Target, res.IsFinal, res.Timestamp})
	s.fanStream(kind, payload)
}

// --- display and dashboard hooks ---------------------------------------------

// EmitDisplay implements display.Hooks.
func (s *UserSession) EmitDisplay(ev protocol.DisplayEvent) error {
	return s.sendToGlasses(ev)
}

// NotifyStatus implements display.Hooks, reporting arbitration outcomes to
// the requesting TPA.
func (s *UserSession) NotifyStatus(pkg, status, reason string) {
	t := s.tpas[pkg]
	if t == nil {
		return
	}
	_ = t.link.SendEnvelope(protocol.DisplayRequestStatus{
		Type:   protocol.TpaDisplayRequestStatus,
		Status: status,
		Reason: reason,
	})
}

// SubmitDashboard implements dashboard.Hooks.
func (s *UserSession) SubmitDashboard(r protocol.DisplayRequest) {
	s.disp.HandleRequest(r)
}

// Broadcast implements dashboard.Hooks, sending one envelope to every
// connected TPA.
func (s *UserSession) Broadcast(msg any) {
	data := protocol.Marshal(msg)
	for pkg, t := range s.tpas {
		if err := t.link.Send(data); err != nil {
			s.logger.Warn().Err(err).Str(log.FieldPackage, pkg).Str(log.FieldEvent, "broadcast_failed").Send()
		}
	}
}

// --- photo flow ---------------------------------------------------------------

// Photos exposes the session's photo request table. The table is safe for
// concurrent use by HTTP handlers.
func (s *UserSession) Photos() *media.Table { return s.photos }

// NotifyPhotoTaken delivers the completed photo to its originating TPA and
// to photo_taken subscribers. Safe to call off the actor.
func (s *UserSession) NotifyPhotoTaken(req media.PhotoRequest, url string) {
	s.post(callMsg{fn: func() {
		if req.PackageName != media.SystemPackage {
			if t := s.tpas[req.PackageName]; t != nil {
				_ = t.link.SendEnvelope(protocol.PhotoTaken{
					Type:      protocol.TpaPhotoTaken,
					RequestID: req.ID,
					URL:       url,
				})
			}
		}
		payload := protocol.Marshal(struct {
			RequestID string `json:"requestId"`
			URL       string `json:"url"`
		}{req.ID, url})
		s.fanStream(protocol.Simple(protocol.StreamPhotoTaken), payload)
	}})
}

func (s *UserSession) sweepPhotos() {
	expired := s.photos.Sweep()
	for _, id := range expired {
		metrics.PhotoRequests.WithLabelValues("expired").Inc()
		s.logger.Info().Str(log.FieldPhotoReq, id).Str(log.FieldEvent, "photo_expired").Send()
	}
}

// --- teardown ----------------------------------------------------------------

// Destroy requests session teardown from any goroutine.
func (s *UserSession) Destroy(reason string) {
	s.post(destroyMsg{reason: reason})
}

func (s *UserSession) destroy(reason string) {
	if s.destroyed {
		return
	}
	s.destroyed = true

	for _, t := range s.tpas {
		_ = t.link.SendEnvelope(protocol.SessionClosing{
			Type:   protocol.TpaSessionClosing,
			Reason: reason,
		})
		t.link.Close(websocket.StatusGoingAway, reason)
	}
	if s.glasses != nil {
		s.glasses.Close(websocket.StatusGoingAway, reason)
	}
	if s.graceCancel != nil {
		s.graceCancel()
	}
	for _, cancel := range s.periodics {
		cancel()
	}
	s.disp.Shutdown()
	s.sttCtl.Close()
	s.buf.Close()
	<-s.sender.Done()

	s.registry.remove(s)
	metrics.IncSessionEvent("destroyed")
	s.logger.Info().
		Str(log.FieldEvent, "session_destroyed").
		Str("reason", reason).
		Dur("uptime", time.Since(s.startedAt)).
		Send()
	close(s.done)
}

// --- sink adapters ------------------------------------------------------------

// glassesPump forwards transport callbacks for one glasses link into the
// actor inbox; the link pointer lets the actor ignore stale links.
type glassesPump struct {
	s    *UserSession
	link *transport.Link
}

func (p glassesPump) PostGlassesFrame(f transport.Frame) {
	p.s.post(glassesFrameMsg{link: p.link, frame: f})
}

func (p glassesPump) GlassesGone(info transport.CloseInfo) {
	p.s.post(glassesGoneMsg{link: p.link, info: info})
}

type tpaPump struct {
	s    *UserSession
	pkg  string
	link *transport.Link
}

func (p tpaPump) PostTpaFrame(pkg string, f transport.Frame) {
	p.s.post(tpaFrameMsg{pkg: p.pkg, link: p.link, frame: f})
}

func (p tpaPump) TpaGone(pkg string, info transport.CloseInfo) {
	p.s.post(tpaGoneMsg{pkg: p.pkg, link: p.link, info: info})
}
