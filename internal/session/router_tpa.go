// SPDX-License-Identifier: MIT

package session

import (
	"time"

	"github.com/openglass/cloudcore/internal/log"
	"github.com/openglass/cloudcore/internal/metrics"
	"github.com/openglass/cloudcore/internal/protocol"
	"github.com/openglass/cloudcore/internal/session/dashboard"
	"github.com/openglass/cloudcore/internal/transport"
)

// handleTpaFrame routes one inbound TPA frame. TPAs never send binary.
func (s *UserSession) handleTpaFrame(pkg string, t *tpaState, f transport.Frame) {
	if f.Binary {
		metrics.ProtocolViolations.WithLabelValues("tpa").Inc()
		s.logger.Warn().Str(log.FieldPackage, pkg).Str(log.FieldEvent, "unexpected_binary").Send()
		return
	}

	msg, err := protocol.ParseTpaMessage(f.Data)
	if err != nil {
		metrics.ProtocolViolations.WithLabelValues("tpa").Inc()
		s.logger.Warn().Err(err).Str(log.FieldPackage, pkg).Str(log.FieldEvent, "bad_tpa_frame").Send()
		s.NotifyStatus(pkg, protocol.StatusRejected, err.Error())
		return
	}

	switch m := msg.(type) {
	case *protocol.TpaInit:
		// Handshake already completed at the transport layer.
		metrics.ProtocolViolations.WithLabelValues("tpa").Inc()
		s.logger.Warn().Str(log.FieldPackage, pkg).Str(log.FieldEvent, "duplicate_tpa_init").Send()
	case *protocol.SubscriptionUpdate:
		s.handleSubscriptionUpdate(pkg, t, m.Subscriptions)
	case *protocol.DisplayRequestMsg:
		s.handleDisplayRequest(pkg, m)
	case *protocol.DashboardContentUpdate:
		s.handleDashboardContent(pkg, m)
	case *protocol.DashboardModeChange:
		s.handleDashboardMode(pkg, m.Mode)
	case *protocol.DashboardSystemUpdate:
		if err := s.dash.SetSystemSection(pkg, m.Section, m.Content); err != nil {
			s.tpaViolation(pkg, err)
		}
	case *protocol.PhotoRequestMsg:
		s.handlePhotoRequest(pkg, m)
	case *protocol.Heartbeat:
		// lastFrame already advanced by the dispatcher.
	}
}

func (s *UserSession) handleSubscriptionUpdate(pkg string, t *tpaState, kinds []protocol.StreamKind) {
	allowed, rejected := allowedKinds(t.entry, kinds)
	if len(rejected) > 0 {
		_ = t.link.SendEnvelope(protocol.SubscriptionRejected{
			Type:     protocol.TpaSubscriptionRejected,
			Rejected: rejected,
			Reason:   "missing permission",
		})
		s.logger.Warn().
			Str(log.FieldPackage, pkg).
			Int("rejected", len(rejected)).
			Str(log.FieldEvent, "subscription_rejected").
			Send()
	}
	ch := s.subs.Set(pkg, allowed)
	s.applySubChange(ch)
	s.logger.Info().
		Str(log.FieldPackage, pkg).
		Int("added", len(ch.Added)).
		Int("removed", len(ch.Removed)).
		Str(log.FieldEvent, "subscription_updated").
		Send()
}

func (s *UserSession) handleDisplayRequest(pkg string, m *protocol.DisplayRequestMsg) {
	layout, err := protocol.DecodeLayout(m.Layout)
	if err != nil {
		s.NotifyStatus(pkg, protocol.StatusRejected, err.Error())
		metrics.IncDisplayOutcome(protocol.StatusRejected)
		return
	}
	r := protocol.DisplayRequest{
		PackageName: pkg,
		View:        m.View,
		Layout:      layout,
		DurationMs:  m.DurationMs,
		Priority:    m.Priority,
		Timestamp:   time.Now(),
	}
	if r.View == "" {
		r.View = protocol.ViewMain
	}
	if r.Priority == "" {
		r.Priority = protocol.PriorityNormal
	}
	if m.DurationMs > 0 {
		r.Duration = time.Duration(m.DurationMs) * time.Millisecond
	}
	s.disp.HandleRequest(r)
}

func (s *UserSession) handleDashboardContent(pkg string, m *protocol.DashboardContentUpdate) {
	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	if err := s.dash.SubmitContent(pkg, m.Content, m.Modes, ts); err != nil {
		s.tpaViolation(pkg, err)
	}
}

func (s *UserSession) handleDashboardMode(pkg, raw string) {
	mode, err := dashboard.ParseMode(raw)
	if err != nil {
		s.tpaViolation(pkg, err)
		return
	}
	if err := s.dash.SetMode(pkg, mode); err != nil {
		s.tpaViolation(pkg, err)
	}
}

func (s *UserSession) handlePhotoRequest(pkg string, m *protocol.PhotoRequestMsg) {
	req := s.photos.Create(s.UserID, pkg, m.SaveToGallery)
	metrics.PhotoRequests.WithLabelValues("created").Inc()
	if err := s.sendToGlasses(protocol.TakePhoto{
		Type:          protocol.GlassesTakePhoto,
		RequestID:     req.ID,
		AppID:         pkg,
		SaveToGallery: m.SaveToGallery,
	}); err != nil {
		s.photos.Cancel(req.ID)
		s.logger.Warn().Err(err).Str(log.FieldPhotoReq, req.ID).Str(log.FieldEvent, "take_photo_send_failed").Send()
		return
	}
	s.logger.Info().
		Str(log.FieldPackage, pkg).
		Str(log.FieldPhotoReq, req.ID).
		Str(log.FieldEvent, "photo_requested").
		Send()
}

func (s *UserSession) tpaViolation(pkg string, err error) {
	metrics.ProtocolViolations.WithLabelValues("tpa").Inc()
	s.logger.Warn().Err(err).Str(log.FieldPackage, pkg).Str(log.FieldEvent, "tpa_violation").Send()
	s.NotifyStatus(pkg, protocol.StatusRejected, err.Error())
}
