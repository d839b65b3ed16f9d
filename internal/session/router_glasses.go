// SPDX-License-Identifier: MIT

package session

import (
	"context"
	"time"

	"github.com/coder/websocket"

	"github.com/openglass/cloudcore/internal/log"
	"github.com/openglass/cloudcore/internal/media"
	"github.com/openglass/cloudcore/internal/metrics"
	"github.com/openglass/cloudcore/internal/protocol"
	"github.com/openglass/cloudcore/internal/transport"
)

// handleGlassesFrame routes one inbound device frame. Binary frames are
// microphone audio; text frames are JSON envelopes.
func (s *UserSession) handleGlassesFrame(f transport.Frame) {
	s.lastActivity = time.Now()

	if f.Binary {
		s.buf.Append(f.Data, s.lastActivity)
		return
	}

	msg, err := protocol.ParseGlassesMessage(f.Data)
	if err != nil {
		metrics.ProtocolViolations.WithLabelValues("glasses").Inc()
		s.logger.Warn().Err(err).Str(log.FieldEvent, "bad_glasses_frame").Send()
		_ = s.sendToGlasses(protocol.ConnectionError{
			Type:    protocol.GlassesConnectionError,
			Message: err.Error(),
		})
		return
	}

	switch m := msg.(type) {
	case *protocol.ConnectionInit:
		// Handshake already completed at the transport layer.
		metrics.ProtocolViolations.WithLabelValues("glasses").Inc()
		s.logger.Warn().Str(log.FieldEvent, "duplicate_connection_init").Send()
	case *protocol.VADStatus:
		s.logger.Debug().Bool("vad", m.Status).Str(log.FieldEvent, "vad").Send()
	case *protocol.ButtonPressEvent:
		s.handleButton(m.ButtonID, m.PressType)
	case *protocol.HeadPosition:
		s.fanStream(protocol.Simple(protocol.StreamHeadPosition), protocol.Marshal(m))
	case *protocol.BatteryUpdate:
		s.fanStream(protocol.Simple(protocol.StreamGlassesBattery), protocol.Marshal(m))
	case *protocol.LocationUpdate:
		s.fanStream(protocol.Simple(protocol.StreamLocation), protocol.Marshal(m))
	case *protocol.CalendarEvent:
		s.fanStream(protocol.Simple(protocol.StreamCalendarEvent), protocol.Marshal(m))
	case *protocol.CoreStatus:
		s.logger.Debug().Str("status", m.Status).Str(log.FieldEvent, "core_status").Send()
	case *protocol.AppLifecycle:
		switch m.Type {
		case protocol.GlassesStartApp:
			s.handleStartApp(m.PackageName)
		case protocol.GlassesStopApp:
			s.handleStopApp(m.PackageName)
		}
	}
}

func (s *UserSession) handleStartApp(pkg string) {
	if !s.registry.deps.InstallState.Installed(context.Background(), s.UserID, pkg) {
		_ = s.sendToGlasses(protocol.ConnectionError{
			Type:    protocol.GlassesConnectionError,
			Message: "app not installed: " + pkg,
		})
		return
	}
	if s.activeApps[pkg] {
		return
	}
	s.activeApps[pkg] = true

	name := pkg
	if entry, err := s.registry.deps.Store.GetApp(context.Background(), pkg); err == nil {
		name = entry.Name
	}
	s.disp.StartBoot(pkg, name)
	_ = s.sendToGlasses(protocol.AppStateChange{
		Type:        protocol.GlassesAppStateChange,
		PackageName: pkg,
		Running:     true,
	})
	s.logger.Info().Str(log.FieldPackage, pkg).Str(log.FieldEvent, "app_started").Send()
}

func (s *UserSession) handleStopApp(pkg string) {
	if !s.activeApps[pkg] {
		return
	}
	delete(s.activeApps, pkg)

	if t := s.tpas[pkg]; t != nil {
		_ = t.link.SendEnvelope(protocol.SessionClosing{
			Type:   protocol.TpaSessionClosing,
			Reason: "app stopped",
		})
		t.link.Close(websocket.StatusGoingAway, "app stopped")
	}
	_ = s.sendToGlasses(protocol.AppStateChange{
		Type:        protocol.GlassesAppStateChange,
		PackageName: pkg,
		Running:     false,
	})
	s.logger.Info().Str(log.FieldPackage, pkg).Str(log.FieldEvent, "app_stopped").Send()
}

// ButtonOutcome reports how a hardware button press was resolved.
type ButtonOutcome struct {
	// Routed is true when at least one TPA subscribed to the press and the
	// event was delivered as a data stream.
	Routed bool
	// RequestID is set when the system handled an unclaimed short photo
	// press by initiating a photo capture.
	RequestID     string
	SaveToGallery bool
}

// handleButton implements the press decision: subscribed TPAs win; an
// unclaimed short press of the photo button falls back to the system photo
// flow. Runs on the actor.
func (s *UserSession) handleButton(buttonID, pressType string) ButtonOutcome {
	kind := protocol.ButtonPress(buttonID)
	subscribers := s.subs.Get(kind)
	if len(subscribers) > 0 {
		payload := protocol.Marshal(struct {
			ButtonID  string `json:"buttonId"`
			PressType string `json:"pressType"`
		}{buttonID, pressType})
		s.fanTo(subscribers, kind, payload)
		return ButtonOutcome{Routed: true}
	}

	if buttonID == "photo" && pressType == "short" {
		req := s.photos.Create(s.UserID, media.SystemPackage, true)
		metrics.PhotoRequests.WithLabelValues("created").Inc()
		_ = s.sendToGlasses(protocol.TakePhoto{
			Type:          protocol.GlassesTakePhoto,
			RequestID:     req.ID,
			AppID:         media.SystemPackage,
			SaveToGallery: true,
		})
		s.logger.Info().Str(log.FieldPhotoReq, req.ID).Str(log.FieldEvent, "photo_initiated").Send()
		return ButtonOutcome{RequestID: req.ID, SaveToGallery: true}
	}
	return ButtonOutcome{}
}

// DispatchButton runs the button decision on the actor and waits for the
// outcome. It serves the hardware button HTTP endpoint.
func (s *UserSession) DispatchButton(buttonID, pressType string) (ButtonOutcome, error) {
	reply := make(chan ButtonOutcome, 1)
	if !s.post(callMsg{fn: func() { reply <- s.handleButton(buttonID, pressType) }}) {
		return ButtonOutcome{}, protocol.ErrUnknownSession
	}
	select {
	case out := <-reply:
		return out, nil
	case <-s.done:
		return ButtonOutcome{}, protocol.ErrUnknownSession
	}
}
