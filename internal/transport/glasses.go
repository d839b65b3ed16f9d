// SPDX-License-Identifier: MIT

package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/openglass/cloudcore/internal/log"
	"github.com/openglass/cloudcore/internal/metrics"
	"github.com/openglass/cloudcore/internal/protocol"
)

const handshakeTimeout = 10 * time.Second

// UserTokenVerifier resolves a glasses core token to a user identity.
type UserTokenVerifier interface {
	VerifyUserToken(ctx context.Context, token string) (string, error)
}

// GlassesSink consumes the frames of one attached glasses link. It is
// implemented by the user session.
type GlassesSink interface {
	PostGlassesFrame(f Frame)
	GlassesGone(info CloseInfo)
}

// GlassesAttacher hands an authenticated glasses link to its session,
// creating or re-attaching as needed. Implemented by the session registry.
type GlassesAttacher interface {
	AttachGlasses(ctx context.Context, userID string, link *Link) (GlassesSink, error)
}

// GlassesEndpoint accepts one duplex connection per authenticated device.
type GlassesEndpoint struct {
	Verifier UserTokenVerifier
	Attacher GlassesAttacher
	Options  Options
}

func (e *GlassesEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponent("transport.glasses")
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		logger.Debug().Err(err).Msg("websocket accept failed")
		return
	}

	opts := e.Options
	opts.Endpoint = "glasses"
	opts.Logger = logger
	link := Wrap(r.Context(), conn, opts)

	init, ok := awaitInit(link)
	if !ok {
		link.Close(websocket.StatusPolicyViolation, "expected connection_init")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
	userID, err := e.Verifier.VerifyUserToken(ctx, init.CoreToken)
	cancel()
	if err != nil {
		logger.Warn().Err(err).Str("event", "glasses.auth_failed").Msg("rejecting glasses connection")
		_ = link.SendEnvelope(protocol.AuthError{Type: protocol.GlassesAuthError})
		link.Close(websocket.StatusPolicyViolation, "auth failed")
		return
	}

	sink, err := e.Attacher.AttachGlasses(r.Context(), userID, link)
	if err != nil {
		logger.Error().Err(err).Str(log.FieldUserID, userID).Msg("glasses attach failed")
		_ = link.SendEnvelope(protocol.ConnectionError{Type: protocol.GlassesConnectionError, Message: "attach failed"})
		link.Close(websocket.StatusInternalError, "attach failed")
		return
	}

	// Pump frames into the session inbox until the link ends.
	for f := range link.Inbound() {
		sink.PostGlassesFrame(f)
	}
	info := link.CloseInfo()
	logger.Info().
		Str("event", "glasses.disconnected").
		Str(log.FieldUserID, userID).
		Int(log.FieldCloseCode, int(info.Code)).
		Bool("abrupt", info.Abrupt).
		Msg("glasses link closed")
	sink.GlassesGone(info)
}

// awaitInit reads the first text frame and decodes the connection_init
// envelope, enforcing the handshake timeout.
func awaitInit(link *Link) (*protocol.ConnectionInit, bool) {
	timer := time.NewTimer(handshakeTimeout)
	defer timer.Stop()
	select {
	case f, ok := <-link.Inbound():
		if !ok || f.Binary {
			return nil, false
		}
		msg, err := protocol.ParseGlassesMessage(f.Data)
		if err != nil {
			metrics.ProtocolViolations.WithLabelValues("glasses").Inc()
			return nil, false
		}
		init, ok := msg.(*protocol.ConnectionInit)
		return init, ok
	case <-timer.C:
		return nil, false
	}
}
