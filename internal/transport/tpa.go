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

// APIKeyVerifier checks a TPA API key against its registered package.
type APIKeyVerifier interface {
	VerifyAPIKey(ctx context.Context, packageName, apiKey string) error
}

// TpaSink consumes the frames of one attached TPA link. Implemented by the
// user session.
type TpaSink interface {
	PostTpaFrame(pkg string, f Frame)
	TpaGone(pkg string, info CloseInfo)
}

// TpaAttacher binds an authenticated TPA link to the session it targets.
type TpaAttacher interface {
	AttachTpa(ctx context.Context, userSessionID, packageName string, link *Link) (TpaSink, error)
}

// TpaEndpoint accepts one duplex connection per TPA-session pair.
type TpaEndpoint struct {
	Verifier APIKeyVerifier
	Attacher TpaAttacher
	Options  Options
}

func (e *TpaEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponent("transport.tpa")
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		logger.Debug().Err(err).Msg("websocket accept failed")
		return
	}

	opts := e.Options
	opts.Endpoint = "tpa"
	opts.Logger = logger
	link := Wrap(r.Context(), conn, opts)

	init, ok := awaitTpaInit(link)
	if !ok {
		link.Close(websocket.StatusPolicyViolation, "expected tpa_connection_init")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
	err = e.Verifier.VerifyAPIKey(ctx, init.PackageName, init.APIKey)
	cancel()
	if err != nil {
		logger.Warn().Err(err).
			Str("event", "tpa.auth_failed").
			Str(log.FieldPackage, init.PackageName).
			Msg("rejecting tpa connection")
		link.Close(websocket.StatusPolicyViolation, "auth failed")
		return
	}

	sink, err := e.Attacher.AttachTpa(r.Context(), init.SessionID, init.PackageName, link)
	if err != nil {
		logger.Warn().Err(err).
			Str("event", "tpa.attach_failed").
			Str(log.FieldPackage, init.PackageName).
			Str(log.FieldSessionID, init.SessionID).
			Msg("tpa attach failed")
		_ = link.SendEnvelope(protocol.SessionClosing{Type: protocol.TpaSessionClosing, Reason: "unknown_session"})
		link.Close(websocket.StatusPolicyViolation, "unknown session")
		return
	}

	for f := range link.Inbound() {
		sink.PostTpaFrame(init.PackageName, f)
	}
	info := link.CloseInfo()
	logger.Info().
		Str("event", "tpa.disconnected").
		Str(log.FieldPackage, init.PackageName).
		Int(log.FieldCloseCode, int(info.Code)).
		Bool("abrupt", info.Abrupt).
		Msg("tpa link closed")
	sink.TpaGone(init.PackageName, info)
}

func awaitTpaInit(link *Link) (*protocol.TpaInit, bool) {
	timer := time.NewTimer(handshakeTimeout)
	defer timer.Stop()
	select {
	case f, ok := <-link.Inbound():
		if !ok || f.Binary {
			return nil, false
		}
		msg, err := protocol.ParseTpaMessage(f.Data)
		if err != nil {
			metrics.ProtocolViolations.WithLabelValues("tpa").Inc()
			return nil, false
		}
		init, ok := msg.(*protocol.TpaInit)
		if !ok || init.PackageName == "" || init.SessionID == "" {
			return nil, false
		}
		return init, true
	case <-timer.C:
		return nil, false
	}
}
