// SPDX-License-Identifier: MIT

// Package transport implements the two duplex websocket endpoints of the
// session core: one glasses connection per authenticated device and one TPA
// connection per TPA-session pair. Text frames carry JSON envelopes; binary
// frames are opaque audio. The link layer handles keepalive, backpressure
// (audio-class frames drop first, control frames never), and close
// detection with (code, reason, abrupt).
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/openglass/cloudcore/internal/metrics"
	"github.com/openglass/cloudcore/internal/protocol"
)

// Frame is one inbound websocket message.
type Frame struct {
	Binary bool
	Data   []byte
}

// CloseInfo reports how a link ended.
type CloseInfo struct {
	Code   websocket.StatusCode
	Reason string
	Abrupt bool
}

// Options configure one link.
type Options struct {
	// HighWater bounds the outbound queue. Audio-class frames are dropped
	// once the queue passes the audio watermark (3/4 of HighWater); a full
	// queue on a control frame terminates the link.
	HighWater    int
	PingInterval time.Duration
	IdleTimeout  time.Duration
	Endpoint     string // metrics label: "glasses" or "tpa"
	Logger       zerolog.Logger
}

type outFrame struct {
	binary bool
	data   []byte
}

// Link is one duplex connection. Send and SendAudio are safe for concurrent
// use; inbound frames are consumed from Inbound by a single reader.
type Link struct {
	conn *websocket.Conn
	opts Options

	out     chan outFrame
	inbound chan Frame

	cancel    context.CancelFunc
	closed    chan struct{}
	closeInfo CloseInfo
	closeMark chan struct{} // guards closeInfo: first closer wins
}

const writeTimeout = 10 * time.Second

// Wrap starts the read and write pumps over an accepted connection.
func Wrap(ctx context.Context, conn *websocket.Conn, opts Options) *Link {
	if opts.HighWater < 8 {
		opts.HighWater = 8
	}
	ctx, cancel := context.WithCancel(ctx)
	l := &Link{
		conn:      conn,
		opts:      opts,
		out:       make(chan outFrame, opts.HighWater),
		inbound:   make(chan Frame, 64),
		cancel:    cancel,
		closed:    make(chan struct{}),
		closeMark: make(chan struct{}, 1),
	}
	go l.readLoop(ctx)
	go l.writeLoop(ctx)
	return l
}

// Inbound returns the inbound frame stream. It is closed when the link ends.
func (l *Link) Inbound() <-chan Frame { return l.inbound }

// Closed is closed once the link has fully shut down.
func (l *Link) Closed() <-chan struct{} { return l.closed }

// CloseInfo is valid after Closed is closed.
func (l *Link) CloseInfo() CloseInfo {
	<-l.closed
	return l.closeInfo
}

// Send enqueues a control-class text frame. Control frames are never
// dropped: a saturated queue is a fatal backpressure overflow and the link
// is terminated.
func (l *Link) Send(data []byte) error {
	select {
	case <-l.closed:
		return protocol.ErrTransportDropped
	default:
	}
	select {
	case l.out <- outFrame{data: data}:
		return nil
	default:
		l.opts.Logger.Error().
			Str("event", "transport.control_overflow").
			Int("queue", len(l.out)).
			Msg("outbound control queue saturated, terminating link")
		l.shutdown(CloseInfo{Code: websocket.StatusPolicyViolation, Reason: "backpressure overflow", Abrupt: true})
		return protocol.ErrBackpressureOverflow
	}
}

// SendBinary enqueues an audio-class binary frame. Past the audio watermark
// the frame is dropped and false returned; the stream continues.
func (l *Link) SendBinary(data []byte) bool {
	select {
	case <-l.closed:
		return false
	default:
	}
	if len(l.out) >= l.audioWater() {
		metrics.BackpressureDrops.WithLabelValues(l.opts.Endpoint).Inc()
		return false
	}
	select {
	case l.out <- outFrame{binary: true, data: data}:
		return true
	default:
		metrics.BackpressureDrops.WithLabelValues(l.opts.Endpoint).Inc()
		return false
	}
}

func (l *Link) audioWater() int { return l.opts.HighWater * 3 / 4 }

// Close ends the link with a normal closure handshake.
func (l *Link) Close(code websocket.StatusCode, reason string) {
	l.shutdown(CloseInfo{Code: code, Reason: reason})
}

func (l *Link) shutdown(info CloseInfo) {
	select {
	case l.closeMark <- struct{}{}:
		l.closeInfo = info
	default:
		return // already closing
	}
	_ = l.conn.Close(info.Code, info.Reason)
	l.cancel()
}

func (l *Link) readLoop(ctx context.Context) {
	defer close(l.inbound)
	defer close(l.closed)
	for {
		readCtx := ctx
		var cancel context.CancelFunc
		if l.opts.IdleTimeout > 0 {
			readCtx, cancel = context.WithTimeout(ctx, l.opts.IdleTimeout)
		}
		typ, data, err := l.conn.Read(readCtx)
		if cancel != nil {
			cancel()
		}
		if err != nil {
			l.recordReadError(ctx, err)
			return
		}
		l.inbound <- Frame{Binary: typ == websocket.MessageBinary, Data: data}
	}
}

func (l *Link) recordReadError(ctx context.Context, err error) {
	info := CloseInfo{Code: websocket.StatusAbnormalClosure, Abrupt: true, Reason: err.Error()}
	if status := websocket.CloseStatus(err); status != -1 {
		info = CloseInfo{Code: status, Reason: err.Error(), Abrupt: status == websocket.StatusAbnormalClosure}
	} else if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		info.Reason = "idle timeout"
	}
	select {
	case l.closeMark <- struct{}{}:
		l.closeInfo = info
	default:
		// A deliberate local close already recorded its info.
	}
	l.cancel()
}

func (l *Link) writeLoop(ctx context.Context) {
	var ping *time.Ticker
	var pingC <-chan time.Time
	if l.opts.PingInterval > 0 {
		ping = time.NewTicker(l.opts.PingInterval)
		pingC = ping.C
		defer ping.Stop()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-l.out:
			typ := websocket.MessageText
			if f.binary {
				typ = websocket.MessageBinary
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := l.conn.Write(wctx, typ, f.data)
			cancel()
			if err != nil {
				l.opts.Logger.Debug().Err(err).Msg("link write failed")
				l.shutdown(CloseInfo{Code: websocket.StatusAbnormalClosure, Reason: fmt.Sprintf("write: %v", err), Abrupt: true})
				return
			}
		case <-pingC:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := l.conn.Ping(wctx)
			cancel()
			if err != nil {
				l.shutdown(CloseInfo{Code: websocket.StatusAbnormalClosure, Reason: "keepalive failed", Abrupt: true})
				return
			}
		}
	}
}

// SendEnvelope marshals and sends one control envelope.
func (l *Link) SendEnvelope(v any) error {
	return l.Send(protocol.Marshal(v))
}
