// SPDX-License-Identifier: MIT

package audio

import (
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Target is one audio-frame consumer: a TPA link subscribed to audio_chunk.
// Push must not block; it returns false when the frame was dropped under
// backpressure.
type Target struct {
	PackageName string
	Push        func(frame []byte) bool
}

// Sender drains the live queue and fans frames out to the current target
// set and the speech sink. On glasses reconnect it first drains the sliding
// buffer in sequence order, then resumes live.
type Sender struct {
	buf     *Buffer
	sink    func(payload []byte) // speech provider fan-in; must not block
	targets atomic.Pointer[[]Target]

	reconnect chan struct{}
	done      chan struct{}
	logger    zerolog.Logger
}

// NewSender creates a sender over buf. sink receives every live payload and
// may be nil.
func NewSender(buf *Buffer, sink func([]byte), logger zerolog.Logger) *Sender {
	s := &Sender{
		buf:       buf,
		sink:      sink,
		reconnect: make(chan struct{}, 1),
		done:      make(chan struct{}),
		logger:    logger,
	}
	empty := []Target{}
	s.targets.Store(&empty)
	return s
}

// SetTargets atomically replaces the fan-out set. Called from the session
// actor on subscription changes.
func (s *Sender) SetTargets(targets []Target) {
	copied := append([]Target(nil), targets...)
	s.targets.Store(&copied)
}

// NotifyReconnect tells the sender to replay the sliding buffer before the
// next live frame.
func (s *Sender) NotifyReconnect() {
	select {
	case s.reconnect <- struct{}{}:
	default:
	}
}

// Run is the sender loop. It returns when the buffer is closed.
func (s *Sender) Run() {
	defer close(s.done)
	var lastSeq uint64
	for {
		select {
		case <-s.reconnect:
			s.replay()
		case <-s.buf.signal:
		}
		if s.buf.isClosed() {
			// Drain whatever is left so no frame is silently lost.
			for {
				f, ok := s.buf.next(lastSeq)
				if !ok {
					return
				}
				lastSeq = f.Seq
				s.fan(f)
			}
		}
		for {
			f, ok := s.buf.next(lastSeq)
			if !ok {
				break
			}
			lastSeq = f.Seq
			s.fan(f)
		}
	}
}

// replay fans out the sliding buffer in sequence order, oldest retained
// frame first. No deduplication: consumers key on the sequence prefix.
func (s *Sender) replay() {
	frames := s.buf.Slide()
	s.logger.Debug().Int("frames", len(frames)).Msg("replaying audio sliding buffer")
	for _, f := range frames {
		s.fanTargets(f)
	}
}

func (s *Sender) fan(f Frame) {
	if s.sink != nil {
		s.sink(f.Payload)
	}
	s.fanTargets(f)
}

func (s *Sender) fanTargets(f Frame) {
	targets := *s.targets.Load()
	if len(targets) == 0 {
		return
	}
	encoded := EncodeFrame(f.Seq, f.Payload)
	for _, t := range targets {
		t.Push(encoded)
	}
}

// Done is closed once Run has returned.
func (s *Sender) Done() <-chan struct{} { return s.done }
