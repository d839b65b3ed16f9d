// SPDX-License-Identifier: MIT

// Package audio implements the per-session audio plumbing: a bounded live
// queue feeding the fan-out sender and a sliding buffer of recent frames
// used for reconnect catch-up. Frames carry monotonically increasing
// sequence numbers; overflow drops oldest-first and never blocks the
// producer.
package audio

import (
	"sync"
	"time"

	"github.com/openglass/cloudcore/internal/metrics"
)

// Frame is one opaque audio payload with its sequence number.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Payload   []byte
}

// Buffer is the single-producer (session actor) / single-consumer (sender)
// frame store.
type Buffer struct {
	mu     sync.Mutex
	live   []Frame // bounded FIFO feeding the sender
	slide  []Frame // sliding window for catch-up, oldest first
	seq    uint64
	gaps   uint64
	closed bool

	liveCap  int
	slideCap int

	signal chan struct{} // wake-up for the sender, capacity 1
}

// NewBuffer creates a buffer with the given live and sliding capacities in
// frames.
func NewBuffer(liveCap, slideCap int) *Buffer {
	if liveCap < 1 {
		liveCap = 1
	}
	if slideCap < liveCap {
		slideCap = liveCap
	}
	return &Buffer{
		liveCap:  liveCap,
		slideCap: slideCap,
		signal:   make(chan struct{}, 1),
	}
}

// Append stores one inbound frame, assigning the next sequence number. It
// reports whether a live frame was dropped to make room.
func (b *Buffer) Append(payload []byte, ts time.Time) (dropped bool) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	b.seq++
	f := Frame{Seq: b.seq, Timestamp: ts, Payload: payload}

	b.slide = append(b.slide, f)
	if len(b.slide) > b.slideCap {
		b.slide = b.slide[len(b.slide)-b.slideCap:]
	}

	if len(b.live) >= b.liveCap {
		b.live = b.live[1:]
		dropped = true
	}
	b.live = append(b.live, f)
	b.mu.Unlock()

	if dropped {
		metrics.AudioFrames.WithLabelValues("dropped").Inc()
	} else {
		metrics.AudioFrames.WithLabelValues("live").Inc()
	}

	select {
	case b.signal <- struct{}{}:
	default:
	}
	return dropped
}

// next pops the oldest live frame, tracking sequence gaps caused by
// overflow drops. ok is false when the queue is empty.
func (b *Buffer) next(lastSeq uint64) (Frame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.live) == 0 {
		return Frame{}, false
	}
	f := b.live[0]
	b.live = b.live[1:]
	if lastSeq != 0 && f.Seq > lastSeq+1 {
		b.gaps++
		metrics.AudioSeqGaps.Inc()
	}
	return f, true
}

// Slide returns a copy of the sliding buffer, oldest first.
func (b *Buffer) Slide() []Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Frame(nil), b.slide...)
}

// Gaps returns the observed sequence-gap count.
func (b *Buffer) Gaps() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gaps
}

// LastSeq returns the most recently assigned sequence number.
func (b *Buffer) LastSeq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// Close stops accepting frames and wakes the sender so it can exit.
func (b *Buffer) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	select {
	case b.signal <- struct{}{}:
	default:
	}
}

func (b *Buffer) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
