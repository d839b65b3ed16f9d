// SPDX-License-Identifier: MIT

package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferSequencesFrames(t *testing.T) {
	b := NewBuffer(8, 16)

	for i := 0; i < 3; i++ {
		dropped := b.Append([]byte{byte(i)}, time.Now())
		assert.False(t, dropped)
	}
	assert.Equal(t, uint64(3), b.LastSeq())

	f, ok := b.next(0)
	require.True(t, ok)
	assert.Equal(t, uint64(1), f.Seq)
	assert.Equal(t, []byte{0}, f.Payload)

	f, ok = b.next(f.Seq)
	require.True(t, ok)
	assert.Equal(t, uint64(2), f.Seq)
	assert.Zero(t, b.Gaps())
}

func TestBufferLiveOverflowDropsOldest(t *testing.T) {
	b := NewBuffer(2, 8)

	assert.False(t, b.Append([]byte{1}, time.Now()))
	assert.False(t, b.Append([]byte{2}, time.Now()))
	assert.True(t, b.Append([]byte{3}, time.Now()))

	f, ok := b.next(0)
	require.True(t, ok)
	assert.Equal(t, uint64(2), f.Seq)

	// Consuming past the drop records a sequence gap.
	prev := f.Seq
	f, ok = b.next(prev)
	require.True(t, ok)
	assert.Equal(t, uint64(3), f.Seq)

	b.Append([]byte{4}, time.Now())
	b.Append([]byte{5}, time.Now())
	b.Append([]byte{6}, time.Now()) // drops seq 4
	b.next(f.Seq)                   // seq 5 after a drop of 4: gap
	assert.Equal(t, uint64(1), b.Gaps())
}

func TestBufferSlideKeepsNewest(t *testing.T) {
	b := NewBuffer(2, 4)

	for i := 1; i <= 6; i++ {
		b.Append([]byte{byte(i)}, time.Now())
	}
	slide := b.Slide()
	require.Len(t, slide, 4)
	assert.Equal(t, uint64(3), slide[0].Seq)
	assert.Equal(t, uint64(6), slide[3].Seq)

	// The copy is detached from the internal window.
	slide[0].Payload[0] = 99
	b.Append([]byte{7}, time.Now())
	assert.Equal(t, uint64(4), b.Slide()[0].Seq)
}

func TestBufferCapacityFloors(t *testing.T) {
	b := NewBuffer(0, -1)
	assert.Equal(t, 1, b.liveCap)
	assert.Equal(t, 1, b.slideCap)
}

func TestBufferClosedRejectsAppends(t *testing.T) {
	b := NewBuffer(4, 4)
	b.Append([]byte{1}, time.Now())
	b.Close()

	assert.False(t, b.Append([]byte{2}, time.Now()))
	assert.Equal(t, uint64(1), b.LastSeq())
	assert.True(t, b.isClosed())
}

func TestBufferSignalCoalesces(t *testing.T) {
	b := NewBuffer(8, 8)
	for i := 0; i < 5; i++ {
		b.Append([]byte{byte(i)}, time.Now())
	}
	// Many appends, one pending wake-up.
	<-b.signal
	select {
	case <-b.signal:
		t.Fatal("signal channel held more than one wake-up")
	default:
	}
}
