// SPDX-License-Identifier: MIT

package stt

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openglass/cloudcore/internal/protocol"
)

type fakeProvider struct {
	mu      sync.Mutex
	streams map[string]*fakeStream
	started int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{streams: make(map[string]*fakeStream)}
}

func (p *fakeProvider) StartStream(ctx context.Context, cfg StreamConfig) (StreamHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := &fakeStream{cfg: cfg, results: make(chan Result, 8)}
	key := cfg.Language
	if cfg.TargetLanguage != "" {
		key = cfg.Language + ">" + cfg.TargetLanguage
	}
	p.streams[key] = s
	p.started++
	return s, nil
}

func (p *fakeProvider) stream(key string) *fakeStream {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.streams[key]
}

type fakeStream struct {
	cfg     StreamConfig
	results chan Result

	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (s *fakeStream) SendAudio(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame)
	return nil
}

func (s *fakeStream) Results() <-chan Result { return s.results }

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.results)
	}
	return nil
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeStream) frameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func TestControlOpensAndClosesStreams(t *testing.T) {
	p := newFakeProvider()
	c := NewControl(p, 16000, func(Result) {})
	defer c.Close()

	c.Apply(context.Background(), []protocol.StreamKind{
		protocol.Transcription("en-US"),
		protocol.Translation("es-ES", "en-US"),
	})
	assert.True(t, c.Active())
	require.NotNil(t, p.stream("en-US"))
	require.NotNil(t, p.stream("es-ES>en-US"))
	assert.Equal(t, 2, p.started)

	en := p.stream("en-US")
	assert.Equal(t, 16000, en.cfg.SampleRate)
	assert.Empty(t, en.cfg.TargetLanguage)
	assert.Equal(t, "en-US", p.stream("es-ES>en-US").cfg.TargetLanguage)

	// Re-applying the same set is a no-op.
	c.Apply(context.Background(), []protocol.StreamKind{
		protocol.Transcription("en-US"),
		protocol.Translation("es-ES", "en-US"),
	})
	assert.Equal(t, 2, p.started)

	// Dropping the translation pair closes only its stream.
	c.Apply(context.Background(), []protocol.StreamKind{
		protocol.Transcription("en-US"),
	})
	assert.True(t, p.stream("es-ES>en-US").isClosed())
	assert.False(t, en.isClosed())

	c.Apply(context.Background(), nil)
	assert.True(t, en.isClosed())
	assert.False(t, c.Active())
}

func TestControlFanAudio(t *testing.T) {
	p := newFakeProvider()
	c := NewControl(p, 16000, func(Result) {})
	defer c.Close()

	c.FanAudio([]byte{1, 2}) // no streams yet, dropped

	c.Apply(context.Background(), []protocol.StreamKind{
		protocol.Transcription("en-US"),
		protocol.Transcription("de-DE"),
	})
	c.FanAudio([]byte{3, 4})
	c.FanAudio([]byte{5, 6})

	assert.Equal(t, 2, p.stream("en-US").frameCount())
	assert.Equal(t, 2, p.stream("de-DE").frameCount())
}

func TestControlPumpsResults(t *testing.T) {
	p := newFakeProvider()
	results := make(chan Result, 8)
	c := NewControl(p, 16000, func(r Result) { results <- r })

	c.Apply(context.Background(), []protocol.StreamKind{protocol.Transcription("en-US")})
	p.stream("en-US").results <- Result{Text: "hello", Language: "en-US", IsFinal: true}

	select {
	case got := <-results:
		assert.Equal(t, "hello", got.Text)
		assert.Equal(t, "en-US", got.Language)
		assert.True(t, got.IsFinal)
	case <-time.After(2 * time.Second):
		t.Fatal("result never reached the callback")
	}

	// Close waits for the pump goroutines to drain.
	c.Close()
	assert.True(t, p.stream("en-US").isClosed())
	assert.False(t, c.Active())
}

func TestControlIgnoresNonRecognitionKinds(t *testing.T) {
	p := newFakeProvider()
	c := NewControl(p, 16000, func(Result) {})
	defer c.Close()

	c.Apply(context.Background(), []protocol.StreamKind{
		protocol.Simple(protocol.StreamAudioChunk),
		protocol.ButtonPress("photo"),
	})
	assert.False(t, c.Active())
	assert.Zero(t, p.started)
}
