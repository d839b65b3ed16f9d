// SPDX-License-Identifier: MIT

package stt

import (
	"context"
	"sync"

	"github.com/openglass/cloudcore/internal/log"
	"github.com/openglass/cloudcore/internal/protocol"
)

// Control owns the set of open provider streams for one session. Whenever
// the union of transcription/translation subscriptions changes, Apply diffs
// the requested language pairs against the open streams and opens or closes
// provider streams accordingly. FanAudio forwards audio frames to every open
// stream.
type Control struct {
	provider   Provider
	sampleRate int
	onResult   func(Result)

	mu      sync.Mutex
	streams map[string]StreamHandle // keyed by canonical stream kind string
	wg      sync.WaitGroup
}

// NewControl creates a Control on top of provider. onResult receives every
// transcript from every open stream; it must not block.
func NewControl(provider Provider, sampleRate int, onResult func(Result)) *Control {
	return &Control{
		provider:   provider,
		sampleRate: sampleRate,
		onResult:   onResult,
		streams:    make(map[string]StreamHandle),
	}
}

// Apply reconciles open streams with the authoritative language-pair list.
func (c *Control) Apply(ctx context.Context, kinds []protocol.StreamKind) {
	want := make(map[string]StreamConfig, len(kinds))
	for _, k := range kinds {
		switch k.Kind {
		case protocol.StreamTranscription:
			want[k.String()] = StreamConfig{Language: k.Lang, SampleRate: c.sampleRate}
		case protocol.StreamTranslation:
			want[k.String()] = StreamConfig{Language: k.Lang, TargetLanguage: k.Target, SampleRate: c.sampleRate}
		}
	}

	logger := log.WithContext(ctx, log.WithComponent("stt"))

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, handle := range c.streams {
		if _, ok := want[key]; !ok {
			if err := handle.Close(); err != nil {
				logger.Warn().Err(err).Str(log.FieldStream, key).Msg("closing stt stream failed")
			}
			delete(c.streams, key)
			logger.Debug().Str(log.FieldStream, key).Msg("stt stream closed")
		}
	}

	for key, cfg := range want {
		if _, ok := c.streams[key]; ok {
			continue
		}
		handle, err := c.provider.StartStream(ctx, cfg)
		if err != nil {
			logger.Warn().Err(err).Str(log.FieldStream, key).Msg("opening stt stream failed")
			continue
		}
		c.streams[key] = handle
		c.wg.Add(1)
		go c.pump(key, handle)
		logger.Debug().Str(log.FieldStream, key).Msg("stt stream opened")
	}
}

func (c *Control) pump(key string, handle StreamHandle) {
	defer c.wg.Done()
	for res := range handle.Results() {
		c.onResult(res)
	}
}

// FanAudio forwards one audio frame to every open stream.
func (c *Control) FanAudio(frame []byte) {
	c.mu.Lock()
	handles := make([]StreamHandle, 0, len(c.streams))
	for _, h := range c.streams {
		handles = append(handles, h)
	}
	c.mu.Unlock()
	for _, h := range handles {
		_ = h.SendAudio(frame)
	}
}

// Active reports whether any recognition stream is open.
func (c *Control) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.streams) > 0
}

// Close shuts down every open stream and waits for the result pumps.
func (c *Control) Close() {
	c.mu.Lock()
	for key, h := range c.streams {
		_ = h.Close()
		delete(c.streams, key)
	}
	c.mu.Unlock()
	c.wg.Wait()
}
