// SPDX-License-Identifier: MIT

package stt

import (
	"context"
	"sync"
)

// NoopProvider accepts audio and never emits results. It is the default
// wiring when no speech backend is configured.
type NoopProvider struct{}

func (NoopProvider) StartStream(ctx context.Context, cfg StreamConfig) (StreamHandle, error) {
	return &noopStream{results: make(chan Result)}, nil
}

type noopStream struct {
	results chan Result
	once    sync.Once
}

func (s *noopStream) SendAudio(frame []byte) error { return nil }

func (s *noopStream) Results() <-chan Result { return s.results }

func (s *noopStream) Close() error {
	s.once.Do(func() { close(s.results) })
	return nil
}
