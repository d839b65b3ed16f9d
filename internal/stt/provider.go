// SPDX-License-Identifier: MIT

// Package stt defines the contract of the external speech provider and the
// control component that keeps open provider streams in sync with the
// authoritative transcription/translation subscription set of a session.
//
// A provider wraps a real-time transcription service behind a uniform
// streaming interface: once opened, a stream accepts raw audio frames and
// emits transcript results. Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"time"
)

// StreamConfig describes one requested recognition stream.
type StreamConfig struct {
	// Language is the transcription language (BCP-47).
	Language string
	// TargetLanguage, when non-empty, requests translation into this
	// language rather than plain transcription.
	TargetLanguage string
	// SampleRate is the audio sample rate in Hz.
	SampleRate int
}

// Result is one transcript (or translation) emitted by a stream.
type Result struct {
	Text      string
	Language  string
	Target    string // empty for plain transcription
	IsFinal   bool
	Timestamp time.Time
}

// StreamHandle is an open recognition stream. Callers must Close streams
// they no longer need; all methods are safe for concurrent use.
type StreamHandle interface {
	// SendAudio delivers one opaque audio frame for recognition. Calling
	// SendAudio after Close returns an error.
	SendAudio(frame []byte) error
	// Results returns the stream of transcripts. The channel is closed when
	// the stream ends.
	Results() <-chan Result
	// Close terminates the stream and releases provider resources. Calling
	// Close more than once is safe.
	Close() error
}

// Provider is the abstraction over any speech backend.
type Provider interface {
	StartStream(ctx context.Context, cfg StreamConfig) (StreamHandle, error)
}
