// SPDX-License-Identifier: MIT

package protocol

import (
	"fmt"
	"strings"
)

// Base stream kinds. The set is closed; parameterised kinds carry their
// parameters in the canonical textual form, e.g. "transcription(en-US)",
// "translation(es-ES,en-US)", "button_press(photo)".
const (
	StreamAudioChunk        = "audio_chunk"
	StreamTranscription     = "transcription"
	StreamTranslation       = "translation"
	StreamPhoneNotification = "phone_notification"
	StreamHeadPosition      = "head_position"
	StreamButtonPress       = "button_press"
	StreamGlassesBattery    = "glasses_battery"
	StreamLocation          = "location"
	StreamCalendarEvent     = "calendar_event"
	StreamPhotoTaken        = "photo_taken"
)

// StreamKind identifies one subscribable stream, including parameters.
type StreamKind struct {
	Kind string
	// Lang is the language for transcription, the source language for
	// translation, or the button id for button_press.
	Lang string
	// Target is the target language for translation.
	Target string
}

// Transcription returns the transcription kind for the given language.
func Transcription(lang string) StreamKind {
	return StreamKind{Kind: StreamTranscription, Lang: lang}
}

// Translation returns the translation kind for the given language pair.
func Translation(from, to string) StreamKind {
	return StreamKind{Kind: StreamTranslation, Lang: from, Target: to}
}

// ButtonPress returns the button_press kind for the given button id.
func ButtonPress(buttonID string) StreamKind {
	return StreamKind{Kind: StreamButtonPress, Lang: buttonID}
}

// Simple returns an unparameterised stream kind.
func Simple(kind string) StreamKind {
	return StreamKind{Kind: kind}
}

// String renders the canonical textual form used on the wire.
func (k StreamKind) String() string {
	switch k.Kind {
	case StreamTranscription, StreamButtonPress:
		if k.Lang == "" {
			return k.Kind
		}
		return fmt.Sprintf("%s(%s)", k.Kind, k.Lang)
	case StreamTranslation:
		return fmt.Sprintf("%s(%s,%s)", k.Kind, k.Lang, k.Target)
	default:
		return k.Kind
	}
}

// ParseStreamKind parses the canonical textual form. Unknown base kinds are
// a protocol violation; the kind set is closed.
func ParseStreamKind(s string) (StreamKind, error) {
	base := s
	var params string
	if i := strings.IndexByte(s, '('); i >= 0 {
		if !strings.HasSuffix(s, ")") {
			return StreamKind{}, fmt.Errorf("%w: malformed stream kind %q", ErrProtocolViolation, s)
		}
		base = s[:i]
		params = s[i+1 : len(s)-1]
	}

	switch base {
	case StreamAudioChunk, StreamPhoneNotification, StreamHeadPosition,
		StreamGlassesBattery, StreamLocation, StreamCalendarEvent, StreamPhotoTaken:
		if params != "" {
			return StreamKind{}, fmt.Errorf("%w: stream kind %q takes no parameters", ErrProtocolViolation, base)
		}
		return Simple(base), nil
	case StreamTranscription:
		return Transcription(params), nil
	case StreamButtonPress:
		if params == "" {
			return StreamKind{}, fmt.Errorf("%w: button_press requires a button id", ErrProtocolViolation)
		}
		return ButtonPress(params), nil
	case StreamTranslation:
		parts := strings.SplitN(params, ",", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return StreamKind{}, fmt.Errorf("%w: translation requires a language pair", ErrProtocolViolation)
		}
		return Translation(parts[0], parts[1]), nil
	default:
		return StreamKind{}, fmt.Errorf("%w: unknown stream kind %q", ErrProtocolViolation, base)
	}
}

// MarshalText implements encoding.TextMarshaler so stream kinds can key JSON maps.
func (k StreamKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *StreamKind) UnmarshalText(b []byte) error {
	parsed, err := ParseStreamKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// RequiresAudio reports whether the kind consumes the microphone stream.
func (k StreamKind) RequiresAudio() bool {
	switch k.Kind {
	case StreamAudioChunk, StreamTranscription, StreamTranslation:
		return true
	default:
		return false
	}
}
