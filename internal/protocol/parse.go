// SPDX-License-Identifier: MIT

package protocol

import (
	"encoding/json"
	"fmt"
)

type envelope struct {
	Type string `json:"type"`
}

// MessageType peeks at the "type" discriminator without decoding the body.
func MessageType(data []byte) (string, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}
	if env.Type == "" {
		return "", fmt.Errorf("%w: missing type discriminator", ErrProtocolViolation)
	}
	return env.Type, nil
}

func decode[T any](data []byte) (*T, error) {
	var msg T
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}
	return &msg, nil
}

// ParseGlassesMessage decodes one inbound glasses text frame into its typed
// form. Unknown types are a protocol violation; the envelope set is closed.
func ParseGlassesMessage(data []byte) (any, error) {
	t, err := MessageType(data)
	if err != nil {
		return nil, err
	}
	switch t {
	case GlassesConnectionInit:
		return decode[ConnectionInit](data)
	case GlassesVAD:
		return decode[VADStatus](data)
	case GlassesButtonPress:
		return decode[ButtonPressEvent](data)
	case GlassesHeadPosition:
		return decode[HeadPosition](data)
	case GlassesBatteryUpdate:
		return decode[BatteryUpdate](data)
	case GlassesLocationUpdate:
		return decode[LocationUpdate](data)
	case GlassesCalendarEvent:
		return decode[CalendarEvent](data)
	case GlassesCoreStatus:
		return decode[CoreStatus](data)
	case GlassesStartApp, GlassesStopApp:
		return decode[AppLifecycle](data)
	default:
		return nil, fmt.Errorf("%w: unknown glasses message type %q", ErrProtocolViolation, t)
	}
}

// ParseTpaMessage decodes one inbound TPA text frame into its typed form.
func ParseTpaMessage(data []byte) (any, error) {
	t, err := MessageType(data)
	if err != nil {
		return nil, err
	}
	switch t {
	case TpaConnectionInit:
		return decode[TpaInit](data)
	case TpaSubscriptionUpdate:
		return decode[SubscriptionUpdate](data)
	case TpaDisplayRequest:
		return decode[DisplayRequestMsg](data)
	case TpaDashboardContent:
		return decode[DashboardContentUpdate](data)
	case TpaDashboardMode:
		return decode[DashboardModeChange](data)
	case TpaDashboardSystem:
		return decode[DashboardSystemUpdate](data)
	case TpaPhotoRequest:
		return decode[PhotoRequestMsg](data)
	case TpaHeartbeat:
		return decode[Heartbeat](data)
	default:
		return nil, fmt.Errorf("%w: unknown tpa message type %q", ErrProtocolViolation, t)
	}
}

// Marshal encodes an outbound envelope. It panics on unmarshalable values,
// which would be a programming error in the closed envelope set.
func Marshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("protocol: marshal %T: %v", v, err))
	}
	return b
}
