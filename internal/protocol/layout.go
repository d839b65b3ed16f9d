// SPDX-License-Identifier: MIT

// Package protocol defines the closed, versioned envelope set exchanged over
// the glasses and TPA duplex links, plus the layout variants rendered on the
// glasses display. Text frames carry one JSON envelope with a "type"
// discriminator; binary frames are opaque audio payloads.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Layout type discriminators.
const (
	LayoutTextWall       = "text_wall"
	LayoutDoubleTextWall = "double_text_wall"
	LayoutDashboardCard  = "dashboard_card"
	LayoutReferenceCard  = "reference_card"
)

// Layout is a tagged display layout variant. Exactly one of the pointer
// fields matching LayoutType is set.
type Layout struct {
	LayoutType string `json:"layoutType"`

	// text_wall
	Text string `json:"text,omitempty"`

	// double_text_wall
	TopText    string `json:"topText,omitempty"`
	BottomText string `json:"bottomText,omitempty"`

	// dashboard_card
	LeftText  string `json:"leftText,omitempty"`
	RightText string `json:"rightText,omitempty"`

	// reference_card
	Title string `json:"title,omitempty"`
}

// TextWall returns a single-region text layout.
func TextWall(text string) Layout {
	return Layout{LayoutType: LayoutTextWall, Text: text}
}

// DoubleTextWall returns a two-region text layout.
func DoubleTextWall(top, bottom string) Layout {
	return Layout{LayoutType: LayoutDoubleTextWall, TopText: top, BottomText: bottom}
}

// DashboardCard returns a left/right dashboard card layout.
func DashboardCard(left, right string) Layout {
	return Layout{LayoutType: LayoutDashboardCard, LeftText: left, RightText: right}
}

// ReferenceCard returns a titled text layout.
func ReferenceCard(title, text string) Layout {
	return Layout{LayoutType: LayoutReferenceCard, Title: title, Text: text}
}

// Validate checks the discriminator against the closed variant set.
func (l Layout) Validate() error {
	switch l.LayoutType {
	case LayoutTextWall, LayoutDoubleTextWall, LayoutDashboardCard, LayoutReferenceCard:
		return nil
	default:
		return fmt.Errorf("%w: layout type %q", ErrProtocolViolation, l.LayoutType)
	}
}

// DecodeLayout accepts either a bare string (shorthand for a text wall) or a
// full layout object.
func DecodeLayout(raw json.RawMessage) (Layout, error) {
	if len(raw) == 0 {
		return Layout{}, fmt.Errorf("%w: empty layout", ErrProtocolViolation)
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Layout{}, fmt.Errorf("%w: %v", ErrProtocolViolation, err)
		}
		return TextWall(s), nil
	}
	var l Layout
	if err := json.Unmarshal(raw, &l); err != nil {
		return Layout{}, fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}
	if err := l.Validate(); err != nil {
		return Layout{}, err
	}
	return l, nil
}
