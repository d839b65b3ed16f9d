// SPDX-License-Identifier: MIT

package protocol

import (
	"encoding/json"
	"time"
)

// TPA → cloud message types.
const (
	TpaConnectionInit     = "tpa_connection_init"
	TpaSubscriptionUpdate = "subscription_update"
	TpaDisplayRequest     = "display_request"
	TpaDashboardContent   = "dashboard_content_update"
	TpaDashboardMode      = "dashboard_mode_change"
	TpaDashboardSystem    = "dashboard_system_update"
	TpaPhotoRequest       = "photo_request"
	TpaHeartbeat          = "heartbeat"
)

// Cloud → TPA message types.
const (
	TpaConnectionAck          = "connection_ack"
	TpaDataStream             = "data_stream"
	TpaDisplayRequestStatus   = "display_request_status"
	TpaDashboardModeChanged   = "dashboard_mode_changed"
	TpaDashboardAlwaysChanged = "dashboard_always_on_changed"
	TpaPhotoTaken             = "photo_taken"
	TpaSessionClosing         = "session_closing"
	TpaSubscriptionRejected   = "subscription_rejected"
)

// TpaInit is the first text frame on a TPA link. SessionID is the user
// session the TPA is joining; the assigned sub-session id is
// "{sessionId}-{packageName}".
type TpaInit struct {
	Type        string `json:"type"`
	PackageName string `json:"packageName"`
	APIKey      string `json:"apiKey"`
	SessionID   string `json:"sessionId"`
}

// SubscriptionUpdate replaces the TPA's full subscription set.
type SubscriptionUpdate struct {
	Type          string       `json:"type"`
	Subscriptions []StreamKind `json:"subscriptions"`
}

// DisplayRequestMsg is the wire form of a display request from a TPA.
type DisplayRequestMsg struct {
	Type       string          `json:"type"`
	View       View            `json:"view"`
	Layout     json.RawMessage `json:"layout"`
	DurationMs int64           `json:"durationMs,omitempty"`
	Priority   Priority        `json:"priority,omitempty"`
}

// DashboardContentUpdate submits TPA content to one or more dashboard modes.
type DashboardContentUpdate struct {
	Type      string          `json:"type"`
	Content   json.RawMessage `json:"content"`
	Modes     []string        `json:"modes"`
	Timestamp time.Time       `json:"timestamp"`
}

// DashboardModeChange switches dashboard mode (system package only).
type DashboardModeChange struct {
	Type string `json:"type"`
	Mode string `json:"mode"`
}

// DashboardSystemUpdate writes one system section (system package only).
type DashboardSystemUpdate struct {
	Type    string `json:"type"`
	Section string `json:"section"`
	Content string `json:"content"`
}

// PhotoRequestMsg lets a TPA request a device photo in its own name.
type PhotoRequestMsg struct {
	Type          string `json:"type"`
	SaveToGallery bool   `json:"saveToGallery,omitempty"`
}

// Heartbeat keeps a TPA link alive.
type Heartbeat struct {
	Type string `json:"type"`
}

// TpaAck acknowledges a successful TPA connection.
type TpaAck struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

// DataStream delivers one subscribed event to a TPA.
type DataStream struct {
	Type       string          `json:"type"`
	StreamKind StreamKind      `json:"streamKind"`
	Payload    json.RawMessage `json:"payload"`
}

// DisplayRequestStatus reports the outcome of a display request.
type DisplayRequestStatus struct {
	Type   string `json:"type"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// DashboardModeChanged broadcasts a dashboard mode change to all TPAs.
type DashboardModeChanged struct {
	Type string `json:"type"`
	Mode string `json:"mode"`
}

// DashboardAlwaysOnChanged broadcasts the always-on overlay toggle.
type DashboardAlwaysOnChanged struct {
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}

// PhotoTaken notifies the originating TPA that its photo request completed.
type PhotoTaken struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
	URL       string `json:"url"`
}

// SubscriptionRejected reports stream kinds refused for missing permissions.
// The remaining kinds of the update stay in effect.
type SubscriptionRejected struct {
	Type     string       `json:"type"`
	Rejected []StreamKind `json:"rejected"`
	Reason   string       `json:"reason"`
}

// SessionClosing is the structured close sent before tearing down a TPA link.
type SessionClosing struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}
