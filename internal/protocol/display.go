// SPDX-License-Identifier: MIT

package protocol

import (
	"fmt"
	"time"
)

// View identifies a glasses display surface.
type View string

const (
	ViewMain      View = "MAIN"
	ViewDashboard View = "DASHBOARD"
)

// Priority of a display request.
type Priority string

const (
	PriorityNormal   Priority = "normal"
	PriorityCritical Priority = "critical"
)

// DisplayRequest is a request to show a layout on a view. It is produced by
// TPAs over the wire and internally (boot screens, dashboard composition).
type DisplayRequest struct {
	PackageName string        `json:"packageName"`
	View        View          `json:"view"`
	Layout      Layout        `json:"layout"`
	Duration    time.Duration `json:"-"`
	DurationMs  int64         `json:"durationMs,omitempty"`
	Priority    Priority      `json:"priority,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
}

// Validate checks view, priority, and layout.
func (r DisplayRequest) Validate() error {
	switch r.View {
	case ViewMain, ViewDashboard:
	default:
		return fmt.Errorf("%w: view %q", ErrProtocolViolation, r.View)
	}
	switch r.Priority {
	case "", PriorityNormal, PriorityCritical:
	default:
		return fmt.Errorf("%w: priority %q", ErrProtocolViolation, r.Priority)
	}
	return r.Layout.Validate()
}

// Display request status outcomes reported back to the submitting TPA.
const (
	StatusDisplayed  = "displayed"
	StatusThrottled  = "throttled"
	StatusQueuedBoot = "queued_boot"
	StatusRejected   = "rejected"
)
