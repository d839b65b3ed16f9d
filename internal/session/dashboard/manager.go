// SPDX-License-Identifier: MIT

// Package dashboard implements the per-session dashboard state machine:
// mode, system sections, per-mode content queues, and layout composition.
// Only the designated system dashboard package may change mode or write
// system sections; any TPA may submit content to the queues. All methods
// run on the session actor.
package dashboard

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/openglass/cloudcore/internal/protocol"
)

// Mode selects the composition rules.
type Mode string

const (
	ModeMain     Mode = "MAIN"
	ModeExpanded Mode = "EXPANDED"
	ModeAlwaysOn Mode = "ALWAYS_ON"
	ModeNone     Mode = "none"
)

// ParseMode validates a wire mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeMain, ModeExpanded, ModeAlwaysOn, ModeNone:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: dashboard mode %q", protocol.ErrProtocolViolation, s)
	}
}

// Sections are the four system-owned corner strings.
type Sections struct {
	TopLeft     string
	TopRight    string
	BottomLeft  string
	BottomRight string
}

type contentEntry struct {
	text      string
	timestamp time.Time
}

// Hooks route composed layouts and broadcasts out of the manager. Submit
// hands the composed dashboard layout to the display manager; Broadcast
// sends an envelope to every connected TPA.
type Hooks interface {
	SubmitDashboard(r protocol.DisplayRequest)
	Broadcast(msg any)
}

// Manager owns the dashboard state for one session.
type Manager struct {
	systemPackage string
	hooks         Hooks

	mode     Mode
	alwaysOn bool
	sections Sections
	queues   map[Mode]map[string]contentEntry

	now func() time.Time
}

// NewManager creates a dashboard manager starting in MAIN mode.
func NewManager(systemPackage string, hooks Hooks) *Manager {
	return &Manager{
		systemPackage: systemPackage,
		hooks:         hooks,
		mode:          ModeMain,
		queues: map[Mode]map[string]contentEntry{
			ModeMain:     {},
			ModeExpanded: {},
			ModeAlwaysOn: {},
		},
		now: time.Now,
	}
}

// Mode returns the current dashboard mode.
func (m *Manager) Mode() Mode { return m.mode }

// SetMode changes the dashboard mode. Only the system dashboard package may
// call it; violations are rejected without state change.
func (m *Manager) SetMode(pkg string, mode Mode) error {
	if pkg != m.systemPackage {
		return fmt.Errorf("%w: package %q may not change dashboard mode", protocol.ErrProtocolViolation, pkg)
	}
	if m.mode == mode {
		return nil
	}
	m.mode = mode
	m.hooks.Broadcast(protocol.DashboardModeChanged{
		Type: protocol.TpaDashboardModeChanged,
		Mode: string(mode),
	})
	m.Recompose()
	return nil
}

// SetAlwaysOn toggles the always-on overlay flag (system package only).
func (m *Manager) SetAlwaysOn(pkg string, enabled bool) error {
	if pkg != m.systemPackage {
		return fmt.Errorf("%w: package %q may not change always-on state", protocol.ErrProtocolViolation, pkg)
	}
	if m.alwaysOn == enabled {
		return nil
	}
	m.alwaysOn = enabled
	m.hooks.Broadcast(protocol.DashboardAlwaysOnChanged{
		Type:    protocol.TpaDashboardAlwaysChanged,
		Enabled: enabled,
	})
	m.Recompose()
	return nil
}

// SetSystemSection writes one corner string (system package only).
func (m *Manager) SetSystemSection(pkg, section, content string) error {
	if pkg != m.systemPackage {
		return fmt.Errorf("%w: package %q may not write system sections", protocol.ErrProtocolViolation, pkg)
	}
	switch section {
	case "topLeft":
		m.sections.TopLeft = content
	case "topRight":
		m.sections.TopRight = content
	case "bottomLeft":
		m.sections.BottomLeft = content
	case "bottomRight":
		m.sections.BottomRight = content
	default:
		return fmt.Errorf("%w: unknown dashboard section %q", protocol.ErrProtocolViolation, section)
	}
	m.Recompose()
	return nil
}

// SubmitContent stores a TPA's content for the named modes, overwriting any
// prior entry of the same package.
func (m *Manager) SubmitContent(pkg string, raw json.RawMessage, modes []string, ts time.Time) error {
	text, err := contentText(raw)
	if err != nil {
		return err
	}
	if ts.IsZero() {
		ts = m.now()
	}
	if len(modes) == 0 {
		modes = []string{string(ModeMain)}
	}
	for _, ms := range modes {
		mode, err := ParseMode(ms)
		if err != nil {
			return err
		}
		if mode == ModeNone {
			continue
		}
		m.queues[mode][pkg] = contentEntry{text: text, timestamp: ts}
	}
	m.Recompose()
	return nil
}

// contentText flattens a content value (plain string or tagged layout) into
// its display text.
func contentText(raw json.RawMessage) (string, error) {
	layout, err := protocol.DecodeLayout(raw)
	if err != nil {
		return "", err
	}
	switch layout.LayoutType {
	case protocol.LayoutTextWall:
		return layout.Text, nil
	case protocol.LayoutDoubleTextWall:
		return layout.TopText + "\n" + layout.BottomText, nil
	case protocol.LayoutDashboardCard:
		return layout.LeftText + "\n" + layout.RightText, nil
	case protocol.LayoutReferenceCard:
		return layout.Title + "\n" + layout.Text, nil
	default:
		return "", fmt.Errorf("%w: layout type %q", protocol.ErrProtocolViolation, layout.LayoutType)
	}
}

// RemovePackage drops a disconnected TPA's entries from every queue.
func (m *Manager) RemovePackage(pkg string) {
	changed := false
	for _, q := range m.queues {
		if _, ok := q[pkg]; ok {
			delete(q, pkg)
			changed = true
		}
	}
	if changed {
		m.Recompose()
	}
}

// latest returns the newest content entry for a mode, by timestamp.
func (m *Manager) latest(mode Mode) string {
	var best contentEntry
	found := false
	for _, e := range m.queues[mode] {
		if !found || e.timestamp.After(best.timestamp) {
			best = e
			found = true
		}
	}
	if !found {
		return ""
	}
	return best.text
}

// joinNonEmpty joins parts with sep, skipping empties.
func joinNonEmpty(sep string, parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}

// Compose renders the dashboard layout for the current mode. The second
// return is false in mode none, when nothing is rendered.
func (m *Manager) Compose() (protocol.Layout, bool) {
	switch m.mode {
	case ModeMain:
		top := joinNonEmpty("\n", m.sections.TopLeft, m.sections.BottomLeft)
		bottom := joinNonEmpty("\n", m.sections.TopRight, m.sections.BottomRight)
		if entry := m.latest(ModeMain); entry != "" {
			bottom = bottom + "\n\n" + entry
		}
		return protocol.DoubleTextWall(top, bottom), true
	case ModeExpanded:
		text := fmt.Sprintf("%s | %s\n%s", m.sections.TopLeft, m.sections.TopRight, m.latest(ModeExpanded))
		return protocol.TextWall(text), true
	case ModeAlwaysOn:
		right := joinNonEmpty("\n", m.sections.TopRight, m.latest(ModeAlwaysOn))
		return protocol.DashboardCard(m.sections.TopLeft, right), true
	default:
		return protocol.Layout{}, false
	}
}

// Recompose renders the current mode and submits it to the display manager
// on the dashboard view. Called on every state change and on the periodic
// tick so time-keyed sections keep moving without explicit updates.
func (m *Manager) Recompose() {
	layout, ok := m.Compose()
	if !ok {
		return
	}
	m.hooks.SubmitDashboard(protocol.DisplayRequest{
		PackageName: m.systemPackage,
		View:        protocol.ViewDashboard,
		Layout:      layout,
		Timestamp:   m.now(),
	})
}
