// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/openglass/cloudcore/internal/protocol"
)

const maxJSONBody = 64 << 10

func decodeJSONBody(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrProtocolViolation, err)
	}
	return nil
}

// handleButtonPress is the HTTP ingress for hardware button events. The
// decision mirrors the websocket path: a subscribed TPA claims the press,
// an unclaimed short photo press falls back to the system photo flow.
func (s *Server) handleButtonPress(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ButtonID  string `json:"buttonId"`
		PressType string `json:"pressType"`
		DeviceID  string `json:"deviceId,omitempty"`
	}
	if err := decodeJSONBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.ButtonID == "" || body.PressType == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "buttonId and pressType required"})
		return
	}

	sess := s.registry.Find(userID(r.Context()))
	if sess == nil {
		// No live session: acknowledge as a no-op.
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}

	out, err := sess.DispatchButton(body.ButtonID, body.PressType)
	if err != nil {
		writeError(w, err)
		return
	}

	if out.RequestID != "" {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":       true,
			"action":        "take_photo",
			"requestId":     out.RequestID,
			"saveToGallery": out.SaveToGallery,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
