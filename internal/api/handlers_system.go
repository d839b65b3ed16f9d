// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"time"
)

// handleHealth reports liveness, uptime, and session pressure.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        s.cfg.Version,
		"uptimeSeconds":  int64(time.Since(s.startTime).Seconds()),
		"activeSessions": s.registry.ActiveCount(),
	})
}
