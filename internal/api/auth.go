// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/openglass/cloudcore/internal/auth"
	"github.com/openglass/cloudcore/internal/log"
)

type userKey struct{}

// userID returns the authenticated user for the request, set by requireUser.
func userID(ctx context.Context) string {
	id, _ := ctx.Value(userKey{}).(string)
	return id
}

// bearerToken extracts the Authorization bearer credential, empty if absent.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

// requireUser authenticates the request with a bearer core token and puts
// the resolved user id on the context.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeUnauthorized(w)
			return
		}
		uid, err := s.verifier.VerifyUserToken(r.Context(), token)
		if err != nil {
			s.logger.Warn().
				Err(err).
				Str("path", r.URL.Path).
				Str(log.FieldEvent, "auth_failed").
				Send()
			writeUnauthorized(w)
			return
		}
		ctx := context.WithValue(r.Context(), userKey{}, uid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

const tempTokenTTL = 10 * time.Minute

// handleTokenExchange issues a short-lived core token for a user identity.
// The endpoint sits behind the platform identity proxy, which vouches for
// the user id it forwards.
func (s *Server) handleTokenExchange(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"userId"`
	}
	if err := decodeJSONBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "userId required"})
		return
	}
	token, err := auth.IssueTempToken(r.Context(), s.store, body.UserID, tempTokenTTL)
	if err != nil {
		writeError(w, err)
		return
	}
	s.logger.Info().
		Str(log.FieldUserID, body.UserID).
		Str(log.FieldEvent, "token_issued").
		Send()
	writeJSON(w, http.StatusOK, map[string]any{
		"token":     token,
		"expiresIn": int(tempTokenTTL.Seconds()),
	})
}
