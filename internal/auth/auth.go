// SPDX-License-Identifier: MIT

// Package auth holds the authentication contracts the session core consumes:
// bearer-token verification for glasses and HTTP callers, and API-key
// verification for TPA links. Token issuance itself lives with an external
// identity collaborator; this package only verifies.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openglass/cloudcore/internal/protocol"
	"github.com/openglass/cloudcore/internal/store"
)

// ErrInvalidToken is returned for unknown, malformed, or expired tokens.
var ErrInvalidToken = fmt.Errorf("%w: invalid token", protocol.ErrAuthFailed)

// ErrInvalidAPIKey is returned when a TPA API key does not match its package.
var ErrInvalidAPIKey = fmt.Errorf("%w: invalid api key", protocol.ErrAuthFailed)

// Verifier resolves credentials to identities.
type Verifier interface {
	// VerifyUserToken resolves a bearer token to a user identity.
	VerifyUserToken(ctx context.Context, token string) (string, error)
	// VerifyAPIKey checks a TPA API key against its registered package.
	VerifyAPIKey(ctx context.Context, packageName, apiKey string) error
}

// HashAPIKey returns the hex SHA-256 digest stored in the app catalog.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// StoreVerifier verifies against the persistent store: core tokens are
// exchanged temp tokens, API keys are hashed catalog entries.
type StoreVerifier struct {
	Store store.Store
}

func (v *StoreVerifier) VerifyUserToken(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}
	userID, err := v.Store.ResolveTempToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrInvalidToken
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (v *StoreVerifier) VerifyAPIKey(ctx context.Context, packageName, apiKey string) error {
	entry, err := v.Store.GetApp(ctx, packageName)
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidAPIKey
	}
	if err != nil {
		return err
	}
	got := HashAPIKey(apiKey)
	if subtle.ConstantTimeCompare([]byte(got), []byte(entry.APIKeyHash)) != 1 {
		return ErrInvalidAPIKey
	}
	return nil
}

// IssueTempToken creates and stores a fresh short-lived token for the user.
func IssueTempToken(ctx context.Context, s store.Store, userID string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	if err := s.PutTempToken(ctx, token, userID, ttl); err != nil {
		return "", err
	}
	return token, nil
}
