// SPDX-License-Identifier: MIT

// Package store defines the persisted-state contract of the session core:
// user profiles, the app catalog, per-user install lists, temp tokens with
// TTL, and optional photo-request audit records. Sessions themselves are
// never persisted.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned for missing documents.
var ErrNotFound = errors.New("store: not found")

// UserProfile is the persisted profile document for one user identity.
type UserProfile struct {
	UserID      string    `json:"userId"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"displayName,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// AppEntry is one app catalog document.
type AppEntry struct {
	PackageName string   `json:"packageName"`
	Name        string   `json:"name"`
	APIKeyHash  string   `json:"apiKeyHash"`
	Permissions []string `json:"permissions,omitempty"`
	IsSystem    bool     `json:"isSystem,omitempty"`
}

// PhotoAudit is an optional audit record for a photo request.
type PhotoAudit struct {
	RequestID   string    `json:"requestId"`
	UserID      string    `json:"userId"`
	PackageName string    `json:"packageName"`
	State       string    `json:"state"`
	CreatedAt   time.Time `json:"createdAt"`
	ResolvedAt  time.Time `json:"resolvedAt,omitempty"`
}

// Store is the process-external key-value/document collaborator.
type Store interface {
	GetUser(ctx context.Context, userID string) (*UserProfile, error)
	PutUser(ctx context.Context, profile *UserProfile) error

	GetApp(ctx context.Context, packageName string) (*AppEntry, error)
	PutApp(ctx context.Context, entry *AppEntry) error
	ListApps(ctx context.Context) ([]*AppEntry, error)

	// InstalledApps returns the package names installed for the user.
	InstalledApps(ctx context.Context, userID string) ([]string, error)
	SetInstalledApps(ctx context.Context, userID string, packages []string) error

	// PutTempToken stores an opaque token mapped to a user with a TTL.
	PutTempToken(ctx context.Context, token, userID string, ttl time.Duration) error
	// ResolveTempToken resolves a temp token to its user; expired or unknown
	// tokens return ErrNotFound. The token stays valid until its TTL.
	ResolveTempToken(ctx context.Context, token string) (string, error)

	PutPhotoAudit(ctx context.Context, rec *PhotoAudit) error

	Close() error
}
