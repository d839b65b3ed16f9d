// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"time"
)

// GalleryEntry is one stored photo reference for a user.
type GalleryEntry struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"userId"`
	RequestID   string    `json:"requestId"`
	PackageName string    `json:"packageName"`
	URL         string    `json:"photoUrl"`
	TakenAt     time.Time `json:"takenAt"`
}

// Gallery is the per-user photo listing collaborator.
type Gallery interface {
	Add(ctx context.Context, entry *GalleryEntry) error
	ListByUser(ctx context.Context, userID string) ([]*GalleryEntry, error)
	Close() error
}
