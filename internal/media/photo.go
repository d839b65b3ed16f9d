// SPDX-License-Identifier: MIT

// Package media implements the photo-request table: opaque-id reservations
// that match a device upload to the button press or TPA request that
// originated it. One table lives with each user session; the HTTP upload
// handler touches it from outside the session actor, so the table locks
// internally.
package media

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openglass/cloudcore/internal/metrics"
	"github.com/openglass/cloudcore/internal/protocol"
)

// SystemPackage marks requests originated by the hardware-button default
// action rather than a TPA.
const SystemPackage = "system"

// State of a photo request.
type State string

const (
	StatePending   State = "pending"
	StateCompleted State = "completed"
	StateExpired   State = "expired"
)

// PhotoRequest is one reservation.
type PhotoRequest struct {
	ID            string
	UserID        string
	PackageName   string // "system" or the requesting TPA
	SaveToGallery bool
	CreatedAt     time.Time
	State         State
}

// ErrAlreadyResolved is returned for uploads against a request that was
// already matched, expired, or cancelled.
var ErrAlreadyResolved = fmt.Errorf("%w: photo request already resolved", protocol.ErrResourceExpired)

// ErrUnknownRequest is returned for uploads that name no live reservation.
var ErrUnknownRequest = fmt.Errorf("%w: unknown photo request", protocol.ErrResourceExpired)

// ErrWrongUser rejects uploads whose bearer does not own the request.
var ErrWrongUser = fmt.Errorf("%w: photo request belongs to another user", protocol.ErrResourceExpired)

// Table is the per-session photo-request table.
type Table struct {
	mu   sync.Mutex
	reqs map[string]*PhotoRequest
	ttl  time.Duration
	now  func() time.Time
}

// NewTable creates a table with the given request TTL.
func NewTable(ttl time.Duration) *Table {
	return &Table{
		reqs: make(map[string]*PhotoRequest),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Create allocates a fresh pending reservation with an opaque id.
func (t *Table) Create(userID, packageName string, saveToGallery bool) *PhotoRequest {
	req := &PhotoRequest{
		ID:            uuid.NewString(),
		UserID:        userID,
		PackageName:   packageName,
		SaveToGallery: saveToGallery,
		CreatedAt:     t.now(),
		State:         StatePending,
	}
	t.mu.Lock()
	t.reqs[req.ID] = req
	t.mu.Unlock()
	return req
}

// Get returns a copy of the request, if known.
func (t *Table) Get(id string) (PhotoRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	req, ok := t.reqs[id]
	if !ok {
		return PhotoRequest{}, false
	}
	return *req, true
}

// Complete transitions a pending request to completed. A request is matched
// at most once; later uploads for the same id fail.
func (t *Table) Complete(id, userID string) (PhotoRequest, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	req, ok := t.reqs[id]
	if !ok {
		return PhotoRequest{}, ErrUnknownRequest
	}
	if req.UserID != userID {
		return PhotoRequest{}, ErrWrongUser
	}
	if req.State != StatePending {
		return PhotoRequest{}, ErrAlreadyResolved
	}
	if t.now().Sub(req.CreatedAt) > t.ttl {
		req.State = StateExpired
		metrics.PhotoRequests.WithLabelValues("expired").Inc()
		return PhotoRequest{}, ErrAlreadyResolved
	}
	req.State = StateCompleted
	metrics.PhotoRequests.WithLabelValues("completed").Inc()
	return *req, nil
}

// Cancel is best-effort: a pending request becomes expired, so any later
// upload fails cleanly.
func (t *Table) Cancel(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if req, ok := t.reqs[id]; ok && req.State == StatePending {
		req.State = StateExpired
	}
}

// Sweep expires pending requests past their TTL and drops resolved entries
// older than twice the TTL. It returns the ids freshly expired.
func (t *Table) Sweep() []string {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	var expired []string
	for id, req := range t.reqs {
		age := now.Sub(req.CreatedAt)
		if req.State == StatePending && age > t.ttl {
			req.State = StateExpired
			expired = append(expired, id)
			metrics.PhotoRequests.WithLabelValues("expired").Inc()
		}
		if req.State != StatePending && age > 2*t.ttl {
			delete(t.reqs, id)
		}
	}
	return expired
}

// Len reports the number of tracked requests.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.reqs)
}
