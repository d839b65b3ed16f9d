// SPDX-License-Identifier: MIT

package protocol

import "errors"

// Error taxonomy shared across the router, transports, and HTTP surface.
var (
	ErrAuthFailed           = errors.New("auth_failed")
	ErrUnknownSession       = errors.New("unknown_session")
	ErrProtocolViolation    = errors.New("protocol_violation")
	ErrSubscriptionRejected = errors.New("subscription_rejected")
	ErrTransportDropped     = errors.New("transport_dropped")
	ErrBackpressureOverflow = errors.New("backpressure_overflow")
	ErrResourceExpired      = errors.New("resource_expired")
	ErrInternalFault        = errors.New("internal_fault")
)
