// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldRequestID = "request_id"
	FieldUserID    = "user_id"
	FieldPackage   = "package"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Stream / display fields
	FieldStream   = "stream"
	FieldView     = "view"
	FieldSeq      = "seq"
	FieldOutcome  = "outcome"
	FieldPhotoReq = "photo_request_id"

	// Transport fields
	FieldCloseCode   = "close_code"
	FieldCloseReason = "close_reason"
)
