// SPDX-License-Identifier: MIT

package session

import (
	"slices"

	"github.com/openglass/cloudcore/internal/protocol"
	"github.com/openglass/cloudcore/internal/store"
)

// permissionFor maps a stream kind to the catalog permission it requires.
// Empty means the kind is open to every installed app.
func permissionFor(kind protocol.StreamKind) string {
	switch kind.Kind {
	case protocol.StreamAudioChunk, protocol.StreamTranscription, protocol.StreamTranslation:
		return "microphone"
	case protocol.StreamLocation:
		return "location"
	case protocol.StreamCalendarEvent:
		return "calendar"
	case protocol.StreamPhoneNotification:
		return "notifications"
	default:
		return ""
	}
}

// allowedKinds splits a requested subscription set by the app's granted
// permissions. A nil permission list on the catalog entry grants everything.
func allowedKinds(entry *store.AppEntry, kinds []protocol.StreamKind) (allowed, rejected []protocol.StreamKind) {
	if entry == nil || entry.Permissions == nil {
		return kinds, nil
	}
	for _, k := range kinds {
		perm := permissionFor(k)
		if perm == "" || slices.Contains(entry.Permissions, perm) {
			allowed = append(allowed, k)
		} else {
			rejected = append(rejected, k)
		}
	}
	return allowed, rejected
}
