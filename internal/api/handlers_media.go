// SPDX-License-Identifier: MIT

package api

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"time"

	"github.com/openglass/cloudcore/internal/log"
	"github.com/openglass/cloudcore/internal/media"
	"github.com/openglass/cloudcore/internal/metrics"
	"github.com/openglass/cloudcore/internal/protocol"
	"github.com/openglass/cloudcore/internal/store"
)

// handlePhotoUpload receives the device's photo for a pending request. The
// request must still be pending and belong to the uploading user; a late
// upload after expiry is rejected.
func (s *Server) handlePhotoUpload(w http.ResponseWriter, r *http.Request) {
	uid := userID(r.Context())
	if !s.uploads.Allow(uid) {
		writeTooMany(w)
		return
	}
	start := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		writeTooLarge(w)
		return
	}
	requestID := r.FormValue("requestId")
	if requestID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "requestId required"})
		return
	}
	file, header, err := r.FormFile("photo")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "photo file required"})
		return
	}
	defer func() { _ = file.Close() }()

	contentType := header.Header.Get("Content-Type")

	sess := s.registry.Find(uid)
	var req media.PhotoRequest
	if sess != nil {
		// At-most-once: the first matching upload resolves the request.
		req, err = sess.Photos().Complete(requestID, uid)
	}
	if sess == nil || err != nil {
		// Expired or unknown requests may still park the bytes in the
		// holding area when the device asks for it; they are never
		// auto-associated with a request.
		if r.Header.Get(headerOfflineQueue) != "" {
			s.holdUpload(w, r, uid, requestID, header.Filename, contentType, file)
			return
		}
		metrics.PhotoRequests.WithLabelValues("rejected").Inc()
		if sess == nil {
			err = fmt.Errorf("%w: no active session", protocol.ErrUnknownSession)
		}
		writeError(w, err)
		return
	}

	key := photoKey(uid, requestID, header.Filename, contentType)
	url, err := s.objects.Put(r.Context(), key, contentType, file)
	if err != nil {
		metrics.PhotoRequests.WithLabelValues("store_failed").Inc()
		writeError(w, fmt.Errorf("%w: store photo: %v", protocol.ErrInternalFault, err))
		return
	}

	if req.SaveToGallery {
		entry := &store.GalleryEntry{
			UserID:      uid,
			RequestID:   req.ID,
			PackageName: req.PackageName,
			URL:         url,
			TakenAt:     time.Now(),
		}
		if err := s.gallery.Add(r.Context(), entry); err != nil {
			s.logger.Error().
				Err(err).
				Str(log.FieldPhotoReq, req.ID).
				Str(log.FieldEvent, "gallery_add_failed").
				Send()
		}
	}

	_ = s.store.PutPhotoAudit(r.Context(), &store.PhotoAudit{
		RequestID:   req.ID,
		UserID:      uid,
		PackageName: req.PackageName,
		State:       "completed",
		CreatedAt:   req.CreatedAt,
	})

	sess.NotifyPhotoTaken(req, url)
	metrics.PhotoRequests.WithLabelValues("completed").Inc()
	metrics.ObserveUpload(time.Since(start))

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"requestId": req.ID,
		"photoUrl":  url,
	})
}

// headerOfflineQueue opts a late upload into the holding area.
const headerOfflineQueue = "X-Offline-Queue"

// holdUpload stores a late upload under the holding prefix without touching
// the photo table, gallery, or any TPA link.
func (s *Server) holdUpload(w http.ResponseWriter, r *http.Request, uid, requestID, filename, contentType string, file io.Reader) {
	key := path.Join("holding", photoKey(uid, requestID, filename, contentType))
	if _, err := s.objects.Put(r.Context(), key, contentType, file); err != nil {
		metrics.PhotoRequests.WithLabelValues("store_failed").Inc()
		writeError(w, fmt.Errorf("%w: hold photo: %v", protocol.ErrInternalFault, err))
		return
	}
	metrics.PhotoRequests.WithLabelValues("held").Inc()
	s.logger.Info().
		Str(log.FieldPhotoReq, requestID).
		Str(log.FieldEvent, "photo_held").
		Send()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"success": true,
		"held":    true,
	})
}

// photoKey derives the object key, preferring the original extension and
// falling back to the content type.
func photoKey(uid, requestID, filename, contentType string) string {
	ext := path.Ext(filename)
	if ext == "" {
		if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
			ext = exts[0]
		} else {
			ext = ".jpg"
		}
	}
	return path.Join("photos", uid, requestID+ext)
}

// handleGallery lists the user's saved photos, newest first.
func (s *Server) handleGallery(w http.ResponseWriter, r *http.Request) {
	entries, err := s.gallery.ListByUser(r.Context(), userID(r.Context()))
	if err != nil {
		writeError(w, fmt.Errorf("%w: list gallery: %v", protocol.ErrInternalFault, err))
		return
	}
	if entries == nil {
		entries = []*store.GalleryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"photos": entries})
}
