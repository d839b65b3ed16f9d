// SPDX-License-Identifier: MIT

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openglass/cloudcore/internal/auth"
	"github.com/openglass/cloudcore/internal/cache"
	"github.com/openglass/cloudcore/internal/config"
	"github.com/openglass/cloudcore/internal/session"
	"github.com/openglass/cloudcore/internal/storage"
	"github.com/openglass/cloudcore/internal/store"
)

type testEnv struct {
	srv     *httptest.Server
	store   *store.MemoryStore
	gallery store.Gallery
	objects *storage.MemStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.Defaults()
	cfg.StoreBackend = "memory"
	cfg.Version = "v-test"
	cfg.RateLimitRPS = 0 // keep the IP limiter out of handler tests
	cfg.UploadRateRPS = 1000
	cfg.UploadRateBurst = 1000

	st := store.NewMemoryStore()
	gallery, err := store.OpenSqliteGallery("")
	require.NoError(t, err)
	objects := storage.NewMemStore("/media")
	verifier := &auth.StoreVerifier{Store: st}

	registry := session.NewRegistry(cfg, session.Deps{
		Store:        st,
		InstallState: cache.NewInstallState(cache.NewMemoryCache(0), st),
	})

	s := New(cfg, Deps{
		Registry: registry,
		Store:    st,
		Gallery:  gallery,
		Objects:  objects,
		Verifier: verifier,
	})
	srv := httptest.NewServer(s.Routes())
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = registry.Shutdown(ctx)
		_ = gallery.Close()
	})
	return &testEnv{srv: srv, store: st, gallery: gallery, objects: objects}
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.IssueTempToken(context.Background(), e.store, userID, time.Minute)
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body *bytes.Buffer, contentType string) *http.Response {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req, err := http.NewRequest(method, e.srv.URL+path, body)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/health", "", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "v-test", body["version"])
	assert.Equal(t, float64(0), body["activeSessions"])
}

func TestTokenExchange(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/auth/exchange-user-token", "",
		bytes.NewBufferString(`{"userId":"user-1"}`), "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	assert.Equal(t, float64(600), body["expiresIn"])

	// The issued token authenticates protected endpoints.
	resp = env.do(t, http.MethodGet, "/api/gallery", token, nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTokenExchangeRejectsBadBody(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/auth/exchange-user-token", "",
		bytes.NewBufferString(`{"userId":""}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/auth/exchange-user-token", "",
		bytes.NewBufferString(`{"userId":"u","surprise":true}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRequireUser(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/gallery", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/gallery", "not-a-token", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestButtonPressWithoutSessionIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "user-1")

	// No live session: the press is acknowledged and nothing happens.
	resp := env.do(t, http.MethodPost, "/api/hardware/button-press", token,
		bytes.NewBufferString(`{"buttonId":"photo","pressType":"short"}`), "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, true, body["success"])
	assert.NotContains(t, body, "requestId")
	assert.NotContains(t, body, "action")
}

// connectGlasses completes the websocket handshake against /glasses-ws and
// waits for the connection ack, creating a live session for the token's user.
func (e *testEnv) connectGlasses(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(e.srv.URL, "http")+"/glasses-ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	require.NoError(t, conn.Write(ctx, websocket.MessageText,
		[]byte(`{"type":"connection_init","coreToken":"`+token+`"}`)))
	readGlassesEnvelope(t, conn, "connection_ack")
	return conn
}

// readGlassesEnvelope skips unrelated device traffic, such as dashboard
// display events, until a frame of the wanted type arrives.
func readGlassesEnvelope(t *testing.T, conn *websocket.Conn, wantType string) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		typ, data, err := conn.Read(ctx)
		require.NoError(t, err)
		if typ != websocket.MessageText {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))
		if m["type"] == wantType {
			return m
		}
	}
}

func TestButtonPressDefaultPhotoFlow(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "user-1")
	conn := env.connectGlasses(t, token)

	resp := env.do(t, http.MethodPost, "/api/hardware/button-press", token,
		bytes.NewBufferString(`{"buttonId":"photo","pressType":"short"}`), "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "take_photo", body["action"])
	assert.Equal(t, true, body["saveToGallery"])
	requestID, _ := body["requestId"].(string)
	require.NotEmpty(t, requestID)

	// The device receives the matching capture instruction.
	capture := readGlassesEnvelope(t, conn, "take_photo")
	assert.Equal(t, requestID, capture["requestId"])
	assert.Equal(t, true, capture["saveToGallery"])
}

func TestButtonPressValidation(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "user-1")

	resp := env.do(t, http.MethodPost, "/api/hardware/button-press", token,
		bytes.NewBufferString(`{"buttonId":"photo"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/hardware/button-press", token,
		bytes.NewBufferString(`{"buttonId":"photo","pressType":"short","bogus":1}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGalleryEmptyAndPopulated(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "user-1")

	resp := env.do(t, http.MethodGet, "/api/gallery", token, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	photos, ok := body["photos"].([]any)
	require.True(t, ok)
	assert.Empty(t, photos)

	require.NoError(t, env.gallery.Add(context.Background(), &store.GalleryEntry{
		UserID:      "user-1",
		RequestID:   "req-1",
		PackageName: "system",
		URL:         "/media/photos/user-1/req-1.jpg",
		TakenAt:     time.Now(),
	}))

	resp = env.do(t, http.MethodGet, "/api/gallery", token, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	photos, ok = body["photos"].([]any)
	require.True(t, ok)
	require.Len(t, photos, 1)
	first, ok := photos[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "req-1", first["requestId"])
}

func TestPhotoUploadWithoutSession(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "user-1")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("requestId", "req-1"))
	fw, err := mw.CreateFormFile("photo", "shot.jpg")
	require.NoError(t, err)
	_, err = fw.Write([]byte("jpegbytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp := env.do(t, http.MethodPost, "/api/upload-pov-photo", token, &buf, mw.FormDataContentType())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPhotoUploadHeldWhenOfflineQueued(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "user-1")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("requestId", "req-1"))
	fw, err := mw.CreateFormFile("photo", "shot.jpg")
	require.NoError(t, err)
	_, err = fw.Write([]byte("jpegbytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/api/upload-pov-photo", &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Offline-Queue", "1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	// No session to associate with, but the client asked for queuing: the
	// bytes land in the holding area instead of being rejected.
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["held"])

	data, ok := env.objects.Get("holding/photos/user-1/req-1.jpg")
	require.True(t, ok)
	assert.Equal(t, []byte("jpegbytes"), data)
}

func TestPhotoUploadMissingFields(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "user-1")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("someField", "x"))
	require.NoError(t, mw.Close())

	resp := env.do(t, http.MethodPost, "/api/upload-pov-photo", token, &buf, mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSecurityHeadersPresent(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/health", "", nil, "")
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestPhotoKeyDerivation(t *testing.T) {
	assert.Equal(t, "photos/u1/r1.jpg", photoKey("u1", "r1", "shot.jpg", "image/jpeg"))
	assert.Equal(t, "photos/u1/r1.png", photoKey("u1", "r1", "pic.png", ""))
	key := photoKey("u1", "r1", "", "image/png")
	assert.True(t, strings.HasPrefix(key, "photos/u1/r1."))
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, bearerToken(req))

	req.Header.Set("Authorization", "Bearer abc")
	assert.Equal(t, "abc", bearerToken(req))

	req.Header.Set("Authorization", "bearer xyz")
	assert.Equal(t, "xyz", bearerToken(req))

	req.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, bearerToken(req))
}
