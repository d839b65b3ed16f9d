// SPDX-License-Identifier: MIT

package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openglass/cloudcore/internal/cache"
	"github.com/openglass/cloudcore/internal/config"
	"github.com/openglass/cloudcore/internal/store"
	"github.com/openglass/cloudcore/internal/transport"
)

// liveEnv runs a registry against real websocket links, the way the
// transport endpoints drive it in production.
type liveEnv struct {
	reg      *Registry
	store    store.Store
	installs *cache.InstallState
}

func newLiveEnv(t *testing.T) *liveEnv {
	t.Helper()
	cfg := config.Defaults()
	st := store.NewMemoryStore()
	installs := cache.NewInstallState(cache.NewMemoryCache(0), st)
	r := NewRegistry(cfg, Deps{Store: st, InstallState: installs})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, r.Shutdown(ctx))
	})
	return &liveEnv{reg: r, store: st, installs: installs}
}

// serverLink spins up a server whose handler wraps the accepted connection
// and hands the link to the test; the returned client conn speaks raw
// websocket.
func serverLink(t *testing.T) (*transport.Link, *websocket.Conn) {
	t.Helper()
	links := make(chan *transport.Link, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		link := transport.Wrap(r.Context(), conn, transport.Options{HighWater: 64, Logger: zerolog.Nop()})
		links <- link
		<-link.Closed()
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })

	select {
	case link := <-links:
		return link, conn
	case <-time.After(5 * time.Second):
		t.Fatal("server never produced a link")
		return nil, nil
	}
}

// readEnvelope reads text frames off conn until one with the wanted type
// arrives, skipping unrelated traffic such as dashboard display events.
func readEnvelope(t *testing.T, conn *websocket.Conn, wantType string) map[string]any {
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

// readBinary reads frames off conn until a binary one arrives.
func readBinary(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		typ, data, err := conn.Read(ctx)
		require.NoError(t, err)
		if typ == websocket.MessageBinary {
			return data
		}
	}
}

func writeText(t *testing.T, conn *websocket.Conn, payload string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(payload)))
}

func (e *liveEnv) attachGlasses(t *testing.T, userID string) (*websocket.Conn, string) {
	t.Helper()
	link, conn := serverLink(t)
	sink, err := e.reg.AttachGlasses(context.Background(), userID, link)
	require.NoError(t, err)
	go func() {
		for f := range link.Inbound() {
			sink.PostGlassesFrame(f)
		}
		sink.GlassesGone(link.CloseInfo())
	}()
	ack := readEnvelope(t, conn, "connection_ack")
	sessionID, _ := ack["sessionId"].(string)
	require.NotEmpty(t, sessionID)
	return conn, sessionID
}

func (e *liveEnv) attachTpa(t *testing.T, sessionID, pkg string) *websocket.Conn {
	t.Helper()
	link, conn := serverLink(t)
	sink, err := e.reg.AttachTpa(context.Background(), sessionID, pkg, link)
	require.NoError(t, err)
	go func() {
		for f := range link.Inbound() {
			sink.PostTpaFrame(pkg, f)
		}
		sink.TpaGone(pkg, link.CloseInfo())
	}()
	readEnvelope(t, conn, "connection_ack")
	return conn
}

func (e *liveEnv) installApp(t *testing.T, userID, pkg string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.store.PutApp(ctx, &store.AppEntry{PackageName: pkg, Name: pkg}))
	require.NoError(t, e.store.SetInstalledApps(ctx, userID, []string{pkg}))
}

func writeGlassesAudio(t *testing.T, conn *websocket.Conn, data []byte) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageBinary, data))
}

func TestTpaSupersedeKeepsAudioFlowing(t *testing.T) {
	const pkg = "com.example.captions"
	env := newLiveEnv(t)
	env.installApp(t, "user-1", pkg)

	glasses, sessionID := env.attachGlasses(t, "user-1")
	tpa1 := env.attachTpa(t, sessionID, pkg)

	writeText(t, tpa1, `{"type":"subscription_update","subscriptions":["audio_chunk"]}`)
	// The mic enable on the device confirms the subscription took effect.
	mic := readEnvelope(t, glasses, "microphone_state_change")
	assert.Equal(t, true, mic["isMicrophoneEnabled"])

	writeGlassesAudio(t, glasses, []byte{1, 2, 3})
	assert.Equal(t, []byte{1, 2, 3}, readBinary(t, tpa1))

	// A second connection for the same package supersedes the first. The
	// surviving subscription must feed the new link, not the dead one.
	tpa2 := env.attachTpa(t, sessionID, pkg)
	readEnvelope(t, tpa1, "session_closing")

	writeGlassesAudio(t, glasses, []byte{4, 5, 6})
	assert.Equal(t, []byte{4, 5, 6}, readBinary(t, tpa2))
}

func TestRecheckClosesUninstalledTpa(t *testing.T) {
	const pkg = "com.example.captions"
	env := newLiveEnv(t)
	env.installApp(t, "user-1", pkg)

	_, sessionID := env.attachGlasses(t, "user-1")
	tpa := env.attachTpa(t, sessionID, pkg)

	sess := env.reg.Find("user-1")
	require.NotNil(t, sess)

	// Still installed: the recheck leaves the link alone.
	require.True(t, sess.post(callMsg{fn: sess.recheckInstalled}))

	ctx := context.Background()
	require.NoError(t, env.store.SetInstalledApps(ctx, "user-1", nil))
	env.installs.Invalidate("user-1")
	require.True(t, sess.post(callMsg{fn: sess.recheckInstalled}))

	closing := readEnvelope(t, tpa, "session_closing")
	assert.Equal(t, "uninstalled", closing["reason"])

	readCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for {
		_, _, err := tpa.Read(readCtx)
		if err != nil {
			assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
			break
		}
	}
}
