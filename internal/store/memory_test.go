// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreUsersAndApps(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.GetUser(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.PutUser(ctx, &UserProfile{UserID: "u1", Email: "u1@example.com"}))
	p, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1@example.com", p.Email)

	require.NoError(t, s.PutApp(ctx, &AppEntry{PackageName: "com.example.captions", Name: "Captions"}))
	require.NoError(t, s.PutApp(ctx, &AppEntry{PackageName: "com.example.nav", Name: "Nav"}))

	e, err := s.GetApp(ctx, "com.example.nav")
	require.NoError(t, err)
	assert.Equal(t, "Nav", e.Name)

	all, err := s.ListApps(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.PutApp(ctx, &AppEntry{PackageName: "p", Name: "orig"}))

	e, err := s.GetApp(ctx, "p")
	require.NoError(t, err)
	e.Name = "mutated"

	again, err := s.GetApp(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, "orig", again.Name)
}

func TestMemoryStoreInstalledApps(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	apps, err := s.InstalledApps(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, apps)

	require.NoError(t, s.SetInstalledApps(ctx, "u1", []string{"a", "b"}))
	apps, err = s.InstalledApps(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, apps)
}

func TestMemoryStoreTempTokens(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.PutTempToken(ctx, "tok", "u1", time.Minute))
	uid, err := s.ResolveTempToken(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "u1", uid)

	// Tokens stay valid for their full TTL, resolving is not consuming.
	uid, err = s.ResolveTempToken(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "u1", uid)

	_, err = s.ResolveTempToken(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.PutTempToken(ctx, "dead", "u1", -time.Second))
	_, err = s.ResolveTempToken(ctx, "dead")
	assert.ErrorIs(t, err, ErrNotFound)
}
