package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), sessionFile)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := loadSession(path, now)
	assert.ErrorIs(t, err, errNotLoggedIn)

	want := session{API: "http://localhost:8080", Token: "tok", UserID: "u1", ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, saveSession(path, want))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := loadSession(path, now)
	require.NoError(t, err)
	assert.Equal(t, want.Token, got.Token)
	assert.True(t, want.ExpiresAt.Equal(got.ExpiresAt))

	_, err = loadSession(path, now.Add(2*time.Hour))
	assert.Error(t, err)

	require.NoError(t, clearSession(path))
	require.NoError(t, clearSession(path))
	_, err = loadSession(path, now)
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestSessionPath_Env(t *testing.T) {
	t.Setenv("SCIP_AUTH_FILE", "/tmp/custom")
	p, err := sessionPath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom", p)
}
