// ABOUTME: Tests for file-backed credential persistence and change watching.
// ABOUTME: Covers save/load/clear round-trips and cross-process change notifications.

package auth

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileCredentials_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "solace", "credential.json")
	fc := NewFileCredentials(path)

	_, err := fc.Load()
	assert.ErrorIs(t, err, ErrNoCredential)

	cred := &Credential{
		Email:     "a@b.com",
		Token:     "tok",
		IssuedAt:  time.Now().Truncate(time.Second),
		ExpiresAt: time.Now().Add(time.Hour).Truncate(time.Second),
	}
	require.NoError(t, fc.Save(cred))

	loaded, err := fc.Load()
	require.NoError(t, err)
	assert.Equal(t, cred.Email, loaded.Email)
	assert.Equal(t, cred.Token, loaded.Token)

	require.NoError(t, fc.Clear())
	_, err = fc.Load()
	assert.ErrorIs(t, err, ErrNoCredential)

	// Clearing an absent file is not an error
	require.NoError(t, fc.Clear())
}

func TestFileCredentials_WatchSeesExternalChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credential.json")
	fc := NewFileCredentials(path)

	changes := make(chan struct{}, 8)
	stop, err := fc.Watch(func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)
	defer stop()

	// A different store instance writing the same path stands in for
	// another process signing in
	other := NewFileCredentials(path)
	require.NoError(t, other.Save(&Credential{
		Email:     "a@b.com",
		Token:     "tok",
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("no change notification for external save")
	}
}

func TestManager_ObservesExternalSignIn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credential.json")
	fc := NewFileCredentials(path)

	m := NewManager(&fakeGateway{}, fc)
	require.NoError(t, m.Init(context.Background()))
	defer m.Close()
	require.False(t, m.SignedIn())

	// Another process signs in
	other := NewFileCredentials(path)
	require.NoError(t, other.Save(&Credential{
		Email:     "a@b.com",
		Token:     "tok",
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	require.Eventually(t, m.SignedIn, 2*time.Second, 10*time.Millisecond,
		"manager must adopt the externally written credential")
}
