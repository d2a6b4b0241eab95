// ABOUTME: Tests for the authentication session manager.
// ABOUTME: Covers local validation, verify success/failure, idempotent init, and stale resolutions.

package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway scripts passcode exchange outcomes.
type fakeGateway struct {
	mu           sync.Mutex
	requestErr   error
	verifyErr    error
	requested    []string
	verifyDelay  time.Duration
	lastVerified string
}

func (g *fakeGateway) RequestCode(ctx context.Context, email string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.requestErr != nil {
		return g.requestErr
	}
	g.requested = append(g.requested, email)
	return nil
}

func (g *fakeGateway) VerifyCode(ctx context.Context, email, code string) (*Credential, error) {
	if g.verifyDelay > 0 {
		time.Sleep(g.verifyDelay)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	g.lastVerified = email
	return &Credential{
		Email:     email,
		Token:     "token-" + code,
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil
}

// memCredentials is an in-memory CredentialStore.
type memCredentials struct {
	mu   sync.Mutex
	cred *Credential
}

func (m *memCredentials) Load() (*Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cred == nil {
		return nil, ErrNoCredential
	}
	cred := *m.cred
	return &cred, nil
}

func (m *memCredentials) Save(cred *Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *cred
	m.cred = &c
	return nil
}

func (m *memCredentials) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = nil
	return nil
}

func TestRequestPasscode_MalformedIdentity(t *testing.T) {
	gw := &fakeGateway{}
	m := NewManager(gw, &memCredentials{})

	for _, email := range []string{"", "nope", "a@b", "spaces in@example.com", "@example.com"} {
		err := m.RequestPasscode(context.Background(), email)
		assert.ErrorIs(t, err, ErrMalformedIdentity, "email %q", email)
	}

	// Rejected before any gateway call
	assert.Empty(t, gw.requested)
}

func TestRequestPasscode_RecordsPendingIdentity(t *testing.T) {
	gw := &fakeGateway{}
	m := NewManager(gw, &memCredentials{})

	require.NoError(t, m.RequestPasscode(context.Background(), "a@b.com"))
	assert.Equal(t, "a@b.com", m.PendingIdentity())
	assert.False(t, m.SignedIn(), "requesting a code must not sign in")
}

func TestRequestPasscode_DeliveryRejected(t *testing.T) {
	gw := &fakeGateway{requestErr: ErrDeliveryRejected}
	m := NewManager(gw, &memCredentials{})

	err := m.RequestPasscode(context.Background(), "a@b.com")
	assert.ErrorIs(t, err, ErrDeliveryRejected)
	assert.Empty(t, m.PendingIdentity())
}

func TestVerifyPasscode_Success(t *testing.T) {
	gw := &fakeGateway{}
	creds := &memCredentials{}
	m := NewManager(gw, creds)

	require.NoError(t, m.RequestPasscode(context.Background(), "a@b.com"))
	require.NoError(t, m.VerifyPasscode(context.Background(), "a@b.com", "123456"))

	cred, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, "a@b.com", cred.Email)
	assert.Empty(t, m.PendingIdentity())

	// Credential was persisted
	saved, err := creds.Load()
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", saved.Email)
}

func TestVerifyPasscode_InvalidCodeLeavesStateUntouched(t *testing.T) {
	gw := &fakeGateway{verifyErr: ErrInvalidCode}
	creds := &memCredentials{}
	m := NewManager(gw, creds)

	require.NoError(t, m.RequestPasscode(context.Background(), "a@b.com"))
	err := m.VerifyPasscode(context.Background(), "a@b.com", "000000")
	assert.ErrorIs(t, err, ErrInvalidCode)

	assert.False(t, m.SignedIn())
	assert.Equal(t, "a@b.com", m.PendingIdentity(), "pending identity survives a failed verify")
	_, loadErr := creds.Load()
	assert.ErrorIs(t, loadErr, ErrNoCredential)
}

func TestInit_RestoresPersistedCredential(t *testing.T) {
	creds := &memCredentials{}
	require.NoError(t, creds.Save(&Credential{
		Email:     "a@b.com",
		Token:     "stored",
		IssuedAt:  time.Now().Add(-time.Hour),
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	m := NewManager(&fakeGateway{}, creds)
	require.NoError(t, m.Init(context.Background()))
	defer m.Close()

	cred, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, "a@b.com", cred.Email)
}

func TestInit_IgnoresExpiredCredential(t *testing.T) {
	creds := &memCredentials{}
	require.NoError(t, creds.Save(&Credential{
		Email:     "a@b.com",
		Token:     "stale",
		IssuedAt:  time.Now().Add(-2 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	}))

	m := NewManager(&fakeGateway{}, creds)
	require.NoError(t, m.Init(context.Background()))
	defer m.Close()

	assert.False(t, m.SignedIn())
}

func TestInit_Idempotent(t *testing.T) {
	creds := &memCredentials{}
	m := NewManager(&fakeGateway{}, creds)

	for i := 0; i < 3; i++ {
		require.NoError(t, m.Init(context.Background()))
	}
	m.Close()
}

// gatedGateway blocks the first VerifyCode call until released.
type gatedGateway struct {
	fakeGateway
	release chan struct{}
	gated   sync.Once
}

func (g *gatedGateway) VerifyCode(ctx context.Context, email, code string) (*Credential, error) {
	blocked := false
	g.gated.Do(func() { blocked = true })
	if blocked {
		<-g.release
	}
	return g.fakeGateway.VerifyCode(ctx, email, code)
}

func TestVerifyPasscode_StaleResolutionDiscarded(t *testing.T) {
	gw := &gatedGateway{release: make(chan struct{})}
	creds := &memCredentials{}
	m := NewManager(gw, creds)

	// First verify stalls in flight; a second one for a different
	// identity is issued and resolves before it.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = m.VerifyPasscode(context.Background(), "old@b.com", "111111")
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, m.VerifyPasscode(context.Background(), "new@b.com", "222222"))
	close(gw.release)
	wg.Wait()

	// Last-issued wins: the stalled resolution must not overwrite the newer sign-in
	cred, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, "new@b.com", cred.Email)
}

func TestSignOut(t *testing.T) {
	gw := &fakeGateway{}
	creds := &memCredentials{}
	m := NewManager(gw, creds)

	require.NoError(t, m.VerifyPasscode(context.Background(), "a@b.com", "123456"))
	require.True(t, m.SignedIn())

	require.NoError(t, m.SignOut())
	assert.False(t, m.SignedIn())
	_, err := creds.Load()
	assert.ErrorIs(t, err, ErrNoCredential)
}
