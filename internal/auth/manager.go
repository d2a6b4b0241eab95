// ABOUTME: Authentication session manager tracking the signed-in identity.
// ABOUTME: Coordinates passcode request/verify and persisted-credential restore.

package auth

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
)

// emailRe accepts "local@domain.tld" shapes; this is a plausibility
// check, not full address validation (the gateway is the authority).
var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Manager tracks the signed-in identity for the process lifetime.
// It is injected explicitly into consumers; there is no package-level
// singleton.
type Manager struct {
	gateway Gateway
	creds   CredentialStore
	logger  *slog.Logger

	mu           sync.Mutex
	current      *Credential
	pendingEmail string
	// verifyGen stamps each VerifyPasscode call; a resolution whose
	// generation is no longer current is stale and discarded
	// (last-issued-wins).
	verifyGen uint64

	initOnce  sync.Once
	stopWatch func()
}

// NewManager creates a Manager over the given gateway and credential store.
func NewManager(gateway Gateway, creds CredentialStore) *Manager {
	return &Manager{
		gateway: gateway,
		creds:   creds,
		logger:  slog.Default().With("component", "auth"),
	}
}

// Init restores any persisted credential and starts watching for
// external credential changes. It is idempotent: repeated calls after
// the first are no-ops, so re-initialization can never double-fetch or
// double-subscribe.
func (m *Manager) Init(ctx context.Context) error {
	var initErr error
	m.initOnce.Do(func() {
		m.reload()

		if watcher, ok := m.creds.(interface{ Watch(func()) (func(), error) }); ok {
			stop, err := watcher.Watch(m.reload)
			if err != nil {
				initErr = fmt.Errorf("starting credential watch: %w", err)
				return
			}
			m.stopWatch = stop
		}

		m.logger.Debug("auth manager initialized")
	})
	return initErr
}

// Close stops the credential watcher. Safe to call without Init.
func (m *Manager) Close() {
	if m.stopWatch != nil {
		m.stopWatch()
		m.stopWatch = nil
	}
}

// reload re-reads the persisted credential and adopts it if valid.
// Runs at Init and on every external credential-change notification.
func (m *Manager) reload() {
	cred, err := m.creds.Load()

	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case err != nil:
		// Missing or unreadable credential means signed out
		if m.current != nil {
			m.logger.Info("credential removed externally, signing out")
		}
		m.current = nil
	case cred.Expired():
		m.logger.Debug("stored credential expired", "email", cred.Email)
		m.current = nil
	default:
		m.current = cred
		m.logger.Debug("credential restored", "email", cred.Email)
	}
}

// RequestPasscode triggers out-of-band delivery of a one-time code.
// A malformed identity is rejected locally with ErrMalformedIdentity
// before any gateway call. On success the pending identity is recorded;
// no other local state changes.
func (m *Manager) RequestPasscode(ctx context.Context, email string) error {
	if !emailRe.MatchString(email) {
		return fmt.Errorf("%w: %q", ErrMalformedIdentity, email)
	}

	if err := m.gateway.RequestCode(ctx, email); err != nil {
		return err
	}

	m.mu.Lock()
	m.pendingEmail = email
	m.mu.Unlock()

	m.logger.Debug("passcode requested", "email", email)
	return nil
}

// VerifyPasscode exchanges the code for an authenticated session. On
// success the current identity is set and the credential persisted; on
// failure prior state is left untouched. A verify superseded by a newer
// one discards its late resolution.
func (m *Manager) VerifyPasscode(ctx context.Context, email, code string) error {
	if !emailRe.MatchString(email) {
		return fmt.Errorf("%w: %q", ErrMalformedIdentity, email)
	}

	m.mu.Lock()
	m.verifyGen++
	generation := m.verifyGen
	m.mu.Unlock()

	cred, err := m.gateway.VerifyCode(ctx, email, code)

	m.mu.Lock()
	defer m.mu.Unlock()

	if generation != m.verifyGen {
		m.logger.Debug("stale verify resolution discarded", "email", email)
		return nil
	}
	if err != nil {
		return err
	}

	m.current = cred
	m.pendingEmail = ""

	if saveErr := m.creds.Save(cred); saveErr != nil {
		// Signed in for this process either way; persistence is best effort
		m.logger.Error("failed to persist credential", "error", saveErr)
	}

	m.logger.Info("signed in", "email", cred.Email)
	return nil
}

// Current returns the signed-in credential, if any.
func (m *Manager) Current() (*Credential, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil || m.current.Expired() {
		return nil, false
	}
	cred := *m.current
	return &cred, true
}

// SignedIn reports whether an unexpired credential is held.
func (m *Manager) SignedIn() bool {
	_, ok := m.Current()
	return ok
}

// SignOut drops the current credential and clears persistence.
func (m *Manager) SignOut() error {
	m.mu.Lock()
	m.current = nil
	m.pendingEmail = ""
	m.mu.Unlock()

	if err := m.creds.Clear(); err != nil {
		return fmt.Errorf("clearing credential: %w", err)
	}
	m.logger.Info("signed out")
	return nil
}

// PendingIdentity returns the identity awaiting passcode verification.
func (m *Manager) PendingIdentity() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pendingEmail
}
