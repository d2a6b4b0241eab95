// Package auth implements passcode sign-in and credential management.
//
// # Overview
//
// Sign-in is a two-step passcode exchange: RequestPasscode delivers a
// one-time code out-of-band, VerifyPasscode exchanges it for a JWT
// credential. The Manager tracks the signed-in identity for the process
// lifetime and restores it from a persisted credential on Init.
//
// # Components
//
//   - Manager: the authentication session. Validates identities locally
//     before any gateway call, stamps verifies with a generation token so
//     a stale in-flight verify cannot overwrite a newer one, and persists
//     the credential through a CredentialStore.
//   - Gateway: the passcode exchange boundary. LocalGateway implements it
//     against the store: codes are bcrypt-hashed with a TTL, single-use,
//     and successful verification upserts the identity as verified and
//     mints an HS256 JWT.
//   - FileCredentials: JSON-on-disk CredentialStore with an fsnotify
//     watcher, so a sign-in or sign-out performed by another process is
//     observed live (the cross-tab notification channel).
//
// # Initialization
//
// Manager.Init is guarded by sync.Once: however many times a consumer
// re-initializes, the persisted credential is fetched exactly once and
// only one watcher subscription exists. Close tears the watcher down.
package auth
