// Package store provides persistent storage for solace-core using SQLite.
//
// # Architecture
//
// The store package uses an interface-driven architecture:
//
//   - Store: identities, sessions, messages, branches, and memories
//   - PasscodeStore: pending one-time sign-in codes for the local auth gateway
//
// SQLiteStore implements both interfaces in a single struct, allowing easy
// composition while maintaining clear interface boundaries. Consumers that
// need only a slice of the surface (the conversation controller, the journal
// coordinator) declare their own narrower interfaces.
//
// # Data Models
//
//   - Identity: email-keyed user record, created on first passcode verification
//   - Session: the active conversation session per identity; Number is
//     monotonic, starting at 1, and never reused
//   - SessionArchive: immutable rollover history, written exactly once per roll
//   - Message: a persisted conversation turn; only "user" and "ai" roles are
//     accepted (enforced by a schema CHECK), so synthetic transcript entries
//     can never leak into history
//   - Branch / Memory: the journal hierarchy
//
// # Session Rollover
//
// ArchiveAndRollSession runs in a single transaction: the outgoing session is
// archived before the active row is swapped, so a crash between the two steps
// cannot lose history or duplicate a session number.
//
// # Timestamps
//
// All timestamps are stored as UTC RFC3339Nano strings. Message listing
// orders by (created_at, id) so turns with identical timestamps still come
// back in a stable order.
package store
