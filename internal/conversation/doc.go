// Package conversation coordinates the chat session between client
// state and the remote persistence/inference gateways.
//
// # Overview
//
// The Controller owns the active session identifier, its ordinal number,
// and the lazily hydrated transcript. It moves through
// Uninitialized → Hydrating → Ready → RollingOver → Ready.
//
// # Message exchange
//
// SendMessage is the one write path for conversation turns. Its ordering
// is load-bearing:
//
//  1. The user turn is appended to the in-memory transcript immediately.
//  2. The user turn is persisted, awaited. A persisted transcript can
//     therefore never contain an assistant reply without its prompt.
//  3. The inference gateway is called.
//  4. A capacity signal appends a synthetic evolve entry and latches the
//     session terminal until rollover; a reply is persisted and appended.
//
// Failures along the way degrade to a synthetic error entry in the
// transcript; they are never returned to the caller and never persisted.
// Synthetic roles (error, evolve, typing) exist only in memory — the
// store's schema rejects them outright.
//
// # Rollover
//
// IncrementSession is atomic from the caller's point of view: either the
// controller swaps to a fresh session (number strictly incremented,
// transcript cleared, exactly one archive record written for the
// outgoing session) or every local field is left untouched and an error
// is returned. The capacity latch is cleared only by a successful
// rollover.
package conversation
