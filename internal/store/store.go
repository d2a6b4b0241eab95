// ABOUTME: Store interface and data types for solace-core persistence
// ABOUTME: Defines Identity, Session, Message, Branch, Memory and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert violates a uniqueness constraint
var ErrDuplicate = errors.New("already exists")

// Identity represents a signed-in (or signing-in) user, keyed by email
type Identity struct {
	Email       string
	Verified    bool
	DisplayName string
	CreatedAt   time.Time
}

// Role constants for persisted messages. Synthetic transcript roles
// (error, evolve, typing) never reach the store.
const (
	RoleUser      = "user"
	RoleAssistant = "ai"
)

// Session is the active conversation session for an identity.
// Number is monotonic per identity, starting at 1, and never reused.
type Session struct {
	ID            string
	IdentityEmail string
	Number        int
	CreatedAt     time.Time
}

// SessionArchive is an immutable history record written exactly once
// per rollover, before the active session row is replaced.
type SessionArchive struct {
	ID            string
	IdentityEmail string
	SessionID     string
	Number        int
	ArchivedAt    time.Time
}

// Message is a single persisted conversation turn
type Message struct {
	ID          string
	SessionID   string
	Role        string // "user" or "ai"
	Content     string
	AuthorEmail string
	CreatedAt   time.Time
}

// Branch is a named grouping of memories owned by an identity
type Branch struct {
	ID         string
	OwnerEmail string
	Name       string
	CreatedAt  time.Time
}

// Memory is a persisted journal entry within a branch
type Memory struct {
	ID        string
	BranchID  string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Passcode is a pending one-time sign-in code, stored hashed
type Passcode struct {
	Email     string
	CodeHash  string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Store defines the persistence gateway consumed by the coordination layer
type Store interface {
	// Identities
	EnsureIdentity(ctx context.Context, identity *Identity) error
	GetIdentity(ctx context.Context, email string) (*Identity, error)

	// Sessions
	FetchOrCreateSession(ctx context.Context, email string) (*Session, error)
	GetSessionNumber(ctx context.Context, email string) (int, error)
	ArchiveAndRollSession(ctx context.Context, email string) (*Session, error)
	ListSessionArchive(ctx context.Context, email string) ([]*SessionArchive, error)

	// Messages
	AppendMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, sessionID string) ([]*Message, error)

	// Branches
	CreateBranch(ctx context.Context, branch *Branch) error
	DeleteBranch(ctx context.Context, id string) error
	ListBranches(ctx context.Context, ownerEmail string) ([]*Branch, error)

	// Memories
	CreateMemory(ctx context.Context, memory *Memory) error
	UpdateMemory(ctx context.Context, id, content string) (*Memory, error)
	DeleteMemory(ctx context.Context, id string) (bool, error)
	ListMemories(ctx context.Context, branchID string) ([]*Memory, error)

	// Close releases any resources held by the store
	Close() error
}

// PasscodeStore defines what the local auth gateway needs from storage
type PasscodeStore interface {
	SavePasscode(ctx context.Context, pc *Passcode) error
	GetPasscode(ctx context.Context, email string) (*Passcode, error)
	ConsumePasscode(ctx context.Context, email string) error
}
