// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides identity/session/message/journal persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store and PasscodeStore interfaces using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS identities (
			email TEXT PRIMARY KEY,
			verified INTEGER NOT NULL DEFAULT 0,
			display_name TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);

		-- One active session per identity; history lives in session_archive
		CREATE TABLE IF NOT EXISTS sessions (
			identity_email TEXT PRIMARY KEY REFERENCES identities(email),
			id TEXT UNIQUE NOT NULL,
			number INTEGER NOT NULL CHECK (number >= 1),
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS session_archive (
			id TEXT PRIMARY KEY,
			identity_email TEXT NOT NULL REFERENCES identities(email),
			session_id TEXT NOT NULL,
			number INTEGER NOT NULL,
			archived_at TEXT NOT NULL,
			UNIQUE(identity_email, number)
		);

		CREATE INDEX IF NOT EXISTS idx_session_archive_identity
			ON session_archive(identity_email);

		-- Only "user" and "ai" roles are ever written through; synthetic
		-- transcript roles are rejected at the schema level
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL CHECK (role IN ('user', 'ai')),
			content TEXT NOT NULL,
			author_email TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_messages_session_created
			ON messages(session_id, created_at);

		CREATE TABLE IF NOT EXISTS branches (
			id TEXT PRIMARY KEY,
			owner_email TEXT NOT NULL REFERENCES identities(email),
			name TEXT NOT NULL,
			created_at TEXT NOT NULL,
			UNIQUE(owner_email, name)
		);

		CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			branch_id TEXT NOT NULL REFERENCES branches(id) ON DELETE CASCADE,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_memories_branch
			ON memories(branch_id);

		CREATE TABLE IF NOT EXISTS passcodes (
			email TEXT PRIMARY KEY,
			code_hash TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// EnsureIdentity upserts an identity row. Existing rows keep their
// created_at; verified and display_name are updated in place.
func (s *SQLiteStore) EnsureIdentity(ctx context.Context, identity *Identity) error {
	query := `
		INSERT INTO identities (email, verified, display_name, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			verified = excluded.verified,
			display_name = excluded.display_name
	`

	createdAt := identity.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, query,
		identity.Email,
		boolToInt(identity.Verified),
		identity.DisplayName,
		createdAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting identity: %w", err)
	}

	s.logger.Debug("identity ensured", "email", identity.Email)
	return nil
}

// GetIdentity retrieves an identity by email.
// Returns ErrNotFound if the identity doesn't exist.
func (s *SQLiteStore) GetIdentity(ctx context.Context, email string) (*Identity, error) {
	query := `
		SELECT email, verified, display_name, created_at
		FROM identities
		WHERE email = ?
	`

	var identity Identity
	var verified int
	var createdAtStr string

	err := s.db.QueryRowContext(ctx, query, email).Scan(
		&identity.Email,
		&verified,
		&identity.DisplayName,
		&createdAtStr,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying identity: %w", err)
	}

	identity.Verified = verified != 0
	identity.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &identity, nil
}

// FetchOrCreateSession returns the active session for an identity,
// lazily creating session number 1 on first access.
func (s *SQLiteStore) FetchOrCreateSession(ctx context.Context, email string) (*Session, error) {
	session, err := s.getActiveSession(ctx, email)
	if err == nil {
		return session, nil
	}
	if err != ErrNotFound {
		return nil, err
	}

	session = &Session{
		ID:            uuid.New().String(),
		IdentityEmail: email,
		Number:        1,
		CreatedAt:     time.Now(),
	}

	query := `
		INSERT INTO sessions (identity_email, id, number, created_at)
		VALUES (?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		session.IdentityEmail,
		session.ID,
		session.Number,
		session.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		// Another caller may have created the session between our
		// lookup and insert; re-read it
		if isConstraintViolation(err) {
			return s.getActiveSession(ctx, email)
		}
		return nil, fmt.Errorf("inserting session: %w", err)
	}

	s.logger.Debug("session created", "email", email, "session_id", session.ID, "number", session.Number)
	return session, nil
}

// GetSessionNumber returns the active session number for an identity,
// or 0 if the identity has no session yet.
func (s *SQLiteStore) GetSessionNumber(ctx context.Context, email string) (int, error) {
	var number int
	err := s.db.QueryRowContext(ctx,
		`SELECT number FROM sessions WHERE identity_email = ?`, email).Scan(&number)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("querying session number: %w", err)
	}
	return number, nil
}

// getActiveSession reads the active session row for an identity.
func (s *SQLiteStore) getActiveSession(ctx context.Context, email string) (*Session, error) {
	query := `
		SELECT identity_email, id, number, created_at
		FROM sessions
		WHERE identity_email = ?
	`

	var session Session
	var createdAtStr string

	err := s.db.QueryRowContext(ctx, query, email).Scan(
		&session.IdentityEmail,
		&session.ID,
		&session.Number,
		&createdAtStr,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}

	session.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &session, nil
}

// ArchiveAndRollSession archives the outgoing session and replaces it
// with a fresh one in a single transaction. The archive row is written
// before the swap so history can never miss a rolled session. Returns
// the new session.
func (s *SQLiteStore) ArchiveAndRollSession(ctx context.Context, email string) (*Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var outgoingID string
	var outgoingNumber int
	err = tx.QueryRowContext(ctx,
		`SELECT id, number FROM sessions WHERE identity_email = ?`, email).
		Scan(&outgoingID, &outgoingNumber)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying outgoing session: %w", err)
	}

	now := time.Now()

	// Archive first
	_, err = tx.ExecContext(ctx, `
		INSERT INTO session_archive (id, identity_email, session_id, number, archived_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		uuid.New().String(),
		email,
		outgoingID,
		outgoingNumber,
		now.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("archiving session: %w", err)
	}

	newSession := &Session{
		ID:            uuid.New().String(),
		IdentityEmail: email,
		Number:        outgoingNumber + 1,
		CreatedAt:     now,
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sessions SET id = ?, number = ?, created_at = ?
		WHERE identity_email = ?
	`,
		newSession.ID,
		newSession.Number,
		newSession.CreatedAt.UTC().Format(time.RFC3339Nano),
		email,
	)
	if err != nil {
		return nil, fmt.Errorf("swapping session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing rollover: %w", err)
	}

	s.logger.Info("session rolled over",
		"email", email,
		"old_session_id", outgoingID,
		"new_session_id", newSession.ID,
		"number", newSession.Number)
	return newSession, nil
}

// ListSessionArchive returns this identity's archived sessions, oldest first.
func (s *SQLiteStore) ListSessionArchive(ctx context.Context, email string) ([]*SessionArchive, error) {
	query := `
		SELECT id, identity_email, session_id, number, archived_at
		FROM session_archive
		WHERE identity_email = ?
		ORDER BY number ASC
	`

	rows, err := s.db.QueryContext(ctx, query, email)
	if err != nil {
		return nil, fmt.Errorf("querying session archive: %w", err)
	}
	defer rows.Close()

	var records []*SessionArchive
	for rows.Next() {
		var rec SessionArchive
		var archivedAtStr string
		if err := rows.Scan(&rec.ID, &rec.IdentityEmail, &rec.SessionID, &rec.Number, &archivedAtStr); err != nil {
			return nil, fmt.Errorf("scanning archive row: %w", err)
		}
		rec.ArchivedAt, err = time.Parse(time.RFC3339Nano, archivedAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing archived_at: %w", err)
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// AppendMessage stores a conversation turn. Only RoleUser and
// RoleAssistant pass the schema's role constraint.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *Message) error {
	query := `
		INSERT INTO messages (id, session_id, role, content, author_email, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, query,
		msg.ID,
		msg.SessionID,
		msg.Role,
		msg.Content,
		msg.AuthorEmail,
		createdAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting message: %w", err)
	}

	s.logger.Debug("message appended", "session_id", msg.SessionID, "role", msg.Role, "id", msg.ID)
	return nil
}

// ListMessages returns a session's messages ordered by creation time
// ascending, with the id as a tiebreaker for equal timestamps.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string) ([]*Message, error) {
	query := `
		SELECT id, session_id, role, content, author_email, created_at
		FROM messages
		WHERE session_id = ?
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var msg Message
		var createdAtStr string
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &msg.AuthorEmail, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		msg.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

// CreateBranch stores a new branch.
// Returns ErrDuplicate if the owner already has a branch with that name.
func (s *SQLiteStore) CreateBranch(ctx context.Context, branch *Branch) error {
	query := `
		INSERT INTO branches (id, owner_email, name, created_at)
		VALUES (?, ?, ?, ?)
	`

	createdAt := branch.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, query,
		branch.ID,
		branch.OwnerEmail,
		branch.Name,
		createdAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting branch: %w", err)
	}

	s.logger.Debug("branch created", "id", branch.ID, "owner", branch.OwnerEmail, "name", branch.Name)
	return nil
}

// DeleteBranch removes a branch and, via ON DELETE CASCADE, its memories.
// Returns ErrNotFound if the branch doesn't exist.
func (s *SQLiteStore) DeleteBranch(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM branches WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting branch: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListBranches returns an identity's branches ordered by creation time.
func (s *SQLiteStore) ListBranches(ctx context.Context, ownerEmail string) ([]*Branch, error) {
	query := `
		SELECT id, owner_email, name, created_at
		FROM branches
		WHERE owner_email = ?
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, ownerEmail)
	if err != nil {
		return nil, fmt.Errorf("querying branches: %w", err)
	}
	defer rows.Close()

	var branches []*Branch
	for rows.Next() {
		var b Branch
		var createdAtStr string
		if err := rows.Scan(&b.ID, &b.OwnerEmail, &b.Name, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning branch row: %w", err)
		}
		b.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		branches = append(branches, &b)
	}
	return branches, rows.Err()
}

// CreateMemory stores a new memory in a branch.
func (s *SQLiteStore) CreateMemory(ctx context.Context, memory *Memory) error {
	query := `
		INSERT INTO memories (id, branch_id, content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`

	now := time.Now()
	if memory.CreatedAt.IsZero() {
		memory.CreatedAt = now
	}
	if memory.UpdatedAt.IsZero() {
		memory.UpdatedAt = memory.CreatedAt
	}

	_, err := s.db.ExecContext(ctx, query,
		memory.ID,
		memory.BranchID,
		memory.Content,
		memory.CreatedAt.UTC().Format(time.RFC3339Nano),
		memory.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting memory: %w", err)
	}

	s.logger.Debug("memory created", "id", memory.ID, "branch_id", memory.BranchID)
	return nil
}

// UpdateMemory replaces a memory's content and bumps updated_at.
// Returns the updated memory, or ErrNotFound.
func (s *SQLiteStore) UpdateMemory(ctx context.Context, id, content string) (*Memory, error) {
	now := time.Now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE memories SET content = ?, updated_at = ?
		WHERE id = ?
	`, content, now.UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return nil, fmt.Errorf("updating memory: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return nil, ErrNotFound
	}

	return s.getMemory(ctx, id)
}

// DeleteMemory removes a memory. Returns whether a row was deleted.
func (s *SQLiteStore) DeleteMemory(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("deleting memory: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking delete result: %w", err)
	}
	return affected > 0, nil
}

// ListMemories returns a branch's memories ordered by creation time.
func (s *SQLiteStore) ListMemories(ctx context.Context, branchID string) ([]*Memory, error) {
	query := `
		SELECT id, branch_id, content, created_at, updated_at
		FROM memories
		WHERE branch_id = ?
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, branchID)
	if err != nil {
		return nil, fmt.Errorf("querying memories: %w", err)
	}
	defer rows.Close()

	var memories []*Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}

// getMemory reads a single memory row.
func (s *SQLiteStore) getMemory(ctx context.Context, id string) (*Memory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, branch_id, content, created_at, updated_at
		FROM memories
		WHERE id = ?
	`, id)

	var m Memory
	var createdAtStr, updatedAtStr string
	err := row.Scan(&m.ID, &m.BranchID, &m.Content, &createdAtStr, &updatedAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying memory: %w", err)
	}

	if m.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if m.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAtStr); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &m, nil
}

// scanMemory scans a memory from a multi-row result set.
func scanMemory(rows *sql.Rows) (*Memory, error) {
	var m Memory
	var createdAtStr, updatedAtStr string
	if err := rows.Scan(&m.ID, &m.BranchID, &m.Content, &createdAtStr, &updatedAtStr); err != nil {
		return nil, fmt.Errorf("scanning memory row: %w", err)
	}
	var err error
	if m.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if m.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAtStr); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &m, nil
}

// SavePasscode upserts the pending one-time code for an identity.
// A new request replaces any outstanding code.
func (s *SQLiteStore) SavePasscode(ctx context.Context, pc *Passcode) error {
	query := `
		INSERT INTO passcodes (email, code_hash, expires_at, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			code_hash = excluded.code_hash,
			expires_at = excluded.expires_at,
			created_at = excluded.created_at
	`

	createdAt := pc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, query,
		pc.Email,
		pc.CodeHash,
		pc.ExpiresAt.UTC().Format(time.RFC3339Nano),
		createdAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving passcode: %w", err)
	}
	return nil
}

// GetPasscode returns the pending code for an identity, or ErrNotFound.
func (s *SQLiteStore) GetPasscode(ctx context.Context, email string) (*Passcode, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT email, code_hash, expires_at, created_at
		FROM passcodes
		WHERE email = ?
	`, email)

	var pc Passcode
	var expiresAtStr, createdAtStr string
	err := row.Scan(&pc.Email, &pc.CodeHash, &expiresAtStr, &createdAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying passcode: %w", err)
	}

	if pc.ExpiresAt, err = time.Parse(time.RFC3339Nano, expiresAtStr); err != nil {
		return nil, fmt.Errorf("parsing expires_at: %w", err)
	}
	if pc.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &pc, nil
}

// ConsumePasscode removes a code once it has been exchanged.
func (s *SQLiteStore) ConsumePasscode(ctx context.Context, email string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM passcodes WHERE email = ?`, email)
	if err != nil {
		return fmt.Errorf("consuming passcode: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
