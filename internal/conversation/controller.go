// ABOUTME: Conversation session controller and message exchange pipeline.
// ABOUTME: Owns the active session id/number, the hydrated transcript, and rollover.

package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/solace-app/solace-core/internal/inference"
	"github.com/solace-app/solace-core/internal/observability"
	"github.com/solace-app/solace-core/internal/store"
)

// State is the controller's lifecycle state.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateHydrating     State = "hydrating"
	StateReady         State = "ready"
	StateRollingOver   State = "rolling_over"
)

// SendState tags the message pipeline's last observed send outcome.
type SendState string

const (
	SendIdle       SendState = "idle"
	SendSending    SendState = "sending"
	SendResponded  SendState = "responded"
	SendAtCapacity SendState = "at_capacity"
	SendFailed     SendState = "failed"
)

// Role is a transcript entry role. Only RoleUser and RoleAssistant are
// ever persisted; the rest are synthetic, in-memory only.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleError     Role = "error"
	RoleEvolve    Role = "evolve"
	RoleTyping    Role = "typing"
)

// Message is one transcript entry as held in memory.
type Message struct {
	Role        Role
	Content     string
	AuthorEmail string
	CreatedAt   time.Time
}

// Store defines what the controller needs from the persistence gateway.
type Store interface {
	EnsureIdentity(ctx context.Context, identity *store.Identity) error
	FetchOrCreateSession(ctx context.Context, email string) (*store.Session, error)
	ArchiveAndRollSession(ctx context.Context, email string) (*store.Session, error)
	AppendMessage(ctx context.Context, msg *store.Message) error
	ListMessages(ctx context.Context, sessionID string) ([]*store.Message, error)
}

// evolveNotice is the synthetic transcript entry shown when the session
// reaches capacity.
const evolveNotice = "This session has reached its capacity. Evolve to a new session to continue."

// Controller owns the active conversation session for one identity.
// It is driven from a single UI goroutine; the mutex exists so accessors
// are safe from elsewhere, correctness rests on the ordering of awaited
// steps.
type Controller struct {
	store   Store
	infer   inference.Gateway
	metrics *observability.Metrics
	logger  *slog.Logger

	mu            sync.Mutex
	state         State
	email         string
	sessionID     string
	sessionNumber int
	transcript    []Message

	sendState  SendState
	pending    bool
	atCapacity bool
	// sendGen stamps each inference call; rollover bumps it so a reply
	// resolved against a replaced session is discarded.
	sendGen uint64
}

// New creates a controller. metrics may be nil.
func New(s Store, infer inference.Gateway, metrics *observability.Metrics) *Controller {
	return &Controller{
		store:     s,
		infer:     infer,
		metrics:   metrics,
		logger:    slog.Default().With("component", "conversation"),
		state:     StateUninitialized,
		sendState: SendIdle,
	}
}

// Hydrate resolves the identity's active session and loads its
// transcript. On any failure the controller returns to Uninitialized;
// retrying is the caller's responsibility.
func (c *Controller) Hydrate(ctx context.Context, email string) error {
	c.mu.Lock()
	if c.state != StateUninitialized {
		c.mu.Unlock()
		return fmt.Errorf("hydrate from %s: already initialized", c.state)
	}
	c.state = StateHydrating
	c.mu.Unlock()

	session, transcript, err := c.hydrate(ctx, email)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateUninitialized
		return err
	}

	c.email = email
	c.sessionID = session.ID
	c.sessionNumber = session.Number
	c.transcript = transcript
	c.state = StateReady

	c.logger.Info("session hydrated",
		"email", email,
		"session_id", session.ID,
		"number", session.Number,
		"messages", len(transcript))
	return nil
}

// hydrate performs the gateway calls for Hydrate without holding the lock.
func (c *Controller) hydrate(ctx context.Context, email string) (*store.Session, []Message, error) {
	if err := c.store.EnsureIdentity(ctx, &store.Identity{Email: email, Verified: true}); err != nil {
		return nil, nil, fmt.Errorf("ensuring identity: %w", err)
	}

	session, err := c.store.FetchOrCreateSession(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving session: %w", err)
	}

	stored, err := c.store.ListMessages(ctx, session.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading transcript: %w", err)
	}

	transcript := make([]Message, 0, len(stored))
	for _, msg := range stored {
		role := RoleAssistant
		if msg.Role == store.RoleUser {
			role = RoleUser
		}
		transcript = append(transcript, Message{
			Role:        role,
			Content:     msg.Content,
			AuthorEmail: msg.AuthorEmail,
			CreatedAt:   msg.CreatedAt,
		})
	}
	return session, transcript, nil
}

// SendMessage runs one exchange: the user turn is persisted before the
// inference call, so a persisted transcript can never contain a reply
// without its prompt. Gateway failures degrade to a synthetic error
// entry; the error is not returned to the caller.
func (c *Controller) SendMessage(ctx context.Context, text string) {
	text = strings.TrimSpace(text)

	c.mu.Lock()
	if text == "" || c.state != StateReady || c.atCapacity || c.pending {
		c.mu.Unlock()
		return
	}

	email := c.email
	sessionID := c.sessionID
	c.sendGen++
	generation := c.sendGen

	c.pending = true
	c.sendState = SendSending
	c.transcript = append(c.transcript,
		Message{Role: RoleUser, Content: text, AuthorEmail: email, CreatedAt: time.Now()},
		Message{Role: RoleTyping, CreatedAt: time.Now()},
	)
	c.mu.Unlock()

	defer c.clearPending(generation)

	// Record first, then ask: the user turn must be durable before the
	// inference call
	err := c.store.AppendMessage(ctx, &store.Message{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		Role:        store.RoleUser,
		Content:     text,
		AuthorEmail: email,
		CreatedAt:   time.Now(),
	})
	if err != nil {
		c.failSend(generation, fmt.Errorf("saving your message: %w", err))
		return
	}

	result, err := c.infer.Respond(ctx, text, sessionID)
	if err != nil {
		c.failSend(generation, fmt.Errorf("reaching the inference service: %w", err))
		return
	}

	if result.AtCapacity {
		c.mu.Lock()
		if generation == c.sendGen {
			c.dropTypingLocked()
			c.transcript = append(c.transcript, Message{
				Role:      RoleEvolve,
				Content:   evolveNotice,
				CreatedAt: time.Now(),
			})
			c.atCapacity = true
			c.sendState = SendAtCapacity
		}
		c.mu.Unlock()
		c.metrics.IncCapacity()
		c.logger.Info("session at capacity", "session_id", sessionID)
		return
	}

	// Persist the assistant turn before exposing success
	err = c.store.AppendMessage(ctx, &store.Message{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		Role:        store.RoleAssistant,
		Content:     result.Reply,
		AuthorEmail: email,
		CreatedAt:   time.Now(),
	})
	if err != nil {
		c.failSend(generation, fmt.Errorf("saving the reply: %w", err))
		return
	}

	c.mu.Lock()
	if generation == c.sendGen {
		c.dropTypingLocked()
		c.transcript = append(c.transcript, Message{
			Role:      RoleAssistant,
			Content:   result.Reply,
			CreatedAt: time.Now(),
		})
		c.sendState = SendResponded
	}
	c.mu.Unlock()
	c.metrics.IncSent()
}

// failSend degrades a failed exchange to a visible, non-persisted
// transcript entry. The session remains usable.
func (c *Controller) failSend(generation uint64, cause error) {
	c.mu.Lock()
	if generation == c.sendGen {
		c.dropTypingLocked()
		c.transcript = append(c.transcript, Message{
			Role:      RoleError,
			Content:   cause.Error(),
			CreatedAt: time.Now(),
		})
		c.sendState = SendFailed
	}
	c.mu.Unlock()

	c.metrics.IncFailed()
	c.logger.Error("message exchange failed", "error", cause)
}

// clearPending is the guaranteed-cleanup step of every send.
func (c *Controller) clearPending(generation uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation == c.sendGen {
		c.pending = false
		c.dropTypingLocked()
	}
}

// dropTypingLocked removes the trailing typing placeholder, if present.
// Must be called with mu held.
func (c *Controller) dropTypingLocked() {
	if n := len(c.transcript); n > 0 && c.transcript[n-1].Role == RoleTyping {
		c.transcript = c.transcript[:n-1]
	}
}

// IncrementSession archives the current session and swaps to a fresh
// one. Either every local field changes together (new id, number+1,
// empty transcript) or none do and an error is returned; the caller
// must not clear UI state on failure.
func (c *Controller) IncrementSession(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.state != StateReady {
		c.mu.Unlock()
		return "", fmt.Errorf("increment from %s: session not ready", c.state)
	}
	c.state = StateRollingOver
	email := c.email
	c.mu.Unlock()

	session, err := c.store.ArchiveAndRollSession(ctx, email)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateReady
	if err != nil {
		// No local mutation on failure
		return "", fmt.Errorf("rolling session: %w", err)
	}

	c.sessionID = session.ID
	c.sessionNumber = session.Number
	c.transcript = nil
	c.atCapacity = false
	c.sendState = SendIdle
	// Invalidate any in-flight send against the replaced session
	c.sendGen++

	c.metrics.IncRollover()
	c.logger.Info("session rolled over", "session_id", session.ID, "number", session.Number)
	return session.ID, nil
}

// State returns the controller's lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SendState returns the pipeline's last observed send outcome.
func (c *Controller) SendState() SendState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendState
}

// SessionID returns the active session id, empty before hydration.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// SessionNumber returns the active session's ordinal, 0 before hydration.
func (c *Controller) SessionNumber() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionNumber
}

// AtCapacity reports whether the session is terminal until rollover.
func (c *Controller) AtCapacity() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.atCapacity
}

// Pending reports whether an exchange is in flight.
func (c *Controller) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Transcript returns a copy of the in-memory transcript.
func (c *Controller) Transcript() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.transcript))
	copy(out, c.transcript)
	return out
}
