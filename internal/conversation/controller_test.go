// ABOUTME: Tests for the conversation controller and message pipeline.
// ABOUTME: Verifies hydration, persist-before-infer ordering, capacity handling, and rollover atomicity.

package conversation

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solace-app/solace-core/internal/inference"
	"github.com/solace-app/solace-core/internal/store"
)

// fakeInference scripts inference gateway outcomes and records calls.
type fakeInference struct {
	mu         sync.Mutex
	reply      string
	atCapacity bool
	err        error
	calls      []string // prompts, in order
}

func (f *fakeInference) Respond(ctx context.Context, prompt, sessionID string) (*inference.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, prompt)
	if f.err != nil {
		return nil, f.err
	}
	if f.atCapacity {
		return &inference.Result{AtCapacity: true}, nil
	}
	return &inference.Result{Reply: f.reply}, nil
}

func (f *fakeInference) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// flakyStore wraps a real store and fails scripted methods.
type flakyStore struct {
	Store
	failAppend error
	failRoll   error
}

func (f *flakyStore) AppendMessage(ctx context.Context, msg *store.Message) error {
	if f.failAppend != nil {
		return f.failAppend
	}
	return f.Store.AppendMessage(ctx, msg)
}

func (f *flakyStore) ArchiveAndRollSession(ctx context.Context, email string) (*store.Session, error) {
	if f.failRoll != nil {
		return nil, f.failRoll
	}
	return f.Store.ArchiveAndRollSession(ctx, email)
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func hydrated(t *testing.T, s Store, infer inference.Gateway) *Controller {
	t.Helper()
	c := New(s, infer, nil)
	require.NoError(t, c.Hydrate(context.Background(), "a@b.com"))
	return c
}

func TestHydrate_FreshIdentity(t *testing.T) {
	c := hydrated(t, newTestStore(t), &fakeInference{})

	assert.Equal(t, StateReady, c.State())
	assert.Equal(t, 1, c.SessionNumber())
	assert.NotEmpty(t, c.SessionID())
	assert.Empty(t, c.Transcript())
}

func TestHydrate_LoadsExistingTranscript(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := hydrated(t, s, &fakeInference{reply: "hi there"})
	first.SendMessage(ctx, "hello")

	// A reload with the same identity sees the same session and turns
	c := hydrated(t, s, &fakeInference{})
	assert.Equal(t, first.SessionID(), c.SessionID())

	transcript := c.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, RoleUser, transcript[0].Role)
	assert.Equal(t, "hello", transcript[0].Content)
	assert.Equal(t, RoleAssistant, transcript[1].Role)
	assert.Equal(t, "hi there", transcript[1].Content)
}

func TestHydrate_FailureLeavesUninitialized(t *testing.T) {
	s := &flakyStore{Store: newTestStore(t)}
	c := New(s, &fakeInference{}, nil)

	// Make hydration fail at transcript load by closing the database
	closed, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "x.db"))
	require.NoError(t, err)
	closed.Close()
	c = New(closed, &fakeInference{}, nil)

	err = c.Hydrate(context.Background(), "a@b.com")
	require.Error(t, err)
	assert.Equal(t, StateUninitialized, c.State())

	// Retry with a working store path is the caller's job; a fresh
	// controller hydrates fine
	c2 := hydrated(t, newTestStore(t), &fakeInference{})
	assert.Equal(t, StateReady, c2.State())
}

func TestSendMessage_EndToEnd(t *testing.T) {
	s := newTestStore(t)
	infer := &fakeInference{reply: "hi! how can I help?"}
	c := hydrated(t, s, infer)
	ctx := context.Background()

	c.SendMessage(ctx, "hello")

	transcript := c.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, RoleUser, transcript[0].Role)
	assert.Equal(t, "hello", transcript[0].Content)
	assert.Equal(t, "a@b.com", transcript[0].AuthorEmail)
	assert.Equal(t, RoleAssistant, transcript[1].Role)
	assert.Equal(t, "hi! how can I help?", transcript[1].Content)

	// Both sides persisted, prompt before reply
	stored, err := s.ListMessages(ctx, c.SessionID())
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, store.RoleUser, stored[0].Role)
	assert.Equal(t, "hello", stored[0].Content)
	assert.Equal(t, store.RoleAssistant, stored[1].Role)

	assert.Equal(t, SendResponded, c.SendState())
	assert.False(t, c.Pending())
}

func TestSendMessage_BlankIsNoop(t *testing.T) {
	s := newTestStore(t)
	infer := &fakeInference{reply: "never"}
	c := hydrated(t, s, infer)
	ctx := context.Background()

	c.SendMessage(ctx, "")
	c.SendMessage(ctx, "   \n\t")

	assert.Empty(t, c.Transcript())
	assert.Zero(t, infer.callCount(), "no network call for blank input")

	stored, err := s.ListMessages(ctx, c.SessionID())
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestSendMessage_NotReadyIsNoop(t *testing.T) {
	infer := &fakeInference{reply: "never"}
	c := New(newTestStore(t), infer, nil)

	c.SendMessage(context.Background(), "hello")

	assert.Empty(t, c.Transcript())
	assert.Zero(t, infer.callCount())
}

func TestSendMessage_CapacitySignal(t *testing.T) {
	s := newTestStore(t)
	infer := &fakeInference{atCapacity: true}
	c := hydrated(t, s, infer)
	ctx := context.Background()

	c.SendMessage(ctx, "one turn too many")

	transcript := c.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, RoleUser, transcript[0].Role)
	assert.Equal(t, RoleEvolve, transcript[1].Role, "final entry must be the evolve notice")
	assert.True(t, c.AtCapacity())
	assert.Equal(t, SendAtCapacity, c.SendState())

	// The evolve entry is never persisted; only the user turn is
	stored, err := s.ListMessages(ctx, c.SessionID())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, store.RoleUser, stored[0].Role)

	// The session is terminal until rollover
	c.SendMessage(ctx, "hello again?")
	assert.Equal(t, 1, infer.callCount(), "no further sends while at capacity")
}

func TestSendMessage_PersistFailureDegradesToErrorEntry(t *testing.T) {
	real := newTestStore(t)
	s := &flakyStore{Store: real, failAppend: errors.New("disk full")}
	infer := &fakeInference{reply: "never"}
	c := New(s, infer, nil)
	require.NoError(t, c.Hydrate(context.Background(), "a@b.com"))

	c.SendMessage(context.Background(), "hello")

	transcript := c.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, RoleUser, transcript[0].Role)
	assert.Equal(t, RoleError, transcript[1].Role)
	assert.Contains(t, transcript[1].Content, "disk full")
	assert.Equal(t, SendFailed, c.SendState())
	assert.False(t, c.Pending(), "pending cleared on failure")

	// Ordering rule: the user persist failed, so inference was never called
	assert.Zero(t, infer.callCount())

	// The session remains usable
	s.failAppend = nil
	c.SendMessage(context.Background(), "try again")
	assert.Equal(t, SendResponded, c.SendState())
}

func TestSendMessage_InferenceFailureDegradesToErrorEntry(t *testing.T) {
	s := newTestStore(t)
	infer := &fakeInference{err: inference.ErrUnavailable}
	c := hydrated(t, s, infer)
	ctx := context.Background()

	c.SendMessage(ctx, "hello")

	transcript := c.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, RoleError, transcript[1].Role)

	// The user turn was persisted before the failed inference call
	stored, err := s.ListMessages(ctx, c.SessionID())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, store.RoleUser, stored[0].Role)
}

func TestIncrementSession_Success(t *testing.T) {
	s := newTestStore(t)
	c := hydrated(t, s, &fakeInference{atCapacity: true})
	ctx := context.Background()

	c.SendMessage(ctx, "fill it up")
	require.True(t, c.AtCapacity())
	oldID := c.SessionID()

	newID, err := c.IncrementSession(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, newID)
	assert.NotEqual(t, oldID, newID)
	assert.Equal(t, 2, c.SessionNumber())
	assert.Empty(t, c.Transcript())
	assert.False(t, c.AtCapacity(), "capacity latch cleared by successful rollover")
	assert.Equal(t, SendIdle, c.SendState())

	// Exactly one history record referencing the outgoing session
	records, err := s.ListSessionArchive(ctx, "a@b.com")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, oldID, records[0].SessionID)
	assert.Equal(t, 1, records[0].Number)
}

func TestIncrementSession_FailureLeavesStateUntouched(t *testing.T) {
	real := newTestStore(t)
	s := &flakyStore{Store: real, failRoll: errors.New("backend unavailable")}
	infer := &fakeInference{atCapacity: true}
	c := New(s, infer, nil)
	ctx := context.Background()
	require.NoError(t, c.Hydrate(ctx, "a@b.com"))

	c.SendMessage(ctx, "fill it up")
	oldID := c.SessionID()
	oldTranscript := c.Transcript()

	newID, err := c.IncrementSession(ctx)
	require.Error(t, err)
	assert.Empty(t, newID)

	// Never a partial mix
	assert.Equal(t, oldID, c.SessionID())
	assert.Equal(t, 1, c.SessionNumber())
	assert.Equal(t, oldTranscript, c.Transcript())
	assert.True(t, c.AtCapacity())
	assert.Equal(t, StateReady, c.State())

	records, listErr := real.ListSessionArchive(ctx, "a@b.com")
	require.NoError(t, listErr)
	assert.Empty(t, records)
}

func TestIncrementSession_NotReady(t *testing.T) {
	c := New(newTestStore(t), &fakeInference{}, nil)

	_, err := c.IncrementSession(context.Background())
	assert.Error(t, err)
}

func TestSendAfterRollover_UsesNewSession(t *testing.T) {
	s := newTestStore(t)
	infer := &fakeInference{atCapacity: true}
	c := hydrated(t, s, infer)
	ctx := context.Background()

	c.SendMessage(ctx, "last words")
	newID, err := c.IncrementSession(ctx)
	require.NoError(t, err)

	infer.mu.Lock()
	infer.atCapacity = false
	infer.reply = "fresh start"
	infer.mu.Unlock()

	c.SendMessage(ctx, "hello again")

	stored, err := s.ListMessages(ctx, newID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "hello again", stored[0].Content)
	assert.Equal(t, "fresh start", stored[1].Content)
}
