// ABOUTME: Draft coordinator for a single memory being edited.
// ABOUTME: Debounces autosaves and enforces create-once-then-update.

package journal

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/solace-app/solace-core/internal/store"
)

// Status describes the draft's save lifecycle as shown to the editor.
type Status string

const (
	StatusIdle   Status = "idle"
	StatusSaving Status = "saving"
	StatusSaved  Status = "saved"
	StatusError  Status = "error"
)

// draftKeyPrefix marks scheduler keys for memories that have no id yet.
const draftKeyPrefix = "draft:"

// Draft coordinates autosaves for one memory under edit. Local text
// updates apply synchronously; persistence is debounced through the
// service's scheduler. A draft without a persisted memory issues exactly
// one create, no matter how many edits land before or during that
// create; every later save is an update against the assigned id.
type Draft struct {
	svc *Service

	mu       sync.Mutex
	branchID string
	memoryID string // empty until the first create resolves
	key      string // scheduler key; re-keyed to memoryID after create
	text     string
	status   Status

	createInFlight    bool
	dirtyDuringCreate bool
}

// NewDraft starts an empty draft in the given branch. Nothing is
// persisted until meaningful text arrives.
func (s *Service) NewDraft(branchID string) *Draft {
	return &Draft{
		svc:      s,
		branchID: branchID,
		key:      draftKeyPrefix + uuid.New().String(),
		status:   StatusIdle,
	}
}

// EditMemory opens a draft over an already-persisted memory. Saves go
// straight to updates.
func (s *Service) EditMemory(m *store.Memory) *Draft {
	return &Draft{
		svc:      s,
		branchID: m.BranchID,
		memoryID: m.ID,
		key:      m.ID,
		text:     m.Content,
		status:   StatusIdle,
	}
}

// SetText applies an edit. The local copy updates immediately; a
// persisted write is scheduled only when the text carries meaningful
// content. Structural-only text cancels any pending write instead.
func (d *Draft) SetText(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.text = text

	if !Meaningful(text, d.svc.minMeaningful) {
		d.svc.sched.Cancel(d.key)
		if !d.createInFlight {
			d.status = StatusIdle
		}
		return
	}

	if d.createInFlight {
		// The create call is already on the wire. Remember the edit and
		// replay it as an update once an id exists.
		d.dirtyDuringCreate = true
		return
	}

	d.scheduleLocked()
}

// Status returns the draft's current save state.
func (d *Draft) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Text returns the draft's current local text.
func (d *Draft) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text
}

// MemoryID returns the persisted memory id, or "" before the first
// create resolves.
func (d *Draft) MemoryID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.memoryID
}

// Cancel closes the editing surface. Unsaved meaningful content is
// flushed synchronously first so the edit is not lost; structural-only
// content is discarded.
func (d *Draft) Cancel() error {
	d.mu.Lock()
	key := d.key
	flush := Meaningful(d.text, d.svc.minMeaningful) && d.svc.sched.Pending(key)
	d.mu.Unlock()

	if flush {
		return d.svc.sched.Flush(key)
	}
	d.svc.sched.Cancel(key)
	return nil
}

// scheduleLocked arms the debounce timer for the draft's next write.
// Caller holds d.mu.
func (d *Draft) scheduleLocked() {
	if d.svc.sched.Pending(d.key) {
		d.svc.metrics.IncCoalesced()
	}

	if d.memoryID == "" {
		d.svc.sched.Schedule(d.key, d.persistCreate)
	} else {
		d.svc.sched.Schedule(d.key, d.persistUpdate)
	}
}

// persistCreate issues the draft's one and only create. The in-flight
// latch is set before the store call so concurrent edits cannot arm a
// second create; they are replayed as an update afterwards.
func (d *Draft) persistCreate(ctx context.Context) error {
	d.mu.Lock()
	if d.memoryID != "" {
		// A flush raced the timer and the create already resolved.
		content := d.text
		d.mu.Unlock()
		return d.persistUpdateContent(ctx, content)
	}
	d.createInFlight = true
	d.dirtyDuringCreate = false
	d.status = StatusSaving
	memory := &store.Memory{
		ID:        uuid.New().String(),
		BranchID:  d.branchID,
		Content:   d.text,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	d.mu.Unlock()

	err := d.svc.store.CreateMemory(ctx, memory)

	d.mu.Lock()
	d.createInFlight = false
	if err != nil {
		d.status = StatusError
		dirty := d.dirtyDuringCreate
		d.dirtyDuringCreate = false
		if dirty && Meaningful(d.text, d.svc.minMeaningful) {
			d.scheduleLocked()
		}
		d.mu.Unlock()
		d.svc.metrics.IncAutosave("error")
		d.svc.logger.Error("memory create failed", "branch", d.branchID, "error", err)
		return err
	}

	d.memoryID = memory.ID
	d.key = memory.ID
	d.status = StatusSaved
	dirty := d.dirtyDuringCreate
	d.dirtyDuringCreate = false
	if dirty && d.text != memory.Content {
		d.scheduleLocked()
	}
	d.mu.Unlock()

	d.svc.metrics.IncAutosave("saved")
	return nil
}

// persistUpdate saves the draft's current text against its memory id.
func (d *Draft) persistUpdate(ctx context.Context) error {
	d.mu.Lock()
	content := d.text
	d.mu.Unlock()
	return d.persistUpdateContent(ctx, content)
}

func (d *Draft) persistUpdateContent(ctx context.Context, content string) error {
	d.mu.Lock()
	id := d.memoryID
	d.status = StatusSaving
	d.mu.Unlock()

	_, err := d.svc.store.UpdateMemory(ctx, id, content)

	d.mu.Lock()
	if err != nil {
		d.status = StatusError
	} else {
		d.status = StatusSaved
	}
	d.mu.Unlock()

	if err != nil {
		d.svc.metrics.IncAutosave("error")
		d.svc.logger.Error("memory update failed", "memory", id, "error", err)
		return err
	}
	d.svc.metrics.IncAutosave("saved")
	return nil
}
