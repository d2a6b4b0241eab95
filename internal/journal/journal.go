// ABOUTME: Journal service owning branches, memories, and draft autosave.
// ABOUTME: Applies the debounced scheduler to free-text memory editing.

package journal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/solace-app/solace-core/internal/observability"
	"github.com/solace-app/solace-core/internal/scheduler"
	"github.com/solace-app/solace-core/internal/store"
)

// Store defines what the journal needs from the persistence gateway.
type Store interface {
	CreateBranch(ctx context.Context, branch *store.Branch) error
	DeleteBranch(ctx context.Context, id string) error
	ListBranches(ctx context.Context, ownerEmail string) ([]*store.Branch, error)
	CreateMemory(ctx context.Context, memory *store.Memory) error
	UpdateMemory(ctx context.Context, id, content string) (*store.Memory, error)
	DeleteMemory(ctx context.Context, id string) (bool, error)
	ListMemories(ctx context.Context, branchID string) ([]*store.Memory, error)
}

// Service provides journal operations for one signed-in identity.
type Service struct {
	store   Store
	sched   *scheduler.Scheduler
	metrics *observability.Metrics
	logger  *slog.Logger

	ownerEmail    string
	minMeaningful int
}

// Config carries Service construction parameters.
type Config struct {
	OwnerEmail    string
	AutosaveDelay time.Duration
	MinMeaningful int
	Metrics       *observability.Metrics
}

// NewService creates a journal service with its own autosave scheduler.
func NewService(s Store, cfg Config) *Service {
	return &Service{
		store:         s,
		sched:         scheduler.New(cfg.AutosaveDelay, nil),
		metrics:       cfg.Metrics,
		logger:        slog.Default().With("component", "journal"),
		ownerEmail:    cfg.OwnerEmail,
		minMeaningful: cfg.MinMeaningful,
	}
}

// Close cancels all pending autosaves without executing them. Editors
// that need their last edit flushed call Draft.Cancel first.
func (s *Service) Close() {
	s.sched.Close()
}

// ListBranches returns the identity's branches.
func (s *Service) ListBranches(ctx context.Context) ([]*store.Branch, error) {
	return s.store.ListBranches(ctx, s.ownerEmail)
}

// CreateBranch creates a named branch for the identity.
func (s *Service) CreateBranch(ctx context.Context, name string) (*store.Branch, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("branch name is required")
	}

	branch := &store.Branch{
		ID:         uuid.New().String(),
		OwnerEmail: s.ownerEmail,
		Name:       name,
		CreatedAt:  time.Now(),
	}
	if err := s.store.CreateBranch(ctx, branch); err != nil {
		return nil, err
	}
	return branch, nil
}

// DeleteBranch removes a branch and its memories.
func (s *Service) DeleteBranch(ctx context.Context, id string) error {
	return s.store.DeleteBranch(ctx, id)
}

// ListMemories returns a branch's memories.
func (s *Service) ListMemories(ctx context.Context, branchID string) ([]*store.Memory, error) {
	return s.store.ListMemories(ctx, branchID)
}

// DeleteMemory removes a memory, reporting whether it existed.
func (s *Service) DeleteMemory(ctx context.Context, id string) (bool, error) {
	return s.store.DeleteMemory(ctx, id)
}
