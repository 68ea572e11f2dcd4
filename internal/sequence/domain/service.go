package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

const (
	InstituteScopeKey  = "institute"
	InstituteScopeCode = "INST"
	BranchScopePrefix  = "branch-"
)

type Repository interface {
	Ensure(ctx context.Context, db *gorm.DB, scope string) error
	LockForUpdate(ctx context.Context, db *gorm.DB, scope string) (*Sequence, error)
	Increment(ctx context.Context, db *gorm.DB, scope string) (int64, error)
	Find(ctx context.Context, db *gorm.DB, scope string) (*Sequence, error)
}

type Service interface {
	// Allocate advances the counter inside tx. The increment commits or
	// rolls back together with the caller's transaction.
	Allocate(ctx context.Context, tx *gorm.DB, scope string) (int64, error)
	// Peek returns the value the next successful Allocate would return.
	Peek(ctx context.Context, scope string) (int64, error)
	// Scope resolves the numbering scope for a branch under the current
	// ledger configuration.
	Scope(branchCode string) (Scope, error)
	// Format renders a receipt number for seq.
	Format(scope Scope, seq int64) (string, error)
}

var (
	ErrAllocatorUnavailable = errors.New("allocator_unavailable")
	ErrInvalidScope         = errors.New("invalid_scope")
	ErrInvalidBranch        = errors.New("invalid_branch")
)
