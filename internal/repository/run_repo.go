package repository

import (
	"context"

	"github.com/notifyhub/whatsapp-dispatcher/internal/domain"
)

// RunRepository persists the history of send runs.
// The pgx implementation is in pg_run_repo.go; memory_run_repo.go serves
// both tests and deployments without DATABASE_URL.
type RunRepository interface {
	Create(ctx context.Context, run *domain.Run) error
	// Update overwrites the mutable fields (status, counters, last message,
	// error, timestamps) of an existing run.
	Update(ctx context.Context, run *domain.Run) error
	GetByID(ctx context.Context, id string) (*domain.Run, error)
	// List returns the most recent runs first. limit <= 0 means no limit.
	List(ctx context.Context, limit int) ([]*domain.Run, error)
}
