package lifecycle

import (
	"context"

	"github.com/five82/sluice/internal/model"
)

// Provider supplies component model snapshots for a subject and accepts state
// written back by the coordinator.
type Provider[T any] interface {
	// Init prepares the subject and returns its initial snapshot.
	Init(ctx context.Context, subjectID string, route model.Params) (*model.Snapshot[T], error)
	// Model streams snapshots for the subject in order until ctx is cancelled.
	Model(ctx context.Context, subjectID string, route model.Params) (<-chan *model.Snapshot[T], error)
	// Update stores a normalized snapshot.
	Update(ctx context.Context, s *model.Snapshot[T]) error
	// Idle records the final snapshot of a subscription.
	Idle(ctx context.Context, s *model.Snapshot[T]) error
}
