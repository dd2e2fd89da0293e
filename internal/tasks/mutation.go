package tasks

import (
	"context"

	"github.com/rs/zerolog/log"

	"workdeck/internal/domain"
	"workdeck/internal/metrics"
	"workdeck/internal/store"
)

// Mutator is the optimistic-concurrency update path: load, diff, overlay,
// compare-and-swap commit. It never retries; domain.ErrConflict is returned
// to the caller, who owns retry policy.
type Mutator struct {
	repo store.Repository
}

func NewMutator(repo store.Repository) *Mutator { return &Mutator{repo: repo} }

// MutationResult carries the committed snapshot, the snapshot the update was
// computed against, and the change descriptor.
type MutationResult struct {
	Task    domain.Task
	Prev    domain.Task
	Changes []string
}

// Update applies a partial update. When the change descriptor is empty the
// commit is skipped entirely: the version and updated_at stay put and the
// current snapshot is returned.
func (m *Mutator) Update(ctx context.Context, id string, u domain.TaskUpdate) (MutationResult, error) {
	return m.update(ctx, id, u, false)
}

// ForceUpdate commits even when the partial changes nothing, so the version
// still advances and updated_at is refreshed. Used by the status path.
func (m *Mutator) ForceUpdate(ctx context.Context, id string, u domain.TaskUpdate) (MutationResult, error) {
	return m.update(ctx, id, u, true)
}

func (m *Mutator) update(ctx context.Context, id string, u domain.TaskUpdate, always bool) (MutationResult, error) {
	prev, err := m.repo.LoadTask(ctx, id)
	if err != nil {
		return MutationResult{}, err
	}

	changes := Diff(prev, u)
	if len(changes) == 0 && !always {
		return MutationResult{Task: prev, Prev: prev}, nil
	}
	fields := domain.FieldsOf(prev).Overlay(u)

	committed, err := m.repo.CommitIfVersion(ctx, id, prev.Version, fields)
	if err != nil {
		if err == domain.ErrConflict {
			metrics.CommitConflicts.Inc()
			log.Warn().Str("task_id", id).Int64("version", prev.Version).Msg("optimistic lock conflict")
		}
		return MutationResult{}, err
	}

	return MutationResult{Task: committed, Prev: prev, Changes: changes}, nil
}
