package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"workdeck/internal/domain"
	"workdeck/internal/notify"
	"workdeck/internal/store"
)

// Dispatcher is the slice of the notification dispatcher the orchestrator
// needs.
type Dispatcher interface {
	Submit(job notify.Job)
}

// Service orchestrates task operations: it composes the record store, the
// OCC mutation path, and the notification dispatcher, and owns the
// per-operation notification policy.
type Service struct {
	repo store.Repository
	mut  *Mutator
	disp Dispatcher
}

func NewService(repo store.Repository, disp Dispatcher) *Service {
	return &Service{repo: repo, mut: NewMutator(repo), disp: disp}
}

type CreateTask struct {
	Name     string
	Priority int
	DueDate  time.Time
	Assignee string
}

// Create constructs a task at version 0 under an existing project and always
// submits a CREATED notification.
func (s *Service) Create(ctx context.Context, projectID string, in CreateTask) (domain.Task, error) {
	project, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.Task{}, err
	}

	t, err := s.repo.CreateTask(ctx, domain.Task{
		Name:      in.Name,
		Priority:  in.Priority,
		DueDate:   in.DueDate,
		Assignee:  in.Assignee,
		Status:    domain.StatusPending,
		ProjectID: projectID,
	})
	if err != nil {
		return domain.Task{}, err
	}
	t.ProjectName = project.Name
	log.Info().Str("task_id", t.ID).Str("project_id", projectID).Msg("task created")

	s.disp.Submit(notify.Job{
		Kind:        notify.KindCreated,
		Recipient:   t.Assignee,
		Task:        t,
		ProjectName: project.Name,
	})
	return t, nil
}

// Update applies a partial update through the OCC path. An UPDATED
// notification is submitted only when the change descriptor is non-empty; a
// no-op update skips the commit entirely, so the version and updated_at stay
// untouched and nothing is sent.
func (s *Service) Update(ctx context.Context, id string, u domain.TaskUpdate) (domain.Task, error) {
	res, err := s.mut.Update(ctx, id, u)
	if err != nil {
		return domain.Task{}, err
	}
	log.Info().Str("task_id", id).Int64("version", res.Task.Version).Strs("changes", res.Changes).Msg("task updated")

	if len(res.Changes) > 0 {
		s.disp.Submit(notify.Job{
			Kind:        notify.KindUpdated,
			Recipient:   res.Task.Assignee,
			Task:        res.Task,
			ProjectName: res.Task.ProjectName,
			Changes:     res.Changes,
		})
	}
	return res.Task, nil
}

// UpdateStatus sets the status through the OCC path and submits a
// STATUS_CHANGED notification unconditionally, even when the status did not
// actually change.
func (s *Service) UpdateStatus(ctx context.Context, id string, status domain.Status) (domain.Task, error) {
	res, err := s.mut.ForceUpdate(ctx, id, domain.TaskUpdate{Status: &status})
	if err != nil {
		return domain.Task{}, err
	}
	log.Info().Str("task_id", id).Str("status", string(status)).Int64("version", res.Task.Version).Msg("task status updated")

	s.disp.Submit(notify.Job{
		Kind:        notify.KindStatusChanged,
		Recipient:   res.Task.Assignee,
		Task:        res.Task,
		ProjectName: res.Task.ProjectName,
		OldStatus:   res.Prev.Status,
		NewStatus:   status,
	})
	return res.Task, nil
}

// Delete removes the task outright. No version check, no notification.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.DeleteTask(ctx, id); err != nil {
		return err
	}
	log.Info().Str("task_id", id).Msg("task deleted")
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Task, error) {
	return s.repo.LoadTask(ctx, id)
}

// List returns tasks across all projects with optional filters.
func (s *Service) List(ctx context.Context, q store.TaskQuery) ([]domain.Task, int64, error) {
	if err := validateDateRange(q); err != nil {
		return nil, 0, err
	}
	return s.repo.ListTasks(ctx, q)
}

// ListForProject returns tasks for one project, failing if the project does
// not exist.
func (s *Service) ListForProject(ctx context.Context, projectID string, q store.TaskQuery) ([]domain.Task, int64, error) {
	exists, err := s.repo.ProjectExists(ctx, projectID)
	if err != nil {
		return nil, 0, err
	}
	if !exists {
		return nil, 0, domain.ErrProjectNotFound
	}
	if err := validateDateRange(q); err != nil {
		return nil, 0, err
	}
	q.ProjectID = projectID
	return s.repo.ListTasks(ctx, q)
}

func validateDateRange(q store.TaskQuery) error {
	if q.StartDate != nil && q.EndDate != nil && q.StartDate.After(*q.EndDate) {
		return fmt.Errorf("%w: start date must be before end date", domain.ErrInvalidInput)
	}
	return nil
}
