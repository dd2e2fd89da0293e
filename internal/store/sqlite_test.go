package store_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"workdeck/internal/domain"
	"workdeck/internal/store"
)

func newTestRepo(t *testing.T) store.Repository {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, store.EnsureSchema(db))
	return store.NewSQLiteRepo(db)
}

func newProject(t *testing.T, repo store.Repository) domain.Project {
	t.Helper()
	p, err := repo.CreateProject(context.Background(), domain.Project{Name: "Apollo", Description: "launch prep"})
	require.NoError(t, err)
	return p
}

func newTask(t *testing.T, repo store.Repository, projectID, name string) domain.Task {
	t.Helper()
	tk, err := repo.CreateTask(context.Background(), domain.Task{
		Name:      name,
		Priority:  3,
		DueDate:   date(2026, 9, 15),
		Assignee:  "dana@example.com",
		Status:    domain.StatusPending,
		ProjectID: projectID,
	})
	require.NoError(t, err)
	return tk
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCreateAndLoadTask(t *testing.T) {
	repo := newTestRepo(t)
	p := newProject(t, repo)
	created := newTask(t, repo, p.ID, "write checklist")

	require.NotEmpty(t, created.ID)
	assert.EqualValues(t, 0, created.Version)
	assert.False(t, created.CreatedAt.IsZero())

	loaded, err := repo.LoadTask(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, loaded.ID)
	assert.Equal(t, "write checklist", loaded.Name)
	assert.Equal(t, 3, loaded.Priority)
	assert.True(t, loaded.DueDate.Equal(date(2026, 9, 15)))
	assert.Equal(t, domain.StatusPending, loaded.Status)
	assert.EqualValues(t, 0, loaded.Version)
	assert.Equal(t, p.ID, loaded.ProjectID)
	assert.Equal(t, "Apollo", loaded.ProjectName)
}

func TestLoadTaskNotFound(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.LoadTask(context.Background(), "tsk_missing")
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}

func TestCommitIfVersion(t *testing.T) {
	repo := newTestRepo(t)
	p := newProject(t, repo)
	tk := newTask(t, repo, p.ID, "write checklist")

	fields := domain.FieldsOf(tk)
	fields.Priority = 5
	committed, err := repo.CommitIfVersion(context.Background(), tk.ID, 0, fields)
	require.NoError(t, err)
	assert.EqualValues(t, 1, committed.Version)
	assert.Equal(t, 5, committed.Priority)
	assert.Equal(t, "Apollo", committed.ProjectName)
	assert.True(t, committed.UpdatedAt.After(tk.UpdatedAt) || committed.UpdatedAt.Equal(tk.UpdatedAt))

	// Stale expected version is a conflict, not an overwrite.
	_, err = repo.CommitIfVersion(context.Background(), tk.ID, 0, fields)
	assert.ErrorIs(t, err, domain.ErrConflict)

	reloaded, err := repo.LoadTask(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, reloaded.Version)
}

func TestCommitIfVersionNotFound(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.CommitIfVersion(context.Background(), "tsk_missing", 0, domain.Fields{
		Name: "x", Priority: 1, DueDate: date(2026, 1, 1), Assignee: "a", Status: domain.StatusPending,
	})
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}

func TestCommitVersionMonotonic(t *testing.T) {
	repo := newTestRepo(t)
	p := newProject(t, repo)
	tk := newTask(t, repo, p.ID, "write checklist")

	fields := domain.FieldsOf(tk)
	for i := int64(0); i < 5; i++ {
		fields.Priority = int(i%5) + 1
		committed, err := repo.CommitIfVersion(context.Background(), tk.ID, i, fields)
		require.NoError(t, err)
		assert.Equal(t, i+1, committed.Version)
	}
}

func TestConcurrentCommitsSameVersion(t *testing.T) {
	// Two racers from version 0: exactly one wins, the other gets a
	// conflict, and the record lands on the winner's status at version 1.
	repo := newTestRepo(t)
	p := newProject(t, repo)
	tk := newTask(t, repo, p.ID, "write checklist")

	statuses := []domain.Status{domain.StatusInProgress, domain.StatusCompleted}
	results := make([]error, len(statuses))
	var wg sync.WaitGroup
	for i, st := range statuses {
		wg.Add(1)
		go func(i int, st domain.Status) {
			defer wg.Done()
			fields := domain.FieldsOf(tk)
			fields.Status = st
			_, err := repo.CommitIfVersion(context.Background(), tk.ID, 0, fields)
			results[i] = err
		}(i, st)
	}
	wg.Wait()

	var successes, conflicts int
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		case err == domain.ErrConflict:
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)

	final, err := repo.LoadTask(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, final.Version)
	assert.Contains(t, statuses, final.Status)
}

func TestDeleteTask(t *testing.T) {
	repo := newTestRepo(t)
	p := newProject(t, repo)
	tk := newTask(t, repo, p.ID, "write checklist")

	require.NoError(t, repo.DeleteTask(context.Background(), tk.ID))
	assert.ErrorIs(t, repo.DeleteTask(context.Background(), tk.ID), domain.ErrTaskNotFound)
	_, err := repo.LoadTask(context.Background(), tk.ID)
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}

func TestDeleteProjectCascades(t *testing.T) {
	repo := newTestRepo(t)
	p := newProject(t, repo)
	t1 := newTask(t, repo, p.ID, "one")
	t2 := newTask(t, repo, p.ID, "two")

	require.NoError(t, repo.DeleteProject(context.Background(), p.ID))

	_, err := repo.LoadTask(context.Background(), t1.ID)
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
	_, err = repo.LoadTask(context.Background(), t2.ID)
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}

func TestListTasksFiltersAndPaging(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	p := newProject(t, repo)

	seed := []struct {
		name     string
		priority int
		due      time.Time
		status   domain.Status
	}{
		{"deploy staging", 5, date(2026, 9, 1), domain.StatusPending},
		{"Deploy prod", 4, date(2026, 9, 3), domain.StatusInProgress},
		{"write docs", 2, date(2026, 9, 2), domain.StatusCompleted},
		{"review PR", 1, date(2026, 9, 4), domain.StatusPending},
	}
	for _, s := range seed {
		_, err := repo.CreateTask(ctx, domain.Task{
			Name: s.name, Priority: s.priority, DueDate: s.due,
			Assignee: "dana@example.com", Status: s.status, ProjectID: p.ID,
		})
		require.NoError(t, err)
	}

	t.Run("status filter", func(t *testing.T) {
		pending := domain.StatusPending
		items, total, err := repo.ListTasks(ctx, store.TaskQuery{Status: &pending})
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		assert.Len(t, items, 2)
	})

	t.Run("name filter is case-insensitive substring", func(t *testing.T) {
		items, total, err := repo.ListTasks(ctx, store.TaskQuery{Name: "deploy"})
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		assert.Len(t, items, 2)
	})

	t.Run("date range", func(t *testing.T) {
		start, end := date(2026, 9, 2), date(2026, 9, 3)
		items, total, err := repo.ListTasks(ctx, store.TaskQuery{StartDate: &start, EndDate: &end})
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		assert.Len(t, items, 2)
	})

	t.Run("sort by priority desc", func(t *testing.T) {
		items, _, err := repo.ListTasks(ctx, store.TaskQuery{SortBy: "priority", Order: "desc"})
		require.NoError(t, err)
		require.Len(t, items, 4)
		assert.Equal(t, 5, items[0].Priority)
		assert.Equal(t, 1, items[3].Priority)
	})

	t.Run("default sort is due date asc", func(t *testing.T) {
		items, _, err := repo.ListTasks(ctx, store.TaskQuery{})
		require.NoError(t, err)
		require.Len(t, items, 4)
		assert.True(t, items[0].DueDate.Equal(date(2026, 9, 1)))
		assert.True(t, items[3].DueDate.Equal(date(2026, 9, 4)))
	})

	t.Run("paging", func(t *testing.T) {
		items, total, err := repo.ListTasks(ctx, store.TaskQuery{Size: 3, Page: 1})
		require.NoError(t, err)
		assert.EqualValues(t, 4, total)
		assert.Len(t, items, 1)
	})
}

func TestPurgeCompletedBefore(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	p := newProject(t, repo)

	done, err := repo.CreateTask(ctx, domain.Task{
		Name: "done", Priority: 1, DueDate: date(2026, 8, 1),
		Assignee: "dana@example.com", Status: domain.StatusCompleted, ProjectID: p.ID,
	})
	require.NoError(t, err)
	open := newTask(t, repo, p.ID, "open")

	n, err := repo.PurgeCompletedBefore(ctx, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = repo.LoadTask(ctx, done.ID)
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
	_, err = repo.LoadTask(ctx, open.ID)
	assert.NoError(t, err)
}

func TestUserDirectory(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	seed := []domain.User{
		{Username: "dana", Email: "dana@example.com", FullName: "Dana Park"},
		{Username: "miguel", Email: "miguel@example.com", FullName: "Miguel Reyes"},
		{Username: "aki", Email: "aki@other.org", FullName: "Aki Tanaka"},
	}
	for _, u := range seed {
		created, err := repo.CreateUser(ctx, u)
		require.NoError(t, err)
		require.NotEmpty(t, created.ID)
	}

	all, err := repo.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "aki", all[0].Username) // ordered by username

	t.Run("search matches username case-insensitively", func(t *testing.T) {
		got, err := repo.SearchUsers(ctx, "DANA")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "dana", got[0].Username)
	})

	t.Run("search matches email substring", func(t *testing.T) {
		got, err := repo.SearchUsers(ctx, "example.com")
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("blank term returns everyone", func(t *testing.T) {
		got, err := repo.SearchUsers(ctx, "  ")
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})

	t.Run("no match returns empty", func(t *testing.T) {
		got, err := repo.SearchUsers(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("duplicate username is rejected", func(t *testing.T) {
		_, err := repo.CreateUser(ctx, domain.User{Username: "dana", Email: "dana2@example.com"})
		assert.Error(t, err)
	})
}

func TestProjectCRUD(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	p, err := repo.CreateProject(ctx, domain.Project{Name: "Apollo", Description: "launch prep"})
	require.NoError(t, err)
	require.NotEmpty(t, p.ID)

	newTask(t, repo, p.ID, "one")

	got, err := repo.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Apollo", got.Name)
	assert.EqualValues(t, 1, got.TaskCount)

	exists, err := repo.ProjectExists(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = repo.ProjectExists(ctx, "prj_missing")
	require.NoError(t, err)
	assert.False(t, exists)

	got.Name = "Apollo 11"
	updated, err := repo.UpdateProject(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, "Apollo 11", updated.Name)

	list, err := repo.ListProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, repo.DeleteProject(ctx, p.ID))
	_, err = repo.GetProject(ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrProjectNotFound)
	assert.ErrorIs(t, repo.DeleteProject(ctx, p.ID), domain.ErrProjectNotFound)
}
