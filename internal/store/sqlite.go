package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"workdeck/internal/domain"
)

// EnsureSchema creates tables if they don't exist.
func EnsureSchema(db *sql.DB) error {
	schema := `
PRAGMA journal_mode=WAL;
PRAGMA foreign_keys=ON;
CREATE TABLE IF NOT EXISTS projects (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  created_at DATETIME NOT NULL,
  updated_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS tasks (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  priority INTEGER NOT NULL,
  due_date DATETIME NOT NULL,
  assignee TEXT NOT NULL,
  status TEXT NOT NULL CHECK(status IN ('PENDING','IN_PROGRESS','COMPLETED')) DEFAULT 'PENDING',
  version INTEGER NOT NULL DEFAULT 0,
  project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
  created_at DATETIME NOT NULL,
  updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id);
CREATE INDEX IF NOT EXISTS idx_tasks_due_date ON tasks(due_date);
CREATE INDEX IF NOT EXISTS idx_tasks_priority ON tasks(priority);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  email TEXT NOT NULL UNIQUE,
  full_name TEXT NOT NULL DEFAULT '',
  created_at DATETIME NOT NULL,
  updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
`
	_, err := db.Exec(schema)
	return err
}

// TaskQuery narrows and orders ListTasks results. Zero values mean "no
// filter"; Page is 0-indexed and Size is clamped to [1,100] with default 20.
type TaskQuery struct {
	ProjectID string
	Status    *domain.Status
	Name      string // case-insensitive substring match
	StartDate *time.Time
	EndDate   *time.Time
	SortBy    string // "dueDate" (default) or "priority"
	Order     string // "asc" (default) or "desc"
	Page      int
	Size      int
}

type Repository interface {
	// Task record operations. CommitIfVersion is the single mutation path:
	// it atomically applies fields iff the stored version still equals
	// expected, bumping version by one and refreshing updated_at.
	CreateTask(ctx context.Context, t domain.Task) (domain.Task, error)
	LoadTask(ctx context.Context, id string) (domain.Task, error)
	CommitIfVersion(ctx context.Context, id string, expected int64, f domain.Fields) (domain.Task, error)
	DeleteTask(ctx context.Context, id string) error
	ListTasks(ctx context.Context, q TaskQuery) ([]domain.Task, int64, error)
	PurgeCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Project operations. Deleting a project cascades to its tasks.
	CreateProject(ctx context.Context, p domain.Project) (domain.Project, error)
	GetProject(ctx context.Context, id string) (domain.Project, error)
	ProjectExists(ctx context.Context, id string) (bool, error)
	ListProjects(ctx context.Context) ([]domain.Project, error)
	UpdateProject(ctx context.Context, p domain.Project) (domain.Project, error)
	DeleteProject(ctx context.Context, id string) error

	// User directory operations. SearchUsers matches username or email with
	// a case-insensitive substring; an empty term returns everyone.
	CreateUser(ctx context.Context, u domain.User) (domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	SearchUsers(ctx context.Context, term string) ([]domain.User, error)
}

type sqliteRepo struct{ db *sql.DB }

func NewSQLiteRepo(db *sql.DB) Repository { return &sqliteRepo{db: db} }

const taskColumns = `id,name,priority,due_date,assignee,status,version,project_id,created_at,updated_at`

// taskSelect adds the owning project's name so task reads never need a
// second round trip.
const taskSelect = `id,name,priority,due_date,assignee,status,version,project_id,
(SELECT name FROM projects p WHERE p.id = tasks.project_id) AS project_name,
created_at,updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (domain.Task, error) {
	var t domain.Task
	err := row.Scan(&t.ID, &t.Name, &t.Priority, &t.DueDate, &t.Assignee, &t.Status, &t.Version, &t.ProjectID, &t.ProjectName, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (r *sqliteRepo) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	if t.ID == "" {
		t.ID = "tsk_" + uuid.NewString()
	}
	now := time.Now().UTC()
	t.Version = 0
	t.CreatedAt = now
	t.UpdatedAt = now
	_, err := r.db.ExecContext(ctx, `
INSERT INTO tasks (`+taskColumns+`)
VALUES (?,?,?,?,?,?,0,?,?,?)
`, t.ID, t.Name, t.Priority, t.DueDate, t.Assignee, t.Status, t.ProjectID, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (r *sqliteRepo) LoadTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+taskSelect+` FROM tasks WHERE id=?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return domain.Task{}, domain.ErrTaskNotFound
	}
	if err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (r *sqliteRepo) CommitIfVersion(ctx context.Context, id string, expected int64, f domain.Fields) (domain.Task, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
UPDATE tasks
SET name=?, priority=?, due_date=?, assignee=?, status=?, version=version+1, updated_at=?
WHERE id=? AND version=?
`, f.Name, f.Priority, f.DueDate, f.Assignee, f.Status, now, id, expected)
	if err != nil {
		return domain.Task{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Task{}, err
	}
	if n == 0 {
		// Disambiguate: a missing row is not a version clash.
		var exists int
		if err = tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM tasks WHERE id=?`, id).Scan(&exists); err != nil {
			return domain.Task{}, err
		}
		if exists == 0 {
			err = domain.ErrTaskNotFound
		} else {
			err = domain.ErrConflict
		}
		return domain.Task{}, err
	}

	t, err := scanTask(tx.QueryRowContext(ctx, `SELECT `+taskSelect+` FROM tasks WHERE id=?`, id))
	if err != nil {
		return domain.Task{}, err
	}
	if err = tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (r *sqliteRepo) DeleteTask(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

func (r *sqliteRepo) ListTasks(ctx context.Context, q TaskQuery) ([]domain.Task, int64, error) {
	where, args := buildTaskFilter(q)

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM tasks`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sortField := "due_date"
	if q.SortBy == "priority" {
		sortField = "priority"
	}
	dir := "ASC"
	if strings.EqualFold(q.Order, "desc") {
		dir = "DESC"
	}
	size := q.Size
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	page := q.Page
	if page < 0 {
		page = 0
	}

	query := fmt.Sprintf(`SELECT `+taskSelect+` FROM tasks%s ORDER BY %s %s, id ASC LIMIT ? OFFSET ?`, where, sortField, dir)
	rows, err := r.db.QueryContext(ctx, query, append(args, size, page*size)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, err
		}
		tasks = append(tasks, t)
	}
	return tasks, total, rows.Err()
}

func buildTaskFilter(q TaskQuery) (string, []any) {
	var conds []string
	var args []any
	if q.ProjectID != "" {
		conds = append(conds, "project_id=?")
		args = append(args, q.ProjectID)
	}
	if q.Status != nil {
		conds = append(conds, "status=?")
		args = append(args, *q.Status)
	}
	if q.Name != "" {
		conds = append(conds, "name LIKE ? COLLATE NOCASE")
		args = append(args, "%"+q.Name+"%")
	}
	if q.StartDate != nil {
		conds = append(conds, "due_date>=?")
		args = append(args, *q.StartDate)
	}
	if q.EndDate != nil {
		conds = append(conds, "due_date<=?")
		args = append(args, *q.EndDate)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *sqliteRepo) PurgeCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE status='COMPLETED' AND updated_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const projectColumns = `p.id, p.name, p.description,
(SELECT COUNT(1) FROM tasks t WHERE t.project_id = p.id) AS task_count,
p.created_at, p.updated_at`

func scanProject(row scanner) (domain.Project, error) {
	var p domain.Project
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.TaskCount, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *sqliteRepo) CreateProject(ctx context.Context, p domain.Project) (domain.Project, error) {
	if p.ID == "" {
		p.ID = "prj_" + uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	_, err := r.db.ExecContext(ctx, `
INSERT INTO projects (id,name,description,created_at,updated_at) VALUES (?,?,?,?,?)
`, p.ID, p.Name, p.Description, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (r *sqliteRepo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects p WHERE p.id=?`, id)
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return domain.Project{}, domain.ErrProjectNotFound
	}
	if err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (r *sqliteRepo) ProjectExists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM projects WHERE id=?`, id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *sqliteRepo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects p ORDER BY p.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (r *sqliteRepo) UpdateProject(ctx context.Context, p domain.Project) (domain.Project, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE projects SET name=?, description=?, updated_at=? WHERE id=?
`, p.Name, p.Description, time.Now().UTC(), p.ID)
	if err != nil {
		return domain.Project{}, err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.Project{}, domain.ErrProjectNotFound
	}
	return r.GetProject(ctx, p.ID)
}

func (r *sqliteRepo) DeleteProject(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrProjectNotFound
	}
	return nil
}

const userColumns = `id,username,email,full_name,created_at,updated_at`

func scanUser(row scanner) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (r *sqliteRepo) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	if u.ID == "" {
		u.ID = "usr_" + uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	_, err := r.db.ExecContext(ctx, `
INSERT INTO users (`+userColumns+`) VALUES (?,?,?,?,?,?)
`, u.ID, u.Username, u.Email, u.FullName, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (r *sqliteRepo) ListUsers(ctx context.Context) ([]domain.User, error) {
	return r.queryUsers(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
}

func (r *sqliteRepo) SearchUsers(ctx context.Context, term string) ([]domain.User, error) {
	if strings.TrimSpace(term) == "" {
		return r.ListUsers(ctx)
	}
	pattern := "%" + term + "%"
	return r.queryUsers(ctx, `
SELECT `+userColumns+` FROM users
WHERE username LIKE ? COLLATE NOCASE OR email LIKE ? COLLATE NOCASE
ORDER BY username
`, pattern, pattern)
}

func (r *sqliteRepo) queryUsers(ctx context.Context, query string, args ...any) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
