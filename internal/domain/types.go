package domain

import "time"

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
)

// ValidStatus reports whether s is one of the known status values. There is
// no transition graph: any status may move to any other.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

type Task struct {
	ID          string
	Name        string
	Priority    int
	DueDate     time.Time // date only, midnight UTC
	Assignee    string
	Status      Status
	Version     int64
	ProjectID   string
	ProjectName string // denormalized from the owning project on reads
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// User is a directory entry for lookups and assignment; credentials are
// never exposed through it.
type User struct {
	ID        string
	Username  string
	Email     string
	FullName  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Project struct {
	ID          string
	Name        string
	Description string
	TaskCount   int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TaskUpdate is a partial update. A nil field means "leave unchanged"; a
// non-nil field is an explicit new value, even if equal to the current one.
type TaskUpdate struct {
	Name     *string
	Priority *int
	DueDate  *time.Time
	Assignee *string
	Status   *Status
}

// Fields is the full mutable field set handed to the store on commit.
type Fields struct {
	Name     string
	Priority int
	DueDate  time.Time
	Assignee string
	Status   Status
}

// FieldsOf snapshots the mutable fields of t.
func FieldsOf(t Task) Fields {
	return Fields{
		Name:     t.Name,
		Priority: t.Priority,
		DueDate:  t.DueDate,
		Assignee: t.Assignee,
		Status:   t.Status,
	}
}

// Overlay applies the supplied fields of u on top of f.
func (f Fields) Overlay(u TaskUpdate) Fields {
	if u.Name != nil {
		f.Name = *u.Name
	}
	if u.Priority != nil {
		f.Priority = *u.Priority
	}
	if u.DueDate != nil {
		f.DueDate = *u.DueDate
	}
	if u.Assignee != nil {
		f.Assignee = *u.Assignee
	}
	if u.Status != nil {
		f.Status = *u.Status
	}
	return f
}
