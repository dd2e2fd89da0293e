package tasks

import (
	"fmt"

	"workdeck/internal/domain"
)

// Diff computes the ordered change descriptor between old and a partial
// update. Field order is fixed: name, priority, due date, assignee, status.
// A field contributes an entry only when the update supplies a value that
// differs from old. Pure and deterministic.
func Diff(old domain.Task, u domain.TaskUpdate) []string {
	var changes []string
	if u.Name != nil && *u.Name != old.Name {
		changes = append(changes, fmt.Sprintf("name changed to '%s'", *u.Name))
	}
	if u.Priority != nil && *u.Priority != old.Priority {
		changes = append(changes, fmt.Sprintf("priority changed to %d", *u.Priority))
	}
	if u.DueDate != nil && !u.DueDate.Equal(old.DueDate) {
		changes = append(changes, "due date changed to "+u.DueDate.Format("2006-01-02"))
	}
	if u.Assignee != nil && *u.Assignee != old.Assignee {
		changes = append(changes, "assignee changed to "+*u.Assignee)
	}
	if u.Status != nil && *u.Status != old.Status {
		changes = append(changes, fmt.Sprintf("status changed from %s to %s", old.Status, *u.Status))
	}
	return changes
}
