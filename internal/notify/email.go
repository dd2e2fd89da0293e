package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// EmailLogSender is a mock delivery channel: it writes the notification as a
// structured log line instead of sending real mail.
type EmailLogSender struct{}

func (EmailLogSender) Send(ctx context.Context, job Job) error {
	var subject string
	switch job.Kind {
	case KindCreated:
		subject = "New Task Assigned - " + job.Task.Name
	case KindUpdated:
		subject = "Task Updated - " + job.Task.Name
	case KindStatusChanged:
		subject = "Task Status Changed - " + job.Task.Name
	default:
		return fmt.Errorf("unknown notification kind %q", job.Kind)
	}

	e := log.Info().
		Str("to", job.Recipient).
		Str("subject", subject).
		Str("task", job.Task.Name).
		Int("priority", job.Task.Priority).
		Str("due_date", job.Task.DueDate.Format("2006-01-02")).
		Str("status", string(job.Task.Status)).
		Str("project", job.ProjectName)

	switch job.Kind {
	case KindUpdated:
		e = e.Str("changes", strings.Join(job.Changes, ", "))
	case KindStatusChanged:
		e = e.Str("old_status", string(job.OldStatus)).Str("new_status", string(job.NewStatus))
	}

	e.Msg("email notification")
	return nil
}
