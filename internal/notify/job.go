package notify

import (
	"context"

	"workdeck/internal/domain"
)

type Kind string

const (
	KindCreated       Kind = "CREATED"
	KindUpdated       Kind = "UPDATED"
	KindStatusChanged Kind = "STATUS_CHANGED"
)

// Job is an ephemeral unit of notification work. It carries the committed
// snapshot, never a live record, so execution is fully decoupled from later
// mutations.
type Job struct {
	Kind        Kind
	Recipient   string
	Task        domain.Task
	ProjectName string

	// Changes is set for KindUpdated only.
	Changes []string

	// OldStatus/NewStatus are set for KindStatusChanged only.
	OldStatus domain.Status
	NewStatus domain.Status
}

type Sender interface {
	Send(ctx context.Context, job Job) error
}
