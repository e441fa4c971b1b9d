package reconcile

import (
	"context"
	"time"

	"github.com/ignite/outreach-scheduler/internal/domain"
)

// Repository defines the data access contract for reconciliation.
// Implementations must be safe for concurrent use; the boolean returns on
// the conditional writes report whether the update applied, which is how
// replays and races with the stale sweeps stay idempotent.
type Repository interface {
	// GetTask returns a task. Returns ErrTaskNotFound if it doesn't exist.
	GetTask(ctx context.Context, id string) (*domain.Task, error)

	// CompleteTask marks an open task completed with its result.
	// Returns false when the task was already terminal.
	CompleteTask(ctx context.Context, taskID string, res domain.TaskResult, now time.Time) (bool, error)

	// FailTask marks an open task failed with its error block.
	// Returns false when the task was already terminal.
	FailTask(ctx context.Context, taskID string, te domain.TaskError, now time.Time) (bool, error)

	// MarkOutboundLeadMessaged records a delivered DM on the target
	// profile: messaged flag, dm date, message, thread id.
	MarkOutboundLeadMessaged(ctx context.Context, id, message, threadID string, now time.Time) error

	// MarkLeadSent moves a queued campaign lead to sent and shifts the
	// campaign stats from queued to sent. Returns false when the lead is
	// no longer queued.
	MarkLeadSent(ctx context.Context, leadID string, now time.Time) (bool, error)

	// MarkLeadFailed moves a queued campaign lead to failed with the
	// error message and shifts stats from queued to failed. Returns false
	// when the lead is no longer queued.
	MarkLeadFailed(ctx context.Context, leadID, errMsg string, now time.Time) (bool, error)

	// RestrictSender puts a sender in restricted status until the given
	// time with a reason.
	RestrictSender(ctx context.Context, senderID string, until time.Time, reason string) error

	// PickupTask atomically claims the account's oldest pending task:
	// status to in_progress, attempts incremented, started_at set. A
	// non-nil senderID restricts the claim to tasks for that sender or
	// with no sender. Returns nil when nothing is pending.
	PickupTask(ctx context.Context, accountID string, senderID *string, now time.Time) (*domain.Task, error)

	// Heartbeat renews a sender's heartbeat and marks it online.
	Heartbeat(ctx context.Context, senderID string, now time.Time) error

	// ResetStuckTasks fails every open task for the account and resets the
	// corresponding queued leads to pending with stats adjusted. Returns
	// the number of tasks affected.
	ResetStuckTasks(ctx context.Context, accountID string, now time.Time) (int, error)
}
