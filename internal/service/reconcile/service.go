package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/outreach-scheduler/internal/domain"
	"github.com/ignite/outreach-scheduler/internal/pkg/logger"
	"github.com/ignite/outreach-scheduler/internal/registry"
)

// DefaultRestrictionTTL is how long a sender stays quarantined after a
// restriction-class failure.
const DefaultRestrictionTTL = 24 * time.Hour

// Service applies agent reports. Safe for concurrent use; handlers run
// concurrently with each other and with scheduler ticks.
type Service struct {
	repo           Repository
	reg            *registry.Registry
	restrictionTTL time.Duration
	now            func() time.Time
}

// New creates a reconciliation service with the default restriction TTL.
func New(repo Repository, reg *registry.Registry) *Service {
	return &Service{
		repo:           repo,
		reg:            reg,
		restrictionTTL: DefaultRestrictionTTL,
		now:            time.Now,
	}
}

// HandleCompletion applies a success report. Replayed completions are
// no-ops: the task's conditional update refuses and nothing downstream runs.
func (s *Service) HandleCompletion(ctx context.Context, taskID string, res domain.TaskResult) error {
	t, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	now := s.now()

	applied, err := s.repo.CompleteTask(ctx, taskID, res, now)
	if err != nil {
		return fmt.Errorf("complete task %s: %w", taskID, err)
	}
	if !applied {
		logger.Debug("completion replay ignored", "task_id", taskID)
		return nil
	}

	if t.Type == domain.TaskSendDM && t.OutboundLeadID != nil {
		if err := s.repo.MarkOutboundLeadMessaged(ctx, *t.OutboundLeadID, t.Message, res.ThreadID, now); err != nil {
			return fmt.Errorf("mark outbound lead messaged: %w", err)
		}
	}

	if t.CampaignLeadID != nil {
		if _, err := s.repo.MarkLeadSent(ctx, *t.CampaignLeadID, now); err != nil {
			return fmt.Errorf("mark lead sent: %w", err)
		}
	}

	logger.Info("task completed", "task_id", taskID, "target_username", t.TargetUsername)
	ev := taskEvent(t, "")
	ev.ThreadID = res.ThreadID
	s.reg.PushToAccount(t.AccountID, registry.Event{
		Type:    registry.EventTaskCompleted,
		Payload: ev,
	})
	return nil
}

// HandleFailure applies a failure report. Restriction-class failures
// quarantine the sender for the cooldown window.
func (s *Service) HandleFailure(ctx context.Context, taskID string, te domain.TaskError) error {
	t, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	now := s.now()

	applied, err := s.repo.FailTask(ctx, taskID, te, now)
	if err != nil {
		return fmt.Errorf("fail task %s: %w", taskID, err)
	}
	if !applied {
		logger.Debug("failure replay ignored", "task_id", taskID)
		return nil
	}

	if t.CampaignLeadID != nil {
		if _, err := s.repo.MarkLeadFailed(ctx, *t.CampaignLeadID, te.Message, now); err != nil {
			return fmt.Errorf("mark lead failed: %w", err)
		}
	}

	if te.Type.Restricting() && t.SenderID != nil {
		until := now.Add(s.restrictionTTL)
		if err := s.repo.RestrictSender(ctx, *t.SenderID, until, te.Message); err != nil {
			return fmt.Errorf("restrict sender: %w", err)
		}
		logger.Warn("sender restricted", "sender_id", *t.SenderID, "error_type", te.Type, "until", until)
		s.reg.PushToAccount(t.AccountID, registry.Event{
			Type: registry.EventSenderRestricted,
			Payload: domain.SenderEventPayload{
				SenderID:        *t.SenderID,
				Reason:          te.Message,
				RestrictedUntil: &until,
			},
		})
	}

	logger.Info("task failed", "task_id", taskID, "error_type", te.Type)
	s.reg.PushToAccount(t.AccountID, registry.Event{
		Type:    registry.EventTaskFailed,
		Payload: taskEvent(t, te.Message),
	})
	return nil
}

// Pickup claims the account's oldest pending task for the pull path.
// Returns ErrNoTask when the queue is empty.
func (s *Service) Pickup(ctx context.Context, accountID string, senderID *string) (*domain.Task, error) {
	t, err := s.repo.PickupTask(ctx, accountID, senderID, s.now())
	if err != nil {
		return nil, fmt.Errorf("pickup task: %w", err)
	}
	if t == nil {
		return nil, ErrNoTask
	}
	return t, nil
}

// Heartbeat renews the sender's liveness; senders go stale 60 s after the
// last heartbeat.
func (s *Service) Heartbeat(ctx context.Context, senderID string) error {
	return s.repo.Heartbeat(ctx, senderID, s.now())
}

// ResetStuckTasks is the operator escape hatch: fail every open task for
// the account and return its queued leads to pending.
func (s *Service) ResetStuckTasks(ctx context.Context, accountID string) (int, error) {
	n, err := s.repo.ResetStuckTasks(ctx, accountID, s.now())
	if err != nil {
		return 0, fmt.Errorf("reset stuck tasks: %w", err)
	}
	if n > 0 {
		logger.Info("reset stuck tasks", "account_id", accountID, "count", n)
	}
	return n, nil
}

func taskEvent(t *domain.Task, errMsg string) domain.TaskEventPayload {
	p := domain.TaskEventPayload{
		TaskID:         t.ID,
		TargetUsername: t.TargetUsername,
		Error:          errMsg,
	}
	if t.CampaignID != nil {
		p.CampaignID = *t.CampaignID
	}
	if t.CampaignLeadID != nil {
		p.CampaignLeadID = *t.CampaignLeadID
	}
	if t.SenderID != nil {
		p.SenderID = *t.SenderID
	}
	return p
}
