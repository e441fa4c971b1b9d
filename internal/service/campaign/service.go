package campaign

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/outreach-scheduler/internal/domain"
	"github.com/ignite/outreach-scheduler/internal/pkg/logger"
)

// Service implements operator campaign logic. All public methods are safe
// for concurrent use if the underlying repository is concurrency-safe.
type Service struct {
	repo Repository
}

// NewService creates a campaign service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get returns a single campaign.
func (s *Service) Get(ctx context.Context, accountID, id string) (*domain.Campaign, error) {
	return s.repo.Get(ctx, accountID, id)
}

// Activate moves a draft or paused campaign to active so the scheduler
// starts picking it up. The schedule is validated here; the scheduler
// assumes validated shapes.
func (s *Service) Activate(ctx context.Context, accountID, id string) error {
	c, err := s.repo.Get(ctx, accountID, id)
	if err != nil {
		return err
	}
	if err := ValidateSchedule(c.Schedule); err != nil {
		return err
	}
	if len(c.Templates) == 0 {
		return fmt.Errorf("%w: campaign has no message templates", ErrInvalidSchedule)
	}
	return s.repo.UpdateStatus(ctx, accountID, id,
		[]domain.CampaignStatus{domain.CampaignDraft, domain.CampaignPaused}, domain.CampaignActive)
}

// Pause takes an active campaign out of the scheduler's rotation. In-flight
// tasks are untouched; the operator can follow up with a stuck-task reset.
func (s *Service) Pause(ctx context.Context, accountID, id string) error {
	return s.repo.UpdateStatus(ctx, accountID, id,
		[]domain.CampaignStatus{domain.CampaignActive}, domain.CampaignPaused)
}

// AttachLeads adds targets to the campaign as pending leads, skipping any
// already attached.
func (s *Service) AttachLeads(ctx context.Context, accountID, campaignID string, outboundLeadIDs []string) (int, error) {
	if len(outboundLeadIDs) == 0 {
		return 0, nil
	}
	n, err := s.repo.AttachLeads(ctx, accountID, campaignID, outboundLeadIDs)
	if err != nil {
		return 0, err
	}
	logger.Info("leads attached", "campaign_id", campaignID, "requested", len(outboundLeadIDs), "attached", n)
	return n, nil
}

// RetryLeads resets failed or skipped leads back to pending. The sender
// that failed each lead lands in the lead's failed_sender_ids set so lead
// selection can steer the retry elsewhere.
func (s *Service) RetryLeads(ctx context.Context, accountID, campaignID string, leadIDs []string) (int, error) {
	if len(leadIDs) == 0 {
		return 0, nil
	}
	n, err := s.repo.RetryLeads(ctx, accountID, campaignID, leadIDs)
	if err != nil {
		return 0, err
	}
	logger.Info("leads reset for retry", "campaign_id", campaignID, "count", n)
	return n, nil
}

// Stats returns the campaign's counters and the true lead count.
func (s *Service) Stats(ctx context.Context, accountID, campaignID string) (domain.CampaignStats, int, error) {
	return s.repo.Stats(ctx, accountID, campaignID)
}

// ValidateSchedule rejects shapes the scheduler must never see: empty or
// inverted active windows, unknown time zones, negative limits, and burst
// ranges with min above max.
func ValidateSchedule(sched domain.Schedule) error {
	if sched.ActiveHoursStart < 0 || sched.ActiveHoursEnd > 24 || sched.ActiveHoursEnd <= sched.ActiveHoursStart {
		return fmt.Errorf("%w: active hours [%d, %d) are empty", ErrInvalidSchedule, sched.ActiveHoursStart, sched.ActiveHoursEnd)
	}
	if sched.Timezone != "" {
		if _, err := time.LoadLocation(sched.Timezone); err != nil {
			return fmt.Errorf("%w: unknown timezone %q", ErrInvalidSchedule, sched.Timezone)
		}
	}
	if sched.DailyLimitPerSender < 0 {
		return fmt.Errorf("%w: negative daily limit", ErrInvalidSchedule)
	}
	if sched.Pacing == domain.PacingBurst {
		b := sched.Burst
		if b.MinDelaySeconds < 0 || b.MinGroupBreakSeconds < 0 || b.MessagesPerGroup <= 0 {
			return fmt.Errorf("%w: invalid burst parameters", ErrInvalidSchedule)
		}
		if b.MinDelaySeconds > b.MaxDelaySeconds {
			return fmt.Errorf("%w: burst min delay above max", ErrInvalidSchedule)
		}
		if b.MinGroupBreakSeconds > b.MaxGroupBreakSeconds {
			return fmt.Errorf("%w: burst min group break above max", ErrInvalidSchedule)
		}
	}
	return nil
}
