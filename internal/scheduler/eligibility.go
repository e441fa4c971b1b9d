package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/outreach-scheduler/internal/domain"
)

// Ineligibility reasons, in evaluation order. The first matching reason wins.
const (
	ReasonOffline    = "offline"
	ReasonRestricted = "restricted"
	ReasonResting    = "rest_day"
	ReasonWarmupCap  = "warmup_cap"
	ReasonDailyCap   = "daily_cap"
	ReasonOpenTask   = "open_task"
)

// eligible decides whether a sender may take the campaign's next lead.
// Test mode skips the rest-day, warmup, and daily-cap checks; the open-task
// check always applies so invariant 4 holds even under test sends.
func (s *Scheduler) eligible(ctx context.Context, c *domain.Campaign, sender *domain.Sender, testMode bool, now time.Time, loc *time.Location) (bool, string, error) {
	if sender.Status != domain.SenderOnline {
		return false, ReasonOffline, nil
	}
	// The restriction cooldown binds even when the status flag was flipped
	// back to online externally.
	if sender.RestrictedAt(now) {
		return false, ReasonRestricted, nil
	}

	if !testMode {
		acct, err := s.store.GetOutboundAccount(ctx, sender.OutboundAccountID)
		if err != nil {
			return false, "", fmt.Errorf("load outbound account %s: %w", sender.OutboundAccountID, err)
		}
		if acct != nil {
			if acct.Resting(LocalMidnight(now, loc)) {
				return false, ReasonResting, nil
			}
			if acct.Status == domain.OutboundWarming && acct.Warmup.Enabled && acct.Warmup.StartDate != nil {
				day := int(now.Sub(*acct.Warmup.StartDate)/(24*time.Hour)) + 1
				cap := acct.Warmup.CapForDay(day)
				if cap == 0 {
					return false, ReasonWarmupCap, nil
				}
				from, to := DayBounds(now, loc)
				// Warmup caps count sends across all campaigns.
				sent, err := s.store.CountSenderDaySends(ctx, sender.ID, "", from, to)
				if err != nil {
					return false, "", fmt.Errorf("count warmup sends: %w", err)
				}
				if sent >= cap {
					return false, ReasonWarmupCap, nil
				}
			}
		}

		limit := c.Schedule.DailyLimitPerSender
		if limit <= 0 {
			limit = sender.DailyLimit
		}
		if limit <= 0 {
			limit = domain.DefaultDailyLimit
		}
		from, to := DayBounds(now, loc)
		sent, err := s.store.CountSenderDaySends(ctx, sender.ID, c.ID, from, to)
		if err != nil {
			return false, "", fmt.Errorf("count campaign sends: %w", err)
		}
		if sent >= limit {
			return false, ReasonDailyCap, nil
		}
	}

	open, err := s.store.HasOpenTask(ctx, sender.ID, c.ID)
	if err != nil {
		return false, "", fmt.Errorf("check open task: %w", err)
	}
	if open {
		return false, ReasonOpenTask, nil
	}
	return true, "", nil
}
