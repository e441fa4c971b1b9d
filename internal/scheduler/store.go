package scheduler

import (
	"context"
	"time"

	"github.com/ignite/outreach-scheduler/internal/domain"
)

// Store is the durable-state contract the scheduler runs against. Every
// mutating method is a single conditional update keyed on the current
// status, so concurrent reconciliation can never double-account a lead.
// Implementations must be safe for concurrent use.
type Store interface {
	// SweepStaleSenders marks online senders whose heartbeat predates the
	// cutoff offline and returns the affected senders.
	SweepStaleSenders(ctx context.Context, cutoff time.Time) ([]domain.Sender, error)

	// CompleteDueWarmups flips warming outbound accounts whose warmup
	// started on or before the cutoff to ready, disabling the plan, and
	// returns the affected accounts.
	CompleteDueWarmups(ctx context.Context, cutoff time.Time) ([]domain.OutboundAccount, error)

	// ReclaimStaleLeases resets a campaign's queued leads older than the
	// cutoff back to pending, clearing sender/queued_at/task and adjusting
	// the campaign's stats by the number affected. Idempotent.
	ReclaimStaleLeases(ctx context.Context, campaignID string, cutoff time.Time) (int, error)

	// ReclaimStaleTasks fails open tasks created before the cutoff with a
	// "timed out" error and resets their still-queued leads to pending.
	ReclaimStaleTasks(ctx context.Context, cutoff time.Time) (int, error)

	// GetCampaign returns a campaign by id, or nil when absent.
	GetCampaign(ctx context.Context, id string) (*domain.Campaign, error)

	// ListActiveCampaigns returns all campaigns in active status, both
	// auto and manual mode.
	ListActiveCampaigns(ctx context.Context) ([]domain.Campaign, error)

	// ListCampaignSenders returns the senders backing the campaign's
	// outbound accounts in stable (creation) order.
	ListCampaignSenders(ctx context.Context, c *domain.Campaign) ([]domain.Sender, error)

	// GetOutboundAccount returns an outbound account, or nil when absent.
	GetOutboundAccount(ctx context.Context, id string) (*domain.OutboundAccount, error)

	// CountCampaignDaySends counts the campaign's leads in sent or queued
	// status last updated inside [from, to).
	CountCampaignDaySends(ctx context.Context, campaignID string, from, to time.Time) (int, error)

	// CountSenderDaySends counts sent-or-queued leads assigned to the
	// sender inside [from, to). An empty campaignID counts across all
	// campaigns (warmup caps span the whole account).
	CountSenderDaySends(ctx context.Context, senderID, campaignID string, from, to time.Time) (int, error)

	// HasOpenTask reports whether a pending or in_progress task exists for
	// the (sender, campaign) pair.
	HasOpenTask(ctx context.Context, senderID, campaignID string) (bool, error)

	// AcquireLead atomically leases the oldest pending lead of the
	// campaign: status to queued, sender and queued_at set, stats moved
	// from pending to queued. Leads the sender has previously failed are
	// deprioritized but not excluded. Returns nil when no lead is pending.
	AcquireLead(ctx context.Context, campaignID, senderID string, now time.Time) (*domain.CampaignLead, error)

	// CountOpenLeads counts leads in pending or queued status.
	CountOpenLeads(ctx context.Context, campaignID string) (int, error)

	// CountPendingLeads counts leads in pending status.
	CountPendingLeads(ctx context.Context, campaignID string) (int, error)

	// CompleteCampaign transitions an active campaign with no open leads
	// to completed. Returns whether the transition applied.
	CompleteCampaign(ctx context.Context, campaignID string) (bool, error)

	// GetOutboundLead returns the target profile, or nil when absent.
	GetOutboundLead(ctx context.Context, id string) (*domain.OutboundLead, error)

	// SkipLead terminates a queued lead as skipped with a reason,
	// adjusting stats. Conditional on the lead still being queued.
	SkipLead(ctx context.Context, leadID, reason string, now time.Time) error

	// CommitDispatch applies one dispatch: advances the campaign cursors
	// and last_sent_at (and burst counter), creates the pending task, and
	// attaches task id, rendered message, and template index to the lead.
	// Returns the created task.
	CommitDispatch(ctx context.Context, d *Dispatch) (*domain.Task, error)

	// ResetBurstWindow zeroes the burst group counter and clears the
	// break, used when a new local day begins.
	ResetBurstWindow(ctx context.Context, campaignID string) error

	// ClearBurstBreak clears an expired burst break.
	ClearBurstBreak(ctx context.Context, campaignID string) error

	// SetBurstBreak records a group break until the given time and zeroes
	// the group counter.
	SetBurstBreak(ctx context.Context, campaignID string, until time.Time) error

	// UpdateStreak writes the streak tracker's result for an outbound
	// account.
	UpdateStreak(ctx context.Context, outboundAccountID string, streak int, lastSend time.Time, restUntil *time.Time) error
}

// Dispatch carries everything CommitDispatch needs to persist one send
// decision in a single logical step.
type Dispatch struct {
	Campaign *domain.Campaign
	Lead     *domain.CampaignLead
	Sender   *domain.Sender
	Target   *domain.OutboundLead

	Message       string
	TemplateIndex *int // nil when a custom message was used
	SenderIndex   int
	// AdvanceTemplate is false for custom messages; the cursor stays put.
	AdvanceTemplate bool
	// BurstIncrement bumps the campaign's in-group counter.
	BurstIncrement bool

	Now time.Time
}
