package domain

import (
	"time"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
)

// CampaignMode controls whether the scheduler drives the campaign or an
// operator dispatches sends by hand.
type CampaignMode string

const (
	ModeAuto   CampaignMode = "auto"
	ModeManual CampaignMode = "manual"
)

// PacingMode selects the delay model between sends.
type PacingMode string

const (
	PacingSmooth PacingMode = "smooth"
	PacingBurst  PacingMode = "burst"
)

// BurstParams configures burst pacing: short gaps inside a group of sends,
// then a long break between groups.
type BurstParams struct {
	MinDelaySeconds      int `json:"min_delay_seconds" db:"burst_min_delay_seconds"`
	MaxDelaySeconds      int `json:"max_delay_seconds" db:"burst_max_delay_seconds"`
	MessagesPerGroup     int `json:"messages_per_group" db:"burst_messages_per_group"`
	MinGroupBreakSeconds int `json:"min_group_break_seconds" db:"burst_min_group_break_seconds"`
	MaxGroupBreakSeconds int `json:"max_group_break_seconds" db:"burst_max_group_break_seconds"`
}

// Schedule is the delivery window and pacing configuration of a campaign.
// Active hours are [Start, End) in the campaign's time zone; windows with
// End <= Start are empty and must be rejected at input time.
type Schedule struct {
	Timezone            string      `json:"timezone" db:"timezone"`
	ActiveHoursStart    int         `json:"active_hours_start" db:"active_hours_start"`
	ActiveHoursEnd      int         `json:"active_hours_end" db:"active_hours_end"`
	Pacing              PacingMode  `json:"pacing" db:"pacing"`
	DailyLimitPerSender int         `json:"daily_limit_per_sender" db:"daily_limit_per_sender"`
	Burst               BurstParams `json:"burst"`
}

// CampaignStats holds denormalized per-status lead counts. The counters are
// adjusted in the same conditional write as the lead transition they mirror,
// so their sum always equals the campaign's lead count.
type CampaignStats struct {
	Pending   int `json:"pending" db:"stats_pending"`
	Queued    int `json:"queued" db:"stats_queued"`
	Sent      int `json:"sent" db:"stats_sent"`
	Delivered int `json:"delivered" db:"stats_delivered"`
	Replied   int `json:"replied" db:"stats_replied"`
	Failed    int `json:"failed" db:"stats_failed"`
	Skipped   int `json:"skipped" db:"stats_skipped"`
}

// Total returns the sum of all counters.
func (s CampaignStats) Total() int {
	return s.Pending + s.Queued + s.Sent + s.Delivered + s.Replied + s.Failed + s.Skipped
}

// Open returns the number of leads still awaiting work.
func (s CampaignStats) Open() int { return s.Pending + s.Queued }

// Campaign is a work plan: message templates x outbound accounts x target
// leads, executed under a schedule.
type Campaign struct {
	ID                 string         `json:"id" db:"id"`
	AccountID          string         `json:"account_id" db:"account_id"`
	Name               string         `json:"name" db:"name"`
	Status             CampaignStatus `json:"status" db:"status"`
	Mode               CampaignMode   `json:"mode" db:"mode"`
	Templates          []string       `json:"templates" db:"templates"`
	OutboundAccountIDs []string       `json:"outbound_account_ids" db:"outbound_account_ids"`
	Schedule           Schedule       `json:"schedule"`

	// Round-robin cursors. Advanced in the same atomic write as the lease.
	LastSenderIndex  int `json:"last_sender_index" db:"last_sender_index"`
	LastMessageIndex int `json:"last_message_index" db:"last_message_index"`

	LastSentAt *time.Time `json:"last_sent_at" db:"last_sent_at"`

	// Burst state. SentInGroup resets when a new local day begins.
	BurstSentInGroup int        `json:"burst_sent_in_group" db:"burst_sent_in_group"`
	BurstBreakUntil  *time.Time `json:"burst_break_until" db:"burst_break_until"`

	Stats CampaignStats `json:"stats"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// LeadStatus enumerates the states of a campaign lead.
type LeadStatus string

const (
	LeadPending   LeadStatus = "pending"
	LeadQueued    LeadStatus = "queued"
	LeadSent      LeadStatus = "sent"
	LeadDelivered LeadStatus = "delivered"
	LeadReplied   LeadStatus = "replied"
	LeadFailed    LeadStatus = "failed"
	LeadSkipped   LeadStatus = "skipped"
)

// Terminal reports whether the status is an end state.
func (s LeadStatus) Terminal() bool {
	switch s {
	case LeadSent, LeadDelivered, LeadReplied, LeadFailed, LeadSkipped:
		return true
	}
	return false
}

// CampaignLead is the join of one target with one campaign; the unit of
// work status. A lead in LeadQueued always carries a non-nil SenderID,
// QueuedAt, and TaskID.
type CampaignLead struct {
	ID             string     `json:"id" db:"id"`
	CampaignID     string     `json:"campaign_id" db:"campaign_id"`
	AccountID      string     `json:"account_id" db:"account_id"`
	OutboundLeadID string     `json:"outbound_lead_id" db:"outbound_lead_id"`
	Status         LeadStatus `json:"status" db:"status"`
	SenderID       *string    `json:"sender_id" db:"sender_id"`
	QueuedAt       *time.Time `json:"queued_at" db:"queued_at"`
	TaskID         *string    `json:"task_id" db:"task_id"`

	// CustomMessage, when non-empty, is sent verbatim and the campaign's
	// template cursor is not advanced.
	CustomMessage string `json:"custom_message" db:"custom_message"`
	// MessageUsed is the message actually rendered for the last dispatch.
	MessageUsed   string `json:"message_used" db:"message_used"`
	TemplateIndex *int   `json:"template_index" db:"template_index"`

	// FailedSenderIDs collects senders that previously failed this lead.
	// Lead selection prefers leads the candidate sender has not failed.
	FailedSenderIDs []string `json:"failed_sender_ids" db:"failed_sender_ids"`

	LastError      string     `json:"last_error" db:"last_error"`
	ManualOverride bool       `json:"manual_override" db:"manual_override"`
	SentAt         *time.Time `json:"sent_at" db:"sent_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}
