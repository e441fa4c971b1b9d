package domain

import "time"

// TaskPayload is the wire shape of a task pushed to an agent (task:new) or
// returned from the pull path (task:pickup).
type TaskPayload struct {
	ID             string    `json:"id"`
	Type           TaskType  `json:"type"`
	TargetUsername string    `json:"target_username"`
	Message        string    `json:"message"`
	SenderID       string    `json:"sender_id,omitempty"`
	CampaignID     string    `json:"campaign_id,omitempty"`
	CampaignLeadID string    `json:"campaign_lead_id,omitempty"`
	OutboundLeadID string    `json:"outbound_lead_id,omitempty"`
	Attempts       int       `json:"attempts"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewTaskPayload builds the wire payload for a task.
func NewTaskPayload(t *Task) TaskPayload {
	p := TaskPayload{
		ID:             t.ID,
		Type:           t.Type,
		TargetUsername: t.TargetUsername,
		Message:        t.Message,
		Attempts:       t.Attempts,
		CreatedAt:      t.CreatedAt,
	}
	if t.SenderID != nil {
		p.SenderID = *t.SenderID
	}
	if t.CampaignID != nil {
		p.CampaignID = *t.CampaignID
	}
	if t.CampaignLeadID != nil {
		p.CampaignLeadID = *t.CampaignLeadID
	}
	if t.OutboundLeadID != nil {
		p.OutboundLeadID = *t.OutboundLeadID
	}
	return p
}

// ETAPayload is the task:eta hint pushed to a sender about its next
// expected task.
type ETAPayload struct {
	CampaignID    string `json:"campaign_id"`
	NextInSeconds int    `json:"next_in_seconds"`
	PendingLeads  int    `json:"pending_leads"`
}

// TaskEventPayload accompanies task:completed and task:failed account
// notifications.
type TaskEventPayload struct {
	TaskID         string `json:"task_id"`
	CampaignID     string `json:"campaign_id,omitempty"`
	CampaignLeadID string `json:"campaign_lead_id,omitempty"`
	SenderID       string `json:"sender_id,omitempty"`
	TargetUsername string `json:"target_username"`
	ThreadID       string `json:"thread_id,omitempty"`
	Error          string `json:"error,omitempty"`
}

// SenderEventPayload accompanies sender lifecycle notifications
// (sender-online, sender-offline, sender-restricted).
type SenderEventPayload struct {
	SenderID          string     `json:"sender_id"`
	OutboundAccountID string     `json:"outbound_account_id,omitempty"`
	Reason            string     `json:"reason,omitempty"`
	RestrictedUntil   *time.Time `json:"restricted_until,omitempty"`
}

// WarmupEventPayload accompanies the warmup-completed audit event.
type WarmupEventPayload struct {
	OutboundAccountID string `json:"outbound_account_id"`
	Handle            string `json:"handle"`
}
