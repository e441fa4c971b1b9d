package domain

import "time"

// TaskStatus enumerates the states of an agent task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// TaskType identifies the action an agent performs.
type TaskType string

// TaskSendDM is the only task type the scheduler dispatches today.
const TaskSendDM TaskType = "send_dm"

// FailureType classifies an agent-reported send failure.
type FailureType string

const (
	FailureIGRestricted      FailureType = "IG_RESTRICTED"
	FailureRateLimited       FailureType = "RATE_LIMITED"
	FailureActionBlocked     FailureType = "ACTION_BLOCKED"
	FailureChallengeRequired FailureType = "CHALLENGE_REQUIRED"
	FailureUnknown           FailureType = "UNKNOWN"
)

// Restricting reports whether this failure class quarantines the sender
// for the restriction cooldown.
func (f FailureType) Restricting() bool {
	switch f {
	case FailureIGRestricted, FailureRateLimited, FailureActionBlocked, FailureChallengeRequired:
		return true
	}
	return false
}

// TaskResult is the success report an agent posts back.
type TaskResult struct {
	Success   bool       `json:"success"`
	Username  string     `json:"username,omitempty"`
	ThreadID  string     `json:"thread_id,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// TaskError is the failure report an agent posts back.
type TaskError struct {
	Message    string      `json:"error"`
	Type       FailureType `json:"error_type"`
	StackTrace string      `json:"stack_trace,omitempty"`
	Timestamp  *time.Time  `json:"timestamp,omitempty"`
}

// Task is the executable unit of work dispatched to a remote agent for one
// campaign lead. Tasks are created pending in the same logical step as the
// lead's lease and become pickable through the agent pull path.
type Task struct {
	ID             string     `json:"id" db:"id"`
	AccountID      string     `json:"account_id" db:"account_id"`
	Type           TaskType   `json:"type" db:"type"`
	TargetUsername string     `json:"target_username" db:"target_username"`
	Message        string     `json:"message" db:"message"`
	SenderID       *string    `json:"sender_id" db:"sender_id"`
	CampaignID     *string    `json:"campaign_id" db:"campaign_id"`
	CampaignLeadID *string    `json:"campaign_lead_id" db:"campaign_lead_id"`
	OutboundLeadID *string    `json:"outbound_lead_id" db:"outbound_lead_id"`
	Status         TaskStatus `json:"status" db:"status"`
	Attempts       int        `json:"attempts" db:"attempts"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	StartedAt   *time.Time `json:"started_at" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
	FailedAt    *time.Time `json:"failed_at" db:"failed_at"`

	Result *TaskResult `json:"result,omitempty"`
	Error  *TaskError  `json:"error,omitempty"`
}

// Open reports whether the task still occupies its (sender, campaign) slot.
// At most one open task may exist per (sender, campaign) pair.
func (t *Task) Open() bool {
	return t.Status == TaskPending || t.Status == TaskInProgress
}
