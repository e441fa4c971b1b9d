package domain

import "time"

// OutboundAccountStatus enumerates the lifecycle of a sending identity.
type OutboundAccountStatus string

const (
	OutboundNew        OutboundAccountStatus = "new"
	OutboundWarming    OutboundAccountStatus = "warming"
	OutboundReady      OutboundAccountStatus = "ready"
	OutboundRestricted OutboundAccountStatus = "restricted"
	OutboundDisabled   OutboundAccountStatus = "disabled"
)

// WarmupPlan ramps a new outbound account through per-day send caps.
// Warmup auto-completes 14 days after StartDate.
type WarmupPlan struct {
	Enabled   bool       `json:"enabled" db:"warmup_enabled"`
	StartDate *time.Time `json:"start_date" db:"warmup_start_date"`
	// DayCaps[i] is the cap for warmup day i+1. A zero cap means no
	// sending that day.
	DayCaps []int `json:"day_caps" db:"warmup_day_caps"`
}

// CapForDay returns the send cap for the given 1-based warmup day.
// Days past the end of the plan use the last configured cap.
func (w WarmupPlan) CapForDay(day int) int {
	if day < 1 || len(w.DayCaps) == 0 {
		return 0
	}
	if day > len(w.DayCaps) {
		return w.DayCaps[len(w.DayCaps)-1]
	}
	return w.DayCaps[day-1]
}

// OutboundAccount is a sending identity owned by one tenant account.
// Streak fields are mutated only by the streak tracker, once per local
// calendar day.
type OutboundAccount struct {
	ID        string                `json:"id" db:"id"`
	AccountID string                `json:"account_id" db:"account_id"`
	Handle    string                `json:"handle" db:"handle"`
	Status    OutboundAccountStatus `json:"status" db:"status"`
	Warmup    WarmupPlan            `json:"warmup"`

	// StreakDays counts consecutive local days with at least one send.
	StreakDays         int        `json:"streak_days" db:"streak_days"`
	StreakLastSendDate *time.Time `json:"streak_last_send_date" db:"streak_last_send_date"`
	// RestUntil, when set, makes the account ineligible until the local
	// midnight it names has passed.
	RestUntil *time.Time `json:"rest_until" db:"rest_until"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Resting reports whether the account is inside a mandatory rest window
// relative to the given local midnight.
func (o *OutboundAccount) Resting(localMidnight time.Time) bool {
	return o.RestUntil != nil && o.RestUntil.After(localMidnight)
}
