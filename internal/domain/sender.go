package domain

import "time"

// SenderStatus enumerates the live states of a sender session.
type SenderStatus string

const (
	SenderOnline     SenderStatus = "online"
	SenderOffline    SenderStatus = "offline"
	SenderRestricted SenderStatus = "restricted"
)

// DefaultDailyLimit is the fallback per-sender daily cap when neither the
// campaign schedule nor the sender sets one.
const DefaultDailyLimit = 50

// Sender is a live agent session backing an outbound account. It is created
// on first agent authentication; online/offline track the agent connection,
// reconciled against heartbeats (stale after 60 s).
type Sender struct {
	ID                string       `json:"id" db:"id"`
	AccountID         string       `json:"account_id" db:"account_id"`
	OutboundAccountID string       `json:"outbound_account_id" db:"outbound_account_id"`
	Status            SenderStatus `json:"status" db:"status"`
	LastHeartbeat     *time.Time   `json:"last_heartbeat" db:"last_heartbeat"`
	DailyLimit        int          `json:"daily_limit" db:"daily_limit"`
	TestMode          bool         `json:"test_mode" db:"test_mode"`

	RestrictedUntil   *time.Time `json:"restricted_until" db:"restricted_until"`
	RestrictionReason string     `json:"restriction_reason" db:"restriction_reason"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// RestrictedAt reports whether the sender's restriction cooldown is still
// in force at the given instant. A sender whose status was flipped back to
// online externally stays ineligible until the cooldown expires.
func (s *Sender) RestrictedAt(now time.Time) bool {
	return s.RestrictedUntil != nil && s.RestrictedUntil.After(now)
}
