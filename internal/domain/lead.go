package domain

import "time"

// OutboundLead is a target profile on the social platform. It is owned by
// the tenant account and shared by reference across many campaign leads;
// Messaged de-duplicates sends across campaigns.
type OutboundLead struct {
	ID            string     `json:"id" db:"id"`
	AccountID     string     `json:"account_id" db:"account_id"`
	Username      string     `json:"username" db:"username"`
	Name          string     `json:"name" db:"name"`
	Bio           string     `json:"bio" db:"bio"`
	FollowerCount int        `json:"follower_count" db:"follower_count"`
	Messaged      bool       `json:"messaged" db:"messaged"`
	DMDate        *time.Time `json:"dm_date" db:"dm_date"`
	LastMessage   string     `json:"last_message" db:"last_message"`
	Replied       bool       `json:"replied" db:"replied"`
	ThreadID      string     `json:"thread_id" db:"thread_id"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}
