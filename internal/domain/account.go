package domain

import "time"

// Account is a tenant organization. All per-tenant state is scoped by its ID.
// Accounts are created and mutated by the external control plane; the
// scheduler only reads them.
type Account struct {
	ID        string          `json:"id" db:"id"`
	Name      string          `json:"name" db:"name"`
	Timezone  string          `json:"timezone" db:"timezone"`
	Features  map[string]bool `json:"features" db:"features"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	DeletedAt *time.Time      `json:"deleted_at" db:"deleted_at"`
}
