package campaign

import (
	"context"

	"github.com/ignite/outreach-scheduler/internal/domain"
)

// Repository defines the data access contract for operator campaign
// operations. Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single campaign scoped to the account. Returns
	// ErrNotFound if it doesn't exist.
	Get(ctx context.Context, accountID, id string) (*domain.Campaign, error)

	// UpdateStatus transitions the campaign's status, conditional on the
	// current status being one of from. Returns ErrInvalidTransition when
	// the predicate doesn't match.
	UpdateStatus(ctx context.Context, accountID, id string, from []domain.CampaignStatus, to domain.CampaignStatus) error

	// AttachLeads creates pending campaign leads for the given outbound
	// leads, incrementing the campaign's pending counter. Leads already
	// attached are skipped (a lead is unique per campaign by its outbound
	// lead). Returns the number actually attached.
	AttachLeads(ctx context.Context, accountID, campaignID string, outboundLeadIDs []string) (int, error)

	// RetryLeads resets the given failed or skipped leads back to
	// pending. Each reset lead with a prior sender records that sender in
	// its failed_sender_ids set. Stats move from failed/skipped to
	// pending. Returns the number reset.
	RetryLeads(ctx context.Context, accountID, campaignID string, leadIDs []string) (int, error)

	// Stats returns the campaign's stats counters along with the actual
	// number of campaign leads, so callers can verify coherence.
	Stats(ctx context.Context, accountID, campaignID string) (domain.CampaignStats, int, error)
}
