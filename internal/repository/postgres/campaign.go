package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/outreach-scheduler/internal/domain"
	"github.com/ignite/outreach-scheduler/internal/service/campaign"
)

// CampaignRepo implements campaign.Repository against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

func (r *CampaignRepo) Get(ctx context.Context, accountID, id string) (*domain.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRowContext(ctx,
		`SELECT `+campaignCols+` FROM campaigns WHERE id = $1 AND account_id = $2`,
		id, accountID))
	if err == sql.ErrNoRows {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) UpdateStatus(ctx context.Context, accountID, id string, from []domain.CampaignStatus, to domain.CampaignStatus) error {
	states := make(pq.StringArray, len(from))
	for i, s := range from {
		states[i] = string(s)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET status = $4, updated_at = NOW()
		WHERE id = $1 AND account_id = $2 AND status = ANY($3)
	`, id, accountID, states, to)
	if err != nil {
		return fmt.Errorf("update campaign status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Distinguish a missing campaign from a refused transition.
		var exists bool
		if err := r.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM campaigns WHERE id = $1 AND account_id = $2)`,
			id, accountID).Scan(&exists); err != nil {
			return fmt.Errorf("check campaign exists: %w", err)
		}
		if !exists {
			return campaign.ErrNotFound
		}
		return campaign.ErrInvalidTransition
	}
	return nil
}

func (r *CampaignRepo) AttachLeads(ctx context.Context, accountID, campaignID string, outboundLeadIDs []string) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin attach tx: %w", err)
	}
	defer tx.Rollback()

	n := 0
	for _, olID := range outboundLeadIDs {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO campaign_leads
				(id, campaign_id, account_id, outbound_lead_id, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 'pending', NOW(), NOW())
			ON CONFLICT (campaign_id, outbound_lead_id) DO NOTHING
		`, uuid.New().String(), campaignID, accountID, olID)
		if err != nil {
			return 0, fmt.Errorf("attach lead %s: %w", olID, err)
		}
		if rows, _ := res.RowsAffected(); rows > 0 {
			n++
		}
	}

	if n > 0 {
		_, err = tx.ExecContext(ctx, `
			UPDATE campaigns SET stats_pending = stats_pending + $2, updated_at = NOW()
			WHERE id = $1
		`, campaignID, n)
		if err != nil {
			return 0, fmt.Errorf("bump pending stats: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit attach tx: %w", err)
	}
	return n, nil
}

func (r *CampaignRepo) RetryLeads(ctx context.Context, accountID, campaignID string, leadIDs []string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		WITH target AS (
			SELECT id, status FROM campaign_leads
			WHERE campaign_id = $1 AND account_id = $2
			  AND id = ANY($3) AND status IN ('failed', 'skipped')
			FOR UPDATE
		), reset AS (
			UPDATE campaign_leads cl
			SET status = 'pending',
			    failed_sender_ids = CASE
				WHEN cl.sender_id IS NOT NULL
				     AND NOT (cl.failed_sender_ids @> ARRAY[cl.sender_id])
				THEN array_append(cl.failed_sender_ids, cl.sender_id)
				ELSE cl.failed_sender_ids
			    END,
			    sender_id = NULL, queued_at = NULL, task_id = NULL,
			    updated_at = NOW()
			FROM target WHERE cl.id = target.id
			RETURNING cl.id
		), stats AS (
			UPDATE campaigns c
			SET stats_failed = stats_failed - (SELECT COUNT(*) FROM target WHERE status = 'failed'),
			    stats_skipped = stats_skipped - (SELECT COUNT(*) FROM target WHERE status = 'skipped'),
			    stats_pending = stats_pending + (SELECT COUNT(*) FROM target),
			    updated_at = NOW()
			WHERE c.id = $1 AND EXISTS (SELECT 1 FROM target)
		)
		SELECT COUNT(*) FROM reset
	`, campaignID, accountID, pq.Array(leadIDs)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("retry leads: %w", err)
	}
	return n, nil
}

func (r *CampaignRepo) Stats(ctx context.Context, accountID, campaignID string) (domain.CampaignStats, int, error) {
	var s domain.CampaignStats
	var total int
	err := r.db.QueryRowContext(ctx, `
		SELECT stats_pending, stats_queued, stats_sent, stats_delivered,
		       stats_replied, stats_failed, stats_skipped,
		       (SELECT COUNT(*) FROM campaign_leads WHERE campaign_id = c.id)
		FROM campaigns c
		WHERE id = $1 AND account_id = $2
	`, campaignID, accountID).Scan(
		&s.Pending, &s.Queued, &s.Sent, &s.Delivered, &s.Replied,
		&s.Failed, &s.Skipped, &total,
	)
	if err == sql.ErrNoRows {
		return s, 0, campaign.ErrNotFound
	}
	if err != nil {
		return s, 0, fmt.Errorf("campaign stats: %w", err)
	}
	return s, total, nil
}
