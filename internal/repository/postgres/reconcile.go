package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/outreach-scheduler/internal/domain"
	"github.com/ignite/outreach-scheduler/internal/service/reconcile"
)

// ReconcileRepo implements reconcile.Repository against PostgreSQL.
type ReconcileRepo struct{ db *sql.DB }

// NewReconcileRepo creates a Postgres-backed reconciliation repository.
func NewReconcileRepo(db *sql.DB) *ReconcileRepo { return &ReconcileRepo{db: db} }

const taskCols = `
	id, account_id, type, target_username, message, sender_id, campaign_id,
	campaign_lead_id, outbound_lead_id, status, attempts, created_at,
	started_at, completed_at, failed_at`

func scanTask(row rowScanner) (*domain.Task, error) {
	t := &domain.Task{}
	err := row.Scan(
		&t.ID, &t.AccountID, &t.Type, &t.TargetUsername, &t.Message,
		&t.SenderID, &t.CampaignID, &t.CampaignLeadID, &t.OutboundLeadID,
		&t.Status, &t.Attempts, &t.CreatedAt,
		&t.StartedAt, &t.CompletedAt, &t.FailedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *ReconcileRepo) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	t, err := scanTask(r.db.QueryRowContext(ctx,
		`SELECT `+taskCols+` FROM tasks WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, reconcile.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (r *ReconcileRepo) CompleteTask(ctx context.Context, taskID string, res domain.TaskResult, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = 'completed', completed_at = $2,
		    result_success = $3, result_username = $4,
		    result_thread_id = $5, result_timestamp = $6
		WHERE id = $1 AND status IN ('pending', 'in_progress')
	`, taskID, now, res.Success, res.Username, res.ThreadID, res.Timestamp)
	if err != nil {
		return false, fmt.Errorf("complete task: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

func (r *ReconcileRepo) FailTask(ctx context.Context, taskID string, te domain.TaskError, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = 'failed', failed_at = $2,
		    error_message = $3, error_type = $4,
		    error_stack = $5, error_timestamp = $6
		WHERE id = $1 AND status IN ('pending', 'in_progress')
	`, taskID, now, te.Message, te.Type, te.StackTrace, te.Timestamp)
	if err != nil {
		return false, fmt.Errorf("fail task: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

func (r *ReconcileRepo) MarkOutboundLeadMessaged(ctx context.Context, id, message, threadID string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbound_leads
		SET messaged = TRUE, dm_date = $2, last_message = $3,
		    thread_id = CASE WHEN $4 <> '' THEN $4 ELSE thread_id END,
		    updated_at = $2
		WHERE id = $1
	`, id, now, message, threadID)
	if err != nil {
		return fmt.Errorf("mark outbound lead messaged: %w", err)
	}
	return nil
}

func (r *ReconcileRepo) MarkLeadSent(ctx context.Context, leadID string, now time.Time) (bool, error) {
	var campaignID string
	err := r.db.QueryRowContext(ctx, `
		WITH updated AS (
			UPDATE campaign_leads
			SET status = 'sent', sent_at = $2, updated_at = $2
			WHERE id = $1 AND status = 'queued'
			RETURNING campaign_id
		), stats AS (
			UPDATE campaigns c
			SET stats_queued = stats_queued - 1,
			    stats_sent = stats_sent + 1,
			    updated_at = $2
			FROM updated WHERE c.id = updated.campaign_id
		)
		SELECT campaign_id FROM updated
	`, leadID, now).Scan(&campaignID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("mark lead sent: %w", err)
	}
	return true, nil
}

func (r *ReconcileRepo) MarkLeadFailed(ctx context.Context, leadID, errMsg string, now time.Time) (bool, error) {
	var campaignID string
	err := r.db.QueryRowContext(ctx, `
		WITH updated AS (
			UPDATE campaign_leads
			SET status = 'failed', last_error = $3, updated_at = $2
			WHERE id = $1 AND status = 'queued'
			RETURNING campaign_id
		), stats AS (
			UPDATE campaigns c
			SET stats_queued = stats_queued - 1,
			    stats_failed = stats_failed + 1,
			    updated_at = $2
			FROM updated WHERE c.id = updated.campaign_id
		)
		SELECT campaign_id FROM updated
	`, leadID, now, errMsg).Scan(&campaignID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("mark lead failed: %w", err)
	}
	return true, nil
}

func (r *ReconcileRepo) RestrictSender(ctx context.Context, senderID string, until time.Time, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE senders
		SET status = 'restricted', restricted_until = $2,
		    restriction_reason = $3, updated_at = NOW()
		WHERE id = $1
	`, senderID, until, reason)
	if err != nil {
		return fmt.Errorf("restrict sender: %w", err)
	}
	return nil
}

func (r *ReconcileRepo) PickupTask(ctx context.Context, accountID string, senderID *string, now time.Time) (*domain.Task, error) {
	t, err := scanTask(r.db.QueryRowContext(ctx, `
		WITH next_task AS (
			SELECT id FROM tasks
			WHERE account_id = $1 AND status = 'pending'
			  AND ($2::text IS NULL OR sender_id = $2 OR sender_id IS NULL)
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE tasks t
		SET status = 'in_progress', attempts = attempts + 1, started_at = $3
		FROM next_task
		WHERE t.id = next_task.id
		RETURNING `+prefixCols("t", taskCols)+`
	`, accountID, senderID, now))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pickup task: %w", err)
	}
	return t, nil
}

func (r *ReconcileRepo) Heartbeat(ctx context.Context, senderID string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE senders SET status = 'online', last_heartbeat = $2, updated_at = NOW()
		WHERE id = $1 AND status <> 'restricted'
	`, senderID, now)
	if err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	return nil
}

func (r *ReconcileRepo) ResetStuckTasks(ctx context.Context, accountID string, now time.Time) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin reset tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		UPDATE tasks
		SET status = 'failed', failed_at = $2,
		    error_message = 'reset by operator', error_type = 'UNKNOWN'
		WHERE account_id = $1 AND status IN ('pending', 'in_progress')
		RETURNING campaign_lead_id
	`, accountID, now)
	if err != nil {
		return 0, fmt.Errorf("fail stuck tasks: %w", err)
	}
	var leadIDs []string
	n := 0
	for rows.Next() {
		var leadID sql.NullString
		if err := rows.Scan(&leadID); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan stuck task: %w", err)
		}
		if leadID.Valid {
			leadIDs = append(leadIDs, leadID.String)
		}
		n++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	if len(leadIDs) > 0 {
		_, err = tx.ExecContext(ctx, `
			WITH reset AS (
				UPDATE campaign_leads
				SET status = 'pending', sender_id = NULL, queued_at = NULL,
				    task_id = NULL, updated_at = $2
				WHERE id = ANY($1) AND status = 'queued'
				RETURNING campaign_id
			)
			UPDATE campaigns c
			SET stats_queued = stats_queued - sub.n,
			    stats_pending = stats_pending + sub.n,
			    updated_at = $2
			FROM (SELECT campaign_id, COUNT(*) AS n FROM reset GROUP BY campaign_id) sub
			WHERE c.id = sub.campaign_id
		`, pq.Array(leadIDs), now)
		if err != nil {
			return 0, fmt.Errorf("reset leads of stuck tasks: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit reset tx: %w", err)
	}
	return n, nil
}
