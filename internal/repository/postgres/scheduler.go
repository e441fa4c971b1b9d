package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/outreach-scheduler/internal/domain"
	"github.com/ignite/outreach-scheduler/internal/scheduler"
)

// DispatchStore implements scheduler.Store (and registry.SenderStore)
// against PostgreSQL. Every mutation is a single statement — or a CTE
// chain — conditional on the current status, which is what lets lease
// acquisition, reclamation, and reconciliation race safely.
type DispatchStore struct{ db *sql.DB }

// NewDispatchStore creates a Postgres-backed scheduler store.
func NewDispatchStore(db *sql.DB) *DispatchStore { return &DispatchStore{db: db} }

const campaignCols = `
	id, account_id, name, status, mode, templates, outbound_account_ids,
	timezone, active_hours_start, active_hours_end, pacing, daily_limit_per_sender,
	burst_min_delay_seconds, burst_max_delay_seconds, burst_messages_per_group,
	burst_min_group_break_seconds, burst_max_group_break_seconds,
	last_sender_index, last_message_index, last_sent_at,
	burst_sent_in_group, burst_break_until,
	stats_pending, stats_queued, stats_sent, stats_delivered, stats_replied,
	stats_failed, stats_skipped, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCampaign(row rowScanner) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	var templates []byte
	var accountIDs pq.StringArray
	err := row.Scan(
		&c.ID, &c.AccountID, &c.Name, &c.Status, &c.Mode, &templates, &accountIDs,
		&c.Schedule.Timezone, &c.Schedule.ActiveHoursStart, &c.Schedule.ActiveHoursEnd,
		&c.Schedule.Pacing, &c.Schedule.DailyLimitPerSender,
		&c.Schedule.Burst.MinDelaySeconds, &c.Schedule.Burst.MaxDelaySeconds,
		&c.Schedule.Burst.MessagesPerGroup,
		&c.Schedule.Burst.MinGroupBreakSeconds, &c.Schedule.Burst.MaxGroupBreakSeconds,
		&c.LastSenderIndex, &c.LastMessageIndex, &c.LastSentAt,
		&c.BurstSentInGroup, &c.BurstBreakUntil,
		&c.Stats.Pending, &c.Stats.Queued, &c.Stats.Sent, &c.Stats.Delivered,
		&c.Stats.Replied, &c.Stats.Failed, &c.Stats.Skipped,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(templates) > 0 {
		if err := json.Unmarshal(templates, &c.Templates); err != nil {
			return nil, fmt.Errorf("decode templates: %w", err)
		}
	}
	c.OutboundAccountIDs = accountIDs
	return c, nil
}

const leadCols = `
	id, campaign_id, account_id, outbound_lead_id, status, sender_id, queued_at,
	task_id, custom_message, message_used, template_index, failed_sender_ids,
	last_error, manual_override, sent_at, created_at, updated_at`

func scanLead(row rowScanner) (*domain.CampaignLead, error) {
	l := &domain.CampaignLead{}
	var failed pq.StringArray
	// custom_message, message_used, and last_error are NULL until first
	// written; leadCols feeds prefixCols, which cannot carry a COALESCE.
	var customMessage, messageUsed, lastError sql.NullString
	err := row.Scan(
		&l.ID, &l.CampaignID, &l.AccountID, &l.OutboundLeadID, &l.Status,
		&l.SenderID, &l.QueuedAt, &l.TaskID, &customMessage, &messageUsed,
		&l.TemplateIndex, &failed, &lastError, &l.ManualOverride, &l.SentAt,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	l.CustomMessage = customMessage.String
	l.MessageUsed = messageUsed.String
	l.LastError = lastError.String
	l.FailedSenderIDs = failed
	return l, nil
}

const senderCols = `
	id, account_id, outbound_account_id, status, last_heartbeat, daily_limit,
	test_mode, restricted_until, COALESCE(restriction_reason, ''), created_at, updated_at`

func scanSender(row rowScanner) (*domain.Sender, error) {
	s := &domain.Sender{}
	err := row.Scan(
		&s.ID, &s.AccountID, &s.OutboundAccountID, &s.Status, &s.LastHeartbeat,
		&s.DailyLimit, &s.TestMode, &s.RestrictedUntil, &s.RestrictionReason,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *DispatchStore) SweepStaleSenders(ctx context.Context, cutoff time.Time) ([]domain.Sender, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE senders
		SET status = 'offline', updated_at = NOW()
		WHERE status = 'online'
		  AND (last_heartbeat IS NULL OR last_heartbeat < $1)
		RETURNING id, account_id, outbound_account_id
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("sweep stale senders: %w", err)
	}
	defer rows.Close()

	var out []domain.Sender
	for rows.Next() {
		var s domain.Sender
		if err := rows.Scan(&s.ID, &s.AccountID, &s.OutboundAccountID); err != nil {
			return nil, fmt.Errorf("scan stale sender: %w", err)
		}
		s.Status = domain.SenderOffline
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *DispatchStore) CompleteDueWarmups(ctx context.Context, cutoff time.Time) ([]domain.OutboundAccount, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE outbound_accounts
		SET status = 'ready', warmup_enabled = FALSE, updated_at = NOW()
		WHERE warmup_enabled = TRUE
		  AND warmup_start_date IS NOT NULL
		  AND warmup_start_date <= $1
		RETURNING id, account_id, handle
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("complete due warmups: %w", err)
	}
	defer rows.Close()

	var out []domain.OutboundAccount
	for rows.Next() {
		var a domain.OutboundAccount
		if err := rows.Scan(&a.ID, &a.AccountID, &a.Handle); err != nil {
			return nil, fmt.Errorf("scan warmed account: %w", err)
		}
		a.Status = domain.OutboundReady
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *DispatchStore) ReclaimStaleLeases(ctx context.Context, campaignID string, cutoff time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		WITH reclaimed AS (
			UPDATE campaign_leads
			SET status = 'pending', sender_id = NULL, queued_at = NULL,
			    task_id = NULL, updated_at = NOW()
			WHERE campaign_id = $1 AND status = 'queued' AND queued_at < $2
			RETURNING id
		), stats AS (
			UPDATE campaigns
			SET stats_queued = stats_queued - (SELECT COUNT(*) FROM reclaimed),
			    stats_pending = stats_pending + (SELECT COUNT(*) FROM reclaimed),
			    updated_at = NOW()
			WHERE id = $1 AND EXISTS (SELECT 1 FROM reclaimed)
		)
		SELECT COUNT(*) FROM reclaimed
	`, campaignID, cutoff).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale leases: %w", err)
	}
	return n, nil
}

func (r *DispatchStore) ReclaimStaleTasks(ctx context.Context, cutoff time.Time) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin reclaim tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		UPDATE tasks
		SET status = 'failed', failed_at = NOW(),
		    error_message = 'timed out', error_type = 'UNKNOWN'
		WHERE status IN ('pending', 'in_progress') AND created_at < $1
		RETURNING campaign_lead_id
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("fail stale tasks: %w", err)
	}
	var leadIDs []string
	n := 0
	for rows.Next() {
		var leadID sql.NullString
		if err := rows.Scan(&leadID); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan stale task: %w", err)
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
		// Conditional on 'queued' so a racing completion wins.
		_, err = tx.ExecContext(ctx, `
			WITH reset AS (
				UPDATE campaign_leads
				SET status = 'pending', sender_id = NULL, queued_at = NULL,
				    task_id = NULL, updated_at = NOW()
				WHERE id = ANY($1) AND status = 'queued'
				RETURNING campaign_id
			)
			UPDATE campaigns c
			SET stats_queued = stats_queued - sub.n,
			    stats_pending = stats_pending + sub.n,
			    updated_at = NOW()
			FROM (SELECT campaign_id, COUNT(*) AS n FROM reset GROUP BY campaign_id) sub
			WHERE c.id = sub.campaign_id
		`, pq.Array(leadIDs))
		if err != nil {
			return 0, fmt.Errorf("reset leads of stale tasks: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit reclaim tx: %w", err)
	}
	return n, nil
}

func (r *DispatchStore) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRowContext(ctx,
		`SELECT `+campaignCols+` FROM campaigns WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *DispatchStore) ListActiveCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+campaignCols+` FROM campaigns WHERE status = 'active' ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list active campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *DispatchStore) ListCampaignSenders(ctx context.Context, c *domain.Campaign) ([]domain.Sender, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+senderCols+`
		FROM senders
		WHERE outbound_account_id = ANY($1)
		ORDER BY created_at, id
	`, pq.Array(c.OutboundAccountIDs))
	if err != nil {
		return nil, fmt.Errorf("list campaign senders: %w", err)
	}
	defer rows.Close()

	var out []domain.Sender
	for rows.Next() {
		s, err := scanSender(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sender: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *DispatchStore) GetOutboundAccount(ctx context.Context, id string) (*domain.OutboundAccount, error) {
	a := &domain.OutboundAccount{}
	var caps pq.Int64Array
	err := r.db.QueryRowContext(ctx, `
		SELECT id, account_id, handle, status, warmup_enabled, warmup_start_date,
		       warmup_day_caps, streak_days, streak_last_send_date, rest_until,
		       created_at, updated_at
		FROM outbound_accounts WHERE id = $1
	`, id).Scan(
		&a.ID, &a.AccountID, &a.Handle, &a.Status, &a.Warmup.Enabled,
		&a.Warmup.StartDate, &caps, &a.StreakDays, &a.StreakLastSendDate,
		&a.RestUntil, &a.CreatedAt, &a.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get outbound account: %w", err)
	}
	a.Warmup.DayCaps = make([]int, len(caps))
	for i, v := range caps {
		a.Warmup.DayCaps[i] = int(v)
	}
	return a, nil
}

func (r *DispatchStore) CountCampaignDaySends(ctx context.Context, campaignID string, from, to time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM campaign_leads
		WHERE campaign_id = $1 AND status IN ('sent', 'queued')
		  AND updated_at >= $2 AND updated_at < $3
	`, campaignID, from, to).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count campaign day sends: %w", err)
	}
	return n, nil
}

func (r *DispatchStore) CountSenderDaySends(ctx context.Context, senderID, campaignID string, from, to time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM campaign_leads
		WHERE sender_id = $1
		  AND ($2::text = '' OR campaign_id = $2)
		  AND status IN ('sent', 'queued')
		  AND updated_at >= $3 AND updated_at < $4
	`, senderID, campaignID, from, to).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count sender day sends: %w", err)
	}
	return n, nil
}

func (r *DispatchStore) HasOpenTask(ctx context.Context, senderID, campaignID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM tasks
			WHERE sender_id = $1 AND campaign_id = $2
			  AND status IN ('pending', 'in_progress')
		)
	`, senderID, campaignID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check open task: %w", err)
	}
	return exists, nil
}

func (r *DispatchStore) AcquireLead(ctx context.Context, campaignID, senderID string, now time.Time) (*domain.CampaignLead, error) {
	// Leads this sender previously failed sort last, so a retry goes to a
	// different sender whenever one other lead is still pending.
	l, err := scanLead(r.db.QueryRowContext(ctx, `
		WITH next_lead AS (
			SELECT id FROM campaign_leads
			WHERE campaign_id = $1 AND status = 'pending'
			ORDER BY (failed_sender_ids @> ARRAY[$2]::text[]) ASC, created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		), claimed AS (
			UPDATE campaign_leads cl
			SET status = 'queued', sender_id = $2, queued_at = $3, updated_at = $3
			FROM next_lead
			WHERE cl.id = next_lead.id
			RETURNING `+prefixCols("cl", leadCols)+`
		), stats AS (
			UPDATE campaigns
			SET stats_pending = stats_pending - 1,
			    stats_queued = stats_queued + 1,
			    updated_at = $3
			WHERE id = $1 AND EXISTS (SELECT 1 FROM claimed)
		)
		SELECT * FROM claimed
	`, campaignID, senderID, now))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("acquire lead: %w", err)
	}
	return l, nil
}

func (r *DispatchStore) CountOpenLeads(ctx context.Context, campaignID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM campaign_leads
		WHERE campaign_id = $1 AND status IN ('pending', 'queued')
	`, campaignID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count open leads: %w", err)
	}
	return n, nil
}

func (r *DispatchStore) CountPendingLeads(ctx context.Context, campaignID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM campaign_leads
		WHERE campaign_id = $1 AND status = 'pending'
	`, campaignID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending leads: %w", err)
	}
	return n, nil
}

func (r *DispatchStore) CompleteCampaign(ctx context.Context, campaignID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET status = 'completed', updated_at = NOW()
		WHERE id = $1 AND status = 'active'
		  AND NOT EXISTS (
			SELECT 1 FROM campaign_leads
			WHERE campaign_id = $1 AND status IN ('pending', 'queued')
		  )
	`, campaignID)
	if err != nil {
		return false, fmt.Errorf("complete campaign: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *DispatchStore) GetOutboundLead(ctx context.Context, id string) (*domain.OutboundLead, error) {
	l := &domain.OutboundLead{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, account_id, username, COALESCE(name, ''), COALESCE(bio, ''),
		       follower_count, messaged, dm_date, COALESCE(last_message, ''),
		       replied, COALESCE(thread_id, ''), created_at, updated_at
		FROM outbound_leads WHERE id = $1
	`, id).Scan(
		&l.ID, &l.AccountID, &l.Username, &l.Name, &l.Bio, &l.FollowerCount,
		&l.Messaged, &l.DMDate, &l.LastMessage, &l.Replied, &l.ThreadID,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get outbound lead: %w", err)
	}
	return l, nil
}

func (r *DispatchStore) SkipLead(ctx context.Context, leadID, reason string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		WITH skipped AS (
			UPDATE campaign_leads
			SET status = 'skipped', last_error = $2, sender_id = NULL,
			    queued_at = NULL, updated_at = $3
			WHERE id = $1 AND status = 'queued'
			RETURNING campaign_id
		)
		UPDATE campaigns c
		SET stats_queued = stats_queued - 1,
		    stats_skipped = stats_skipped + 1,
		    updated_at = $3
		FROM skipped WHERE c.id = skipped.campaign_id
	`, leadID, reason, now)
	if err != nil {
		return fmt.Errorf("skip lead: %w", err)
	}
	return nil
}

func (r *DispatchStore) CommitDispatch(ctx context.Context, d *scheduler.Dispatch) (*domain.Task, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin dispatch tx: %w", err)
	}
	defer tx.Rollback()

	advance := 0
	if d.AdvanceTemplate {
		advance = 1
	}
	burst := 0
	if d.BurstIncrement {
		burst = 1
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE campaigns
		SET last_sender_index = $2,
		    last_message_index = last_message_index + $3,
		    last_sent_at = $4,
		    burst_sent_in_group = burst_sent_in_group + $5,
		    updated_at = $4
		WHERE id = $1
	`, d.Campaign.ID, d.SenderIndex, advance, d.Now, burst)
	if err != nil {
		return nil, fmt.Errorf("advance campaign cursors: %w", err)
	}

	t := &domain.Task{
		ID:             uuid.New().String(),
		AccountID:      d.Campaign.AccountID,
		Type:           domain.TaskSendDM,
		TargetUsername: d.Target.Username,
		Message:        d.Message,
		SenderID:       &d.Sender.ID,
		CampaignID:     &d.Campaign.ID,
		CampaignLeadID: &d.Lead.ID,
		OutboundLeadID: &d.Target.ID,
		Status:         domain.TaskPending,
		CreatedAt:      d.Now,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks
			(id, account_id, type, target_username, message, sender_id,
			 campaign_id, campaign_lead_id, outbound_lead_id, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'pending', 0, $10)
	`, t.ID, t.AccountID, t.Type, t.TargetUsername, t.Message, t.SenderID,
		t.CampaignID, t.CampaignLeadID, t.OutboundLeadID, t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE campaign_leads
		SET task_id = $2, message_used = $3, template_index = $4, updated_at = $5
		WHERE id = $1
	`, d.Lead.ID, t.ID, d.Message, d.TemplateIndex, d.Now)
	if err != nil {
		return nil, fmt.Errorf("attach task to lead: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit dispatch tx: %w", err)
	}
	return t, nil
}

func (r *DispatchStore) ResetBurstWindow(ctx context.Context, campaignID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET burst_sent_in_group = 0, burst_break_until = NULL, updated_at = NOW()
		WHERE id = $1
	`, campaignID)
	if err != nil {
		return fmt.Errorf("reset burst window: %w", err)
	}
	return nil
}

func (r *DispatchStore) ClearBurstBreak(ctx context.Context, campaignID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET burst_break_until = NULL, updated_at = NOW() WHERE id = $1
	`, campaignID)
	if err != nil {
		return fmt.Errorf("clear burst break: %w", err)
	}
	return nil
}

func (r *DispatchStore) SetBurstBreak(ctx context.Context, campaignID string, until time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET burst_break_until = $2, burst_sent_in_group = 0, updated_at = NOW()
		WHERE id = $1
	`, campaignID, until)
	if err != nil {
		return fmt.Errorf("set burst break: %w", err)
	}
	return nil
}

func (r *DispatchStore) UpdateStreak(ctx context.Context, outboundAccountID string, streak int, lastSend time.Time, restUntil *time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbound_accounts
		SET streak_days = $2, streak_last_send_date = $3, rest_until = $4, updated_at = NOW()
		WHERE id = $1
	`, outboundAccountID, streak, lastSend, restUntil)
	if err != nil {
		return fmt.Errorf("update streak: %w", err)
	}
	return nil
}

// MarkSenderOnline implements registry.SenderStore.
func (r *DispatchStore) MarkSenderOnline(ctx context.Context, senderID string, heartbeat time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE senders SET status = 'online', last_heartbeat = $2, updated_at = NOW()
		WHERE id = $1
	`, senderID, heartbeat)
	if err != nil {
		return fmt.Errorf("mark sender online: %w", err)
	}
	return nil
}

// MarkSenderOffline implements registry.SenderStore.
func (r *DispatchStore) MarkSenderOffline(ctx context.Context, senderID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE senders SET status = 'offline', updated_at = NOW() WHERE id = $1
	`, senderID)
	if err != nil {
		return fmt.Errorf("mark sender offline: %w", err)
	}
	return nil
}
