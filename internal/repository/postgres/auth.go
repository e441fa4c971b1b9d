package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/outreach-scheduler/internal/domain"
)

// AgentAuthRepo resolves agent credentials to sender identities. The
// credential table is provisioned by the external control plane; this repo
// only reads it and creates the sender row on first authentication.
type AgentAuthRepo struct{ db *sql.DB }

// NewAgentAuthRepo creates a Postgres-backed agent authenticator.
func NewAgentAuthRepo(db *sql.DB) *AgentAuthRepo { return &AgentAuthRepo{db: db} }

// Authenticate maps a credential to (senderID, accountID), creating the
// sender on first use. Unknown credentials return an error.
func (r *AgentAuthRepo) Authenticate(ctx context.Context, credential string) (string, string, error) {
	var accountID, outboundAccountID string
	err := r.db.QueryRowContext(ctx, `
		SELECT account_id, outbound_account_id
		FROM agent_credentials
		WHERE token = $1 AND revoked_at IS NULL
	`, credential).Scan(&accountID, &outboundAccountID)
	if err == sql.ErrNoRows {
		return "", "", fmt.Errorf("unknown agent credential")
	}
	if err != nil {
		return "", "", fmt.Errorf("resolve credential: %w", err)
	}

	// One sender per outbound account; reconnects reuse the row.
	var senderID string
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO senders
			(id, account_id, outbound_account_id, status, daily_limit, created_at, updated_at)
		VALUES ($1, $2, $3, 'offline', $4, NOW(), NOW())
		ON CONFLICT (outbound_account_id) DO UPDATE SET updated_at = NOW()
		RETURNING id
	`, uuid.New().String(), accountID, outboundAccountID, domain.DefaultDailyLimit).Scan(&senderID)
	if err != nil {
		return "", "", fmt.Errorf("upsert sender: %w", err)
	}
	return senderID, accountID, nil
}
