package postgres

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestAuthenticateKnownCredential(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT account_id, outbound_account_id").
		WithArgs("tok-123").
		WillReturnRows(sqlmock.NewRows([]string{"account_id", "outbound_account_id"}).
			AddRow("acct-1", "oa1"))
	mock.ExpectQuery("INSERT INTO senders").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("s1"))

	senderID, accountID, err := NewAgentAuthRepo(db).Authenticate(context.Background(), "tok-123")
	if err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}
	if senderID != "s1" || accountID != "acct-1" {
		t.Errorf("Authenticate = (%s, %s), want (s1, acct-1)", senderID, accountID)
	}
	expectationsMet(t, mock)
}

func TestAuthenticateUnknownCredential(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT account_id, outbound_account_id").
		WithArgs("bogus").
		WillReturnError(sql.ErrNoRows)

	_, _, err := NewAgentAuthRepo(db).Authenticate(context.Background(), "bogus")
	if err == nil {
		t.Error("unknown credential must not authenticate")
	}
	expectationsMet(t, mock)
}
