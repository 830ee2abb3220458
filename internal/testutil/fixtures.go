package testutil

import (
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/kantor-dev/kantor-backend/internal/domain"
)

// GetBalance reads one currency's committed balance straight from the store.
func GetBalance(t *testing.T, db *sql.DB, userID string, currency domain.Currency) decimal.Decimal {
	t.Helper()

	var raw []byte
	err := db.QueryRow(`SELECT balance FROM accounts WHERE user_id = $1`, userID).Scan(&raw)
	if err != nil {
		t.Fatalf("read balance for %s: %v", userID, err)
	}

	var balance domain.Balance
	if err := json.Unmarshal(raw, &balance); err != nil {
		t.Fatalf("unmarshal balance: %v", err)
	}
	return balance.Get(currency)
}

func CountLedgerEntries(t *testing.T, db *sql.DB, userID string) int {
	t.Helper()

	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM ledger_entries WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		t.Fatalf("count ledger entries for %s: %v", userID, err)
	}
	return n
}

func GetPushToken(t *testing.T, db *sql.DB, userID string) *string {
	t.Helper()

	var token *string
	err := db.QueryRow(`SELECT push_token FROM accounts WHERE user_id = $1`, userID).Scan(&token)
	if err != nil {
		t.Fatalf("read push token for %s: %v", userID, err)
	}
	return token
}

func AccountExists(t *testing.T, db *sql.DB, userID string) bool {
	t.Helper()

	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM accounts WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		t.Fatalf("count accounts for %s: %v", userID, err)
	}
	return n > 0
}
