package ledger

import (
	"time"

	"github.com/kantor-dev/kantor-backend/internal/domain"
)

// TransactionSettled is emitted on the event stream after each committed
// operation, for downstream consumers (audit, analytics). Amounts travel as
// strings to keep decimal precision across the wire.
type TransactionSettled struct {
	EntryID   string    `json:"entry_id"`
	UserID    string    `json:"user_id"`
	Type      string    `json:"type"`
	Currency  string    `json:"currency"`
	Amount    string    `json:"amount"`
	Rate      string    `json:"rate,omitempty"`
	PLN       string    `json:"pln"`
	Timestamp time.Time `json:"timestamp"`
}

func SettledEvent(e *domain.LedgerEntry) TransactionSettled {
	ev := TransactionSettled{
		EntryID:   e.ID.String(),
		UserID:    e.UserID,
		Type:      string(e.Type),
		Currency:  string(e.Currency),
		Amount:    e.Amount.String(),
		PLN:       e.PLN.StringFixed(2),
		Timestamp: e.CreatedAt,
	}
	if e.Rate != nil {
		ev.Rate = e.Rate.StringFixed(4)
	}
	return ev
}
