package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EntryType string

const (
	EntryTypeBuy     EntryType = "buy"
	EntryTypeSell    EntryType = "sell"
	EntryTypeDeposit EntryType = "deposit"
)

// LedgerEntry is one settled operation. Entries are append-only: written
// exactly once in the same store transaction as the balance update, never
// mutated afterwards. Amount is recorded at 4 decimal places, PLN at 2.
// Rate is nil for deposits.
type LedgerEntry struct {
	ID          uuid.UUID
	UserID      string
	Type        EntryType
	Currency    Currency
	Amount      decimal.Decimal
	Rate        *decimal.Decimal
	PLN         decimal.Decimal
	Description string
	CreatedAt   time.Time
}
