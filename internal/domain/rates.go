package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SnapshotKeyLatest requests the most recently published rate table rather
// than the table for a specific calendar date.
const SnapshotKeyLatest = "latest"

// RateSnapshot is a dated table of mid-rates against PLN. Date is the key
// the snapshot was requested under ("latest" or a calendar date);
// EffectiveDate is the date the provider published the table for, which may
// differ for "latest". Snapshots are immutable once fetched.
type RateSnapshot struct {
	Date          string
	EffectiveDate string
	Rates         map[Currency]decimal.Decimal
	FetchedAt     time.Time
}

// Rate returns the mid-rate for a currency. PLN always rates 1.
func (s *RateSnapshot) Rate(c Currency) (decimal.Decimal, bool) {
	if c == CurrencyPLN {
		return decimal.NewFromInt(1), true
	}
	r, ok := s.Rates[c]
	return r, ok
}
