package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Currency string

const (
	// CurrencyPLN is the base currency every trade settles against.
	CurrencyPLN Currency = "PLN"
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyCHF Currency = "CHF"
)

// QuoteCurrencies are the currencies that can be bought and sold against PLN.
var QuoteCurrencies = []Currency{CurrencyUSD, CurrencyEUR, CurrencyGBP, CurrencyCHF}

func (c Currency) IsQuote() bool {
	switch c {
	case CurrencyUSD, CurrencyEUR, CurrencyGBP, CurrencyCHF:
		return true
	}
	return false
}

// Balance maps currency codes to non-negative amounts. Currencies the
// account has never touched are implicitly zero.
type Balance map[Currency]decimal.Decimal

func (b Balance) Get(c Currency) decimal.Decimal {
	if v, ok := b[c]; ok {
		return v
	}
	return decimal.Zero
}

// Clone returns an independent copy so a transaction attempt can mutate
// freely and discard the copy on conflict.
func (b Balance) Clone() Balance {
	out := make(Balance, len(b))
	for c, v := range b {
		out[c] = v
	}
	return out
}

type Account struct {
	UserID    string
	Balance   Balance
	PushToken *string
	Version   int64
	CreatedAt time.Time
}

// NewAccount builds the lazily-created default account: the base-currency
// initial grant plus zeroed quote currencies.
func NewAccount(userID string, initialGrant decimal.Decimal, now time.Time) *Account {
	balance := Balance{CurrencyPLN: initialGrant}
	for _, c := range QuoteCurrencies {
		balance[c] = decimal.Zero
	}
	return &Account{
		UserID:    userID,
		Balance:   balance,
		Version:   1,
		CreatedAt: now,
	}
}
