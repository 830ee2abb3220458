package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kantor-dev/kantor-backend/internal/auth"
	"github.com/kantor-dev/kantor-backend/internal/domain"
)

type stubEngine struct {
	err       error
	lastOp    string
	lastUID   string
	lastCurr  domain.Currency
	lastValue decimal.Decimal
}

func (s *stubEngine) entry(entryType domain.EntryType, currency domain.Currency, amount decimal.Decimal) *domain.LedgerEntry {
	rate := decimal.RequireFromString("4.00")
	e := &domain.LedgerEntry{
		ID:        uuid.New(),
		UserID:    s.lastUID,
		Type:      entryType,
		Currency:  currency,
		Amount:    amount.Round(4),
		PLN:       amount.Mul(rate).Round(2),
		CreatedAt: time.Now().UTC(),
	}
	if entryType != domain.EntryTypeDeposit {
		e.Rate = &rate
	}
	return e
}

func (s *stubEngine) Deposit(_ context.Context, userID string, amount decimal.Decimal) (*domain.LedgerEntry, error) {
	s.lastOp, s.lastUID, s.lastValue = "deposit", userID, amount
	if s.err != nil {
		return nil, s.err
	}
	return s.entry(domain.EntryTypeDeposit, domain.CurrencyPLN, amount), nil
}

func (s *stubEngine) Buy(_ context.Context, userID string, currency domain.Currency, amount decimal.Decimal) (*domain.LedgerEntry, error) {
	s.lastOp, s.lastUID, s.lastCurr, s.lastValue = "buy", userID, currency, amount
	if s.err != nil {
		return nil, s.err
	}
	return s.entry(domain.EntryTypeBuy, currency, amount), nil
}

func (s *stubEngine) Sell(_ context.Context, userID string, currency domain.Currency, amount decimal.Decimal) (*domain.LedgerEntry, error) {
	s.lastOp, s.lastUID, s.lastCurr, s.lastValue = "sell", userID, currency, amount
	if s.err != nil {
		return nil, s.err
	}
	return s.entry(domain.EntryTypeSell, currency, amount), nil
}

func doRequest(t *testing.T, h http.HandlerFunc, userID, body string) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	if userID != "" {
		req = req.WithContext(auth.ContextWithUserID(req.Context(), userID))
	}
	rec := httptest.NewRecorder()
	h(rec, req)

	var resp APIResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec, resp
}

func TestCreateTransaction_Buy(t *testing.T) {
	engine := &stubEngine{}
	h := NewTransactionHandler(engine)

	rec, resp := doRequest(t, h.Create, "u1", `{"type":"buy","currency":"USD","amount":100}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, "buy", engine.lastOp)
	assert.Equal(t, "u1", engine.lastUID)
	assert.Equal(t, domain.CurrencyUSD, engine.lastCurr)

	data := resp.Data.(map[string]any)
	assert.Equal(t, "buy", data["type"])
	assert.Equal(t, "400.00", data["pln"])
	assert.Equal(t, "4.0000", data["rate"])
}

func TestCreateTransaction_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad type", `{"type":"short","currency":"USD","amount":100}`},
		{"unsupported currency", `{"type":"buy","currency":"JPY","amount":100}`},
		{"missing currency", `{"type":"buy","amount":100}`},
		{"zero amount", `{"type":"buy","currency":"USD","amount":0}`},
		{"negative amount", `{"type":"sell","currency":"USD","amount":-5}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			engine := &stubEngine{}
			h := NewTransactionHandler(engine)

			rec, resp := doRequest(t, h.Create, "u1", tc.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "VALIDATION_FAILED", resp.Error.Code)
			assert.Empty(t, engine.lastOp, "invalid request must not reach the engine")
		})
	}
}

func TestCreateTransaction_InsufficientFunds(t *testing.T) {
	engine := &stubEngine{err: fmt.Errorf("trade: PLN: %w", domain.ErrInsufficientFunds)}
	h := NewTransactionHandler(engine)

	rec, resp := doRequest(t, h.Create, "u1", `{"type":"buy","currency":"USD","amount":100}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "INSUFFICIENT_FUNDS", resp.Error.Code)
}

func TestCreateTransaction_RateUnavailable(t *testing.T) {
	engine := &stubEngine{err: fmt.Errorf("trade: %w", domain.ErrRateUnavailable)}
	h := NewTransactionHandler(engine)

	rec, resp := doRequest(t, h.Create, "u1", `{"type":"sell","currency":"EUR","amount":10}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "RATE_UNAVAILABLE", resp.Error.Code)
}

func TestCreateTransaction_MissingUser(t *testing.T) {
	h := NewTransactionHandler(&stubEngine{})

	rec, resp := doRequest(t, h.Create, "", `{"type":"buy","currency":"USD","amount":100}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "MISSING_TOKEN", resp.Error.Code)
}

func TestDeposit_BelowMinimum(t *testing.T) {
	engine := &stubEngine{err: fmt.Errorf("Deposit: minimum is 1000 PLN: %w", domain.ErrInvalidAmount)}
	h := NewTransactionHandler(engine)

	rec, resp := doRequest(t, h.Deposit, "u1", `{"amount":500}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_AMOUNT", resp.Error.Code)
}

func TestDeposit_HappyPath(t *testing.T) {
	engine := &stubEngine{}
	h := NewTransactionHandler(engine)

	rec, resp := doRequest(t, h.Deposit, "u1", `{"amount":1500}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, "deposit", engine.lastOp)
	assert.True(t, engine.lastValue.Equal(decimal.NewFromInt(1500)))

	data := resp.Data.(map[string]any)
	assert.Equal(t, "deposit", data["type"])
	assert.Nil(t, data["rate"])
}
