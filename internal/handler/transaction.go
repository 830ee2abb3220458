package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/kantor-dev/kantor-backend/internal/auth"
	"github.com/kantor-dev/kantor-backend/internal/domain"
	"github.com/kantor-dev/kantor-backend/internal/logging"
)

type transactionEngine interface {
	Deposit(ctx context.Context, userID string, amount decimal.Decimal) (*domain.LedgerEntry, error)
	Buy(ctx context.Context, userID string, currency domain.Currency, amount decimal.Decimal) (*domain.LedgerEntry, error)
	Sell(ctx context.Context, userID string, currency domain.Currency, amount decimal.Decimal) (*domain.LedgerEntry, error)
}

type TransactionHandler struct {
	engine transactionEngine
}

func NewTransactionHandler(engine transactionEngine) *TransactionHandler {
	return &TransactionHandler{engine: engine}
}

type transactionRequest struct {
	Type     string          `json:"type"`
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

func (r transactionRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Type != string(domain.EntryTypeBuy) && r.Type != string(domain.EntryTypeSell) {
		errs = append(errs, FieldError{Field: "type", Message: "must be buy or sell"})
	}
	if r.Currency == "" {
		errs = append(errs, FieldError{Field: "currency", Message: "required"})
	} else if !domain.Currency(r.Currency).IsQuote() {
		errs = append(errs, FieldError{Field: "currency", Message: "must be USD, EUR, GBP, or CHF"})
	}
	if !r.Amount.IsPositive() {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than zero"})
	}
	return errs
}

// Create settles a buy or sell at the latest cached rate.
func (h *TransactionHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	currency := domain.Currency(req.Currency)
	var entry *domain.LedgerEntry
	var err error
	if req.Type == string(domain.EntryTypeBuy) {
		entry, err = h.engine.Buy(r.Context(), userID, currency, req.Amount)
	} else {
		entry, err = h.engine.Sell(r.Context(), userID, currency, req.Amount)
	}
	if err != nil {
		logging.FromContext(r.Context()).Warn("transaction failed",
			"type", req.Type, "currency", req.Currency, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toEntryDTO(entry))
}

type depositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// Deposit credits base-currency funds to the caller's account.
func (h *TransactionHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	entry, err := h.engine.Deposit(r.Context(), userID, req.Amount)
	if err != nil {
		logging.FromContext(r.Context()).Warn("deposit failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toEntryDTO(entry))
}
