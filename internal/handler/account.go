package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/kantor-dev/kantor-backend/internal/auth"
	"github.com/kantor-dev/kantor-backend/internal/domain"
	"github.com/kantor-dev/kantor-backend/internal/logging"
)

type accountService interface {
	GetOrCreateAccount(ctx context.Context, userID string) (*domain.Account, []domain.LedgerEntry, error)
	RegisterPushToken(ctx context.Context, userID, token string) error
}

type AccountHandler struct {
	accounts accountService
}

func NewAccountHandler(accounts accountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

type accountDTO struct {
	Balance      map[string]string `json:"balance"`
	Transactions []ledgerEntryDTO  `json:"transactions"`
	CreatedAt    time.Time         `json:"created_at"`
}

type ledgerEntryDTO struct {
	Type        string `json:"type"`
	Currency    string `json:"currency"`
	Amount      string `json:"amount"`
	Rate        string `json:"rate,omitempty"`
	PLN         string `json:"pln"`
	Description string `json:"description,omitempty"`
	Timestamp   string `json:"timestamp"`
}

func toEntryDTO(e *domain.LedgerEntry) ledgerEntryDTO {
	dto := ledgerEntryDTO{
		Type:        string(e.Type),
		Currency:    string(e.Currency),
		Amount:      e.Amount.String(),
		PLN:         e.PLN.StringFixed(2),
		Description: e.Description,
		Timestamp:   e.CreatedAt.Format(time.RFC3339),
	}
	if e.Rate != nil {
		dto.Rate = e.Rate.StringFixed(4)
	}
	return dto
}

// Get returns the caller's account, creating it with the initial grant on
// first access.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	acct, entries, err := h.accounts.GetOrCreateAccount(r.Context(), userID)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to load account", "error", err)
		RespondDomainError(w, err)
		return
	}

	balance := make(map[string]string, len(acct.Balance))
	for c, v := range acct.Balance {
		balance[string(c)] = v.String()
	}

	txs := make([]ledgerEntryDTO, 0, len(entries))
	for i := range entries {
		txs = append(txs, toEntryDTO(&entries[i]))
	}

	RespondSuccess(w, http.StatusOK, accountDTO{
		Balance:      balance,
		Transactions: txs,
		CreatedAt:    acct.CreatedAt,
	})
}

type saveTokenRequest struct {
	Token string `json:"token"`
}

// SavePushToken registers the caller's device token for settlement pushes.
func (h *AccountHandler) SavePushToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	var req saveTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if req.Token == "" {
		RespondValidationError(w, []FieldError{{Field: "token", Message: "required"}})
		return
	}

	if err := h.accounts.RegisterPushToken(r.Context(), userID, req.Token); err != nil {
		logging.FromContext(r.Context()).Error("failed to save push token", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]bool{"ok": true})
}
