// Package ledger is the transaction engine: it validates currency
// operations against a rate snapshot, commits balance mutations and
// append-only ledger entries through optimistic store transactions, and
// hands settled operations off for notification.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kantor-dev/kantor-backend/internal/config"
	"github.com/kantor-dev/kantor-backend/internal/domain"
	"github.com/kantor-dev/kantor-backend/internal/logging"
)

const (
	baseBackoff    = 10 * time.Millisecond
	publishTimeout = 5 * time.Second
)

type accountRepo interface {
	Get(ctx context.Context, userID string) (*domain.Account, error)
	Create(ctx context.Context, tx *sql.Tx, account *domain.Account) error
	UpdateBalance(ctx context.Context, tx *sql.Tx, userID string, newBalance domain.Balance, newVersion int64) error
	SetPushToken(ctx context.Context, userID, token string) (bool, error)
}

type ledgerRepo interface {
	Create(ctx context.Context, tx *sql.Tx, entry *domain.LedgerEntry) error
	ListByUser(ctx context.Context, userID string) ([]domain.LedgerEntry, error)
}

type rateSource interface {
	Latest(ctx context.Context) (*domain.RateSnapshot, error)
}

type notifier interface {
	Dispatch(userID, title, body string)
}

type eventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type Service struct {
	accounts accountRepo
	entries  ledgerRepo
	rates    rateSource
	notify   notifier
	events   eventPublisher
	db       *sql.DB

	minDeposit   decimal.Decimal
	initialGrant decimal.Decimal
	maxRetries   int
}

func NewService(
	accounts accountRepo,
	entries ledgerRepo,
	rates rateSource,
	notify notifier,
	events eventPublisher,
	db *sql.DB,
	cfg *config.Config,
) *Service {
	return &Service{
		accounts:     accounts,
		entries:      entries,
		rates:        rates,
		notify:       notify,
		events:       events,
		db:           db,
		minDeposit:   decimal.NewFromInt(cfg.MinDepositPLN),
		initialGrant: decimal.NewFromInt(cfg.InitialGrantPLN),
		maxRetries:   cfg.TxMaxRetries,
	}
}

// GetOrCreateAccount returns the account and its transaction history,
// creating the account with the initial grant on first access.
func (s *Service) GetOrCreateAccount(ctx context.Context, userID string) (*domain.Account, []domain.LedgerEntry, error) {
	acct, err := s.accounts.Get(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		acct, err = s.createDefault(ctx, userID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("GetOrCreateAccount: %w", err)
	}

	entries, err := s.entries.ListByUser(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("GetOrCreateAccount: %w", err)
	}
	return acct, entries, nil
}

func (s *Service) createDefault(ctx context.Context, userID string) (*domain.Account, error) {
	acct := domain.NewAccount(userID, s.initialGrant, time.Now().UTC())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("createDefault: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.accounts.Create(ctx, tx, acct); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Lost the first-creation race; the winner's row is authoritative.
			return s.accounts.Get(ctx, userID)
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("createDefault: commit: %w", err)
	}
	return acct, nil
}

// RegisterPushToken records the device token for settlement notifications,
// overwriting any previous registration.
func (s *Service) RegisterPushToken(ctx context.Context, userID, token string) error {
	existed, err := s.accounts.SetPushToken(ctx, userID, token)
	if err != nil {
		return fmt.Errorf("RegisterPushToken: %w", err)
	}
	if existed {
		return nil
	}

	// Device registered before the account's first read: create it first.
	if _, err := s.createDefault(ctx, userID); err != nil {
		return fmt.Errorf("RegisterPushToken: %w", err)
	}
	if _, err := s.accounts.SetPushToken(ctx, userID, token); err != nil {
		return fmt.Errorf("RegisterPushToken: %w", err)
	}
	return nil
}

// Deposit credits the base currency. Amounts below the configured minimum
// are rejected before any store access.
func (s *Service) Deposit(ctx context.Context, userID string, amount decimal.Decimal) (*domain.LedgerEntry, error) {
	if amount.LessThan(s.minDeposit) {
		return nil, fmt.Errorf("Deposit: minimum is %s PLN: %w", s.minDeposit, domain.ErrInvalidAmount)
	}

	pln := amount.Round(2)
	entry, err := s.commit(ctx, userID, func(acct *domain.Account) (*domain.LedgerEntry, error) {
		acct.Balance[domain.CurrencyPLN] = acct.Balance.Get(domain.CurrencyPLN).Add(pln)
		return &domain.LedgerEntry{
			ID:          uuid.New(),
			UserID:      userID,
			Type:        domain.EntryTypeDeposit,
			Currency:    domain.CurrencyPLN,
			Amount:      pln,
			PLN:         pln,
			Description: "Account deposit",
			CreatedAt:   time.Now().UTC(),
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("Deposit: %w", err)
	}

	s.settled(ctx, entry, "Account funded!", fmt.Sprintf("+%s PLN credited to your account", pln.StringFixed(2)))
	return entry, nil
}

// Buy exchanges PLN for a quote currency at the latest mid-rate.
func (s *Service) Buy(ctx context.Context, userID string, currency domain.Currency, amount decimal.Decimal) (*domain.LedgerEntry, error) {
	entry, err := s.trade(ctx, userID, domain.EntryTypeBuy, currency, amount)
	if err != nil {
		return nil, fmt.Errorf("Buy: %w", err)
	}
	return entry, nil
}

// Sell exchanges a quote currency back to PLN at the latest mid-rate.
func (s *Service) Sell(ctx context.Context, userID string, currency domain.Currency, amount decimal.Decimal) (*domain.LedgerEntry, error) {
	entry, err := s.trade(ctx, userID, domain.EntryTypeSell, currency, amount)
	if err != nil {
		return nil, fmt.Errorf("Sell: %w", err)
	}
	return entry, nil
}

func (s *Service) trade(ctx context.Context, userID string, entryType domain.EntryType, currency domain.Currency, amount decimal.Decimal) (*domain.LedgerEntry, error) {
	if !currency.IsQuote() {
		return nil, fmt.Errorf("trade: %q: %w", currency, domain.ErrUnknownCurrency)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("trade: %w", domain.ErrInvalidAmount)
	}
	// The ledger records amounts at 4 decimal places; anything that rounds
	// to zero there cannot be represented as an entry.
	if amount.Round(4).IsZero() {
		return nil, fmt.Errorf("trade: amount rounds to zero: %w", domain.ErrInvalidAmount)
	}

	entry, err := s.commit(ctx, userID, func(acct *domain.Account) (*domain.LedgerEntry, error) {
		// The snapshot is fixed per attempt; a store-conflict retry fetches
		// again, which within the cache TTL yields the same table.
		snap, err := s.rates.Latest(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("trade: %w: %w", domain.ErrRateUnavailable, err)
			}
			return nil, err
		}

		rate, ok := snap.Rate(currency)
		if !ok {
			return nil, fmt.Errorf("trade: no rate for %q: %w", currency, domain.ErrUnknownCurrency)
		}

		pln := amount.Mul(rate).Round(2)
		if pln.IsZero() {
			return nil, fmt.Errorf("trade: amount too small to settle: %w", domain.ErrInvalidAmount)
		}

		switch entryType {
		case domain.EntryTypeBuy:
			if acct.Balance.Get(domain.CurrencyPLN).LessThan(pln) {
				return nil, fmt.Errorf("trade: %s: %w", domain.CurrencyPLN, domain.ErrInsufficientFunds)
			}
			acct.Balance[domain.CurrencyPLN] = acct.Balance.Get(domain.CurrencyPLN).Sub(pln)
			acct.Balance[currency] = acct.Balance.Get(currency).Add(amount)
		case domain.EntryTypeSell:
			if acct.Balance.Get(currency).LessThan(amount) {
				return nil, fmt.Errorf("trade: %s: %w", currency, domain.ErrInsufficientFunds)
			}
			acct.Balance[domain.CurrencyPLN] = acct.Balance.Get(domain.CurrencyPLN).Add(pln)
			acct.Balance[currency] = acct.Balance.Get(currency).Sub(amount)
		}

		rate4 := rate.Round(4)
		return &domain.LedgerEntry{
			ID:        uuid.New(),
			UserID:    userID,
			Type:      entryType,
			Currency:  currency,
			Amount:    amount.Round(4),
			Rate:      &rate4,
			PLN:       pln,
			CreatedAt: time.Now().UTC(),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	title := "Purchase complete!"
	if entryType == domain.EntryTypeSell {
		title = "Sale complete!"
	}
	body := fmt.Sprintf("%s %s for %s PLN (rate: %s)",
		entry.Amount, entry.Currency, entry.PLN.StringFixed(2), entry.Rate.StringFixed(4))
	s.settled(ctx, entry, title, body)

	return entry, nil
}

// commit runs one read-validate-write cycle against the account store,
// retrying with backoff on write conflicts. Validation failures from mutate
// are terminal for the operation and never retried. mutate receives a
// freshly read account (lazily defaulted if absent) and returns the entry
// to append alongside the balance write.
func (s *Service) commit(ctx context.Context, userID string, mutate func(*domain.Account) (*domain.LedgerEntry, error)) (*domain.LedgerEntry, error) {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			logging.FromContext(ctx).Debug("write conflict, retrying",
				"user_id", userID, "attempt", attempt)
			if err := sleepBackoff(ctx, attempt); err != nil {
				return nil, fmt.Errorf("commit: %w", err)
			}
		}

		entry, err := s.tryCommit(ctx, userID, mutate)
		if err == nil {
			return entry, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("commit: retries exhausted: %w", lastErr)
}

func (s *Service) tryCommit(ctx context.Context, userID string, mutate func(*domain.Account) (*domain.LedgerEntry, error)) (*domain.LedgerEntry, error) {
	acct, err := s.accounts.Get(ctx, userID)
	fresh := false
	if errors.Is(err, domain.ErrNotFound) {
		acct = domain.NewAccount(userID, s.initialGrant, time.Now().UTC())
		fresh = true
	} else if err != nil {
		return nil, err
	}

	acct.Balance = acct.Balance.Clone()
	entry, err := mutate(acct)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("tryCommit: begin tx: %w", err)
	}
	defer tx.Rollback()

	if fresh {
		// The insert doubles as first-time creation; a concurrent creator
		// trips the primary key and we retry against their row.
		if err := s.accounts.Create(ctx, tx, acct); err != nil {
			return nil, err
		}
	} else {
		if err := s.accounts.UpdateBalance(ctx, tx, userID, acct.Balance, acct.Version+1); err != nil {
			return nil, err
		}
	}

	if err := s.entries.Create(ctx, tx, entry); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("tryCommit: commit: %w", err)
	}
	return entry, nil
}

// settled runs after the ledger mutation is durable. Nothing here may fail
// or delay the operation: the notification is fire-and-forget and the event
// publish runs off the request path, detached from the caller's context so
// a client disconnect after commit cannot cancel it.
func (s *Service) settled(ctx context.Context, entry *domain.LedgerEntry, title, body string) {
	s.notify.Dispatch(entry.UserID, title, body)

	logger := logging.FromContext(ctx)
	go func() {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()

		if err := s.events.Publish(pubCtx, entry.UserID, SettledEvent(entry)); err != nil {
			logger.Warn("failed to publish settlement event",
				"entry_id", entry.ID, "error", err)
		}
	}()
}

func sleepBackoff(ctx context.Context, attempt int) error {
	d := baseBackoff << (attempt - 1)
	d += rand.N(d) // jitter
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
