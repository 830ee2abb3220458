package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/kantor-dev/kantor-backend/internal/domain"
	"github.com/kantor-dev/kantor-backend/internal/logging"
)

type ratesService interface {
	Latest(ctx context.Context) (*domain.RateSnapshot, error)
	ForDate(ctx context.Context, date string) (*domain.RateSnapshot, error)
	Archive(ctx context.Context) ([]domain.RateSnapshot, error)
}

type RatesHandler struct {
	rates ratesService
}

func NewRatesHandler(rates ratesService) *RatesHandler {
	return &RatesHandler{rates: rates}
}

type snapshotDTO struct {
	Date  string            `json:"date"`
	Rates map[string]string `json:"rates"`
}

type archivedSnapshotDTO struct {
	Date          string            `json:"date"`
	EffectiveDate string            `json:"effective_date"`
	Rates         map[string]string `json:"rates"`
}

func ratesToStrings(snap *domain.RateSnapshot) map[string]string {
	out := make(map[string]string, len(snap.Rates))
	for c, r := range snap.Rates {
		out[string(c)] = r.String()
	}
	return out
}

func (h *RatesHandler) Latest(w http.ResponseWriter, r *http.Request) {
	snap, err := h.rates.Latest(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Warn("latest rates unavailable", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, snapshotDTO{
		Date:  snap.EffectiveDate,
		Rates: ratesToStrings(snap),
	})
}

func (h *RatesHandler) ByDate(w http.ResponseWriter, r *http.Request) {
	date := r.PathValue("date")
	if _, err := time.Parse("2006-01-02", date); err != nil {
		RespondValidationError(w, []FieldError{{Field: "date", Message: "must be an ISO date (YYYY-MM-DD)"}})
		return
	}

	snap, err := h.rates.ForDate(r.Context(), date)
	if err != nil {
		logging.FromContext(r.Context()).Warn("rates lookup failed", "date", date, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, snapshotDTO{
		Date:  snap.EffectiveDate,
		Rates: ratesToStrings(snap),
	})
}

func (h *RatesHandler) Archive(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.rates.Archive(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Warn("archive lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	out := make([]archivedSnapshotDTO, 0, len(snaps))
	for i := range snaps {
		out = append(out, archivedSnapshotDTO{
			Date:          snaps[i].Date,
			EffectiveDate: snaps[i].EffectiveDate,
			Rates:         ratesToStrings(&snaps[i]),
		})
	}

	RespondSuccess(w, http.StatusOK, out)
}
