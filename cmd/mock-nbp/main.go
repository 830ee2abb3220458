// mock-nbp is a local stand-in for the NBP exchange-rate API plus a push
// gateway sink, so the wallet can run end to end without external services.
package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/kantor-dev/kantor-backend/internal/logging"
)

type rate struct {
	Currency string  `json:"currency"`
	Code     string  `json:"code"`
	Mid      float64 `json:"mid"`
}

type table struct {
	Table         string `json:"table"`
	No            string `json:"no"`
	EffectiveDate string `json:"effectiveDate"`
	Rates         []rate `json:"rates"`
}

var staticRates = []rate{
	{Currency: "dolar amerykański", Code: "USD", Mid: 4.0215},
	{Currency: "euro", Code: "EUR", Mid: 4.3102},
	{Currency: "funt szterling", Code: "GBP", Mid: 5.0734},
	{Currency: "frank szwajcarski", Code: "CHF", Mid: 4.4481},
}

func main() {
	_ = godotenv.Load()
	logging.Init("mock-nbp", "info", os.Getenv("APP_ENV"))

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /api/exchangerates/tables/A/", func(w http.ResponseWriter, r *http.Request) {
		serveTable(w, time.Now().UTC().Format("2006-01-02"))
	})

	mux.HandleFunc("GET /api/exchangerates/tables/A/{date}/", func(w http.ResponseWriter, r *http.Request) {
		date := r.PathValue("date")
		day, err := time.Parse("2006-01-02", date)
		if err != nil || day.After(time.Now()) {
			http.Error(w, "404 NotFound", http.StatusNotFound)
			return
		}
		// NBP publishes no tables on weekends.
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			http.Error(w, "404 NotFound", http.StatusNotFound)
			return
		}
		serveTable(w, date)
	})

	mux.HandleFunc("POST /v1/messages", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(io.LimitReader(r.Body, 4096))
		slog.Info("push message received", "payload", string(body))
		writeJSON(w, http.StatusOK, map[string]string{"status": "delivered"})
	})

	slog.Info("mock nbp started", "addr", ":8081")
	if err := http.ListenAndServe(":8081", mux); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func serveTable(w http.ResponseWriter, effectiveDate string) {
	writeJSON(w, http.StatusOK, []table{{
		Table:         "A",
		No:            "168/A/NBP/2026",
		EffectiveDate: effectiveDate,
		Rates:         staticRates,
	}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
