// Package nbp fetches exchange-rate tables from the National Bank of
// Poland's public API (table A, mid-rates against PLN).
package nbp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kantor-dev/kantor-backend/internal/domain"
	"github.com/kantor-dev/kantor-backend/internal/logging"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type tableResponse struct {
	EffectiveDate string `json:"effectiveDate"`
	Rates         []struct {
		Code string          `json:"code"`
		Mid  decimal.Decimal `json:"mid"`
	} `json:"rates"`
}

// FetchTable retrieves the table for a calendar date, or the most recent
// published table when key is "latest". Returns domain.ErrNotFound when NBP
// has no table for the date (weekends, holidays, future dates).
func (c *Client) FetchTable(ctx context.Context, key string) (*domain.RateSnapshot, error) {
	url := c.baseURL + "/api/exchangerates/tables/A/?format=json"
	if key != domain.SnapshotKeyLatest {
		url = fmt.Sprintf("%s/api/exchangerates/tables/A/%s/?format=json", c.baseURL, key)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("FetchTable: build request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("FetchTable: send: %w", err)
	}
	defer resp.Body.Close()

	logging.FromContext(ctx).Debug("nbp response received",
		"key", key,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("FetchTable: no table for %q: %w", key, domain.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("FetchTable: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var tables []tableResponse
	if err := json.NewDecoder(resp.Body).Decode(&tables); err != nil {
		return nil, fmt.Errorf("FetchTable: decode: %w", err)
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("FetchTable: empty table for %q: %w", key, domain.ErrNotFound)
	}

	table := tables[0]
	rates := make(map[domain.Currency]decimal.Decimal, len(table.Rates)+1)
	for _, r := range table.Rates {
		rates[domain.Currency(r.Code)] = r.Mid
	}
	rates[domain.CurrencyPLN] = decimal.NewFromInt(1)

	return &domain.RateSnapshot{
		Date:          key,
		EffectiveDate: table.EffectiveDate,
		Rates:         rates,
		FetchedAt:     time.Now().UTC(),
	}, nil
}
