package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kantor-dev/kantor-backend/internal/domain"
)

// SnapshotRepository archives fetched rate tables, one row per calendar
// date. Re-fetching the same date overwrites the row, keeping the archive
// at the latest table seen for that date.
type SnapshotRepository struct {
	db *sql.DB
}

func NewSnapshotRepository(db *sql.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

func (r *SnapshotRepository) Save(ctx context.Context, snap *domain.RateSnapshot) error {
	rates, err := json.Marshal(snap.Rates)
	if err != nil {
		return fmt.Errorf("Save: marshal rates: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO rate_snapshots (doc_date, effective_date, rates, fetched_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (doc_date) DO UPDATE
		 SET effective_date = EXCLUDED.effective_date,
		     rates = EXCLUDED.rates,
		     fetched_at = EXCLUDED.fetched_at`,
		snap.Date, snap.EffectiveDate, rates, snap.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	return nil
}

func (r *SnapshotRepository) List(ctx context.Context, limit int) ([]domain.RateSnapshot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT doc_date, effective_date, rates, fetched_at
		 FROM rate_snapshots ORDER BY fetched_at DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer rows.Close()

	var snaps []domain.RateSnapshot
	for rows.Next() {
		var s domain.RateSnapshot
		var rates []byte
		if err := rows.Scan(&s.Date, &s.EffectiveDate, &rates, &s.FetchedAt); err != nil {
			return nil, fmt.Errorf("List: scan: %w", err)
		}
		if err := json.Unmarshal(rates, &s.Rates); err != nil {
			return nil, fmt.Errorf("List: unmarshal rates: %w", err)
		}
		snaps = append(snaps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("List: rows: %w", err)
	}
	return snaps, nil
}
