package rates

import (
	"context"
	"fmt"
	"time"

	"github.com/kantor-dev/kantor-backend/internal/domain"
	"github.com/kantor-dev/kantor-backend/internal/logging"
)

type snapshotStore interface {
	Save(ctx context.Context, snap *domain.RateSnapshot) error
	List(ctx context.Context, limit int) ([]domain.RateSnapshot, error)
}

// Service serves rate snapshots through the TTL cache and keeps a bounded
// archive of every table the provider handed out.
type Service struct {
	cache        *Cache
	snapshots    snapshotStore
	archiveLimit int
}

func NewService(provider Provider, snapshots snapshotStore, ttl time.Duration, archiveLimit int) *Service {
	archiving := &archivingProvider{upstream: provider, snapshots: snapshots}
	return &Service{
		cache:        NewCache(archiving, ttl),
		snapshots:    snapshots,
		archiveLimit: archiveLimit,
	}
}

// Latest returns the most recent snapshot, at most TTL old.
func (s *Service) Latest(ctx context.Context) (*domain.RateSnapshot, error) {
	snap, err := s.cache.Get(ctx, domain.SnapshotKeyLatest)
	if err != nil {
		return nil, fmt.Errorf("Latest: %w", err)
	}
	return snap, nil
}

// ForDate returns the snapshot for an ISO calendar date (e.g. 2026-08-28).
func (s *Service) ForDate(ctx context.Context, date string) (*domain.RateSnapshot, error) {
	snap, err := s.cache.Get(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("ForDate: %w", err)
	}
	return snap, nil
}

// Archive lists stored snapshots, most recent first. Returns
// domain.ErrNotFound when nothing has been archived yet.
func (s *Service) Archive(ctx context.Context) ([]domain.RateSnapshot, error) {
	snaps, err := s.snapshots.List(ctx, s.archiveLimit)
	if err != nil {
		return nil, fmt.Errorf("Archive: %w", err)
	}
	if len(snaps) == 0 {
		return nil, fmt.Errorf("Archive: empty: %w", domain.ErrNotFound)
	}
	return snaps, nil
}

// archivingProvider persists each fresh table under its calendar date before
// handing it to the cache. Archive write failures are logged, not fatal:
// serving rates must not depend on the archive.
type archivingProvider struct {
	upstream  Provider
	snapshots snapshotStore
}

func (p *archivingProvider) FetchTable(ctx context.Context, key string) (*domain.RateSnapshot, error) {
	snap, err := p.upstream.FetchTable(ctx, key)
	if err != nil {
		return nil, err
	}

	archived := *snap
	if key == domain.SnapshotKeyLatest {
		// Key the row by the date the table was published for, so a fetch
		// just after midnight does not split one table across two rows.
		archived.Date = snap.EffectiveDate
	}
	if err := p.snapshots.Save(ctx, &archived); err != nil {
		logging.FromContext(ctx).Warn("failed to archive rate snapshot",
			"date", archived.Date, "error", err)
	}

	return snap, nil
}
