package rates

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kantor-dev/kantor-backend/internal/domain"
)

type stubProvider struct {
	mu    sync.Mutex
	calls atomic.Int64
	delay time.Duration
	err   error
}

func (p *stubProvider) FetchTable(ctx context.Context, key string) (*domain.RateSnapshot, error) {
	p.calls.Add(1)
	if p.delay > 0 {
		time.Sleep(p.delay)
	}

	p.mu.Lock()
	err := p.err
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return &domain.RateSnapshot{
		Date:          key,
		EffectiveDate: "2026-08-28",
		Rates: map[domain.Currency]decimal.Decimal{
			domain.CurrencyUSD: decimal.NewFromFloat(4.02),
			domain.CurrencyPLN: decimal.NewFromInt(1),
		},
		FetchedAt: time.Now().UTC(),
	}, nil
}

func (p *stubProvider) setErr(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func TestCacheHitWithinTTL(t *testing.T) {
	provider := &stubProvider{}
	cache := NewCache(provider, time.Hour)
	ctx := context.Background()

	first, err := cache.Get(ctx, domain.SnapshotKeyLatest)
	require.NoError(t, err)

	second, err := cache.Get(ctx, domain.SnapshotKeyLatest)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int64(1), provider.calls.Load())
}

func TestCacheKeysAreIndependent(t *testing.T) {
	provider := &stubProvider{}
	cache := NewCache(provider, time.Hour)
	ctx := context.Background()

	_, err := cache.Get(ctx, domain.SnapshotKeyLatest)
	require.NoError(t, err)
	_, err = cache.Get(ctx, "2026-08-27")
	require.NoError(t, err)

	assert.Equal(t, int64(2), provider.calls.Load())
}

func TestCacheExpiry(t *testing.T) {
	provider := &stubProvider{}
	cache := NewCache(provider, time.Hour)
	ctx := context.Background()

	now := time.Now()
	cache.now = func() time.Time { return now }

	_, err := cache.Get(ctx, domain.SnapshotKeyLatest)
	require.NoError(t, err)

	// Just inside the TTL: still served from cache.
	now = now.Add(59 * time.Minute)
	_, err = cache.Get(ctx, domain.SnapshotKeyLatest)
	require.NoError(t, err)
	assert.Equal(t, int64(1), provider.calls.Load())

	// Past the TTL: refetched.
	now = now.Add(2 * time.Minute)
	_, err = cache.Get(ctx, domain.SnapshotKeyLatest)
	require.NoError(t, err)
	assert.Equal(t, int64(2), provider.calls.Load())
}

func TestConcurrentGetsCoalesce(t *testing.T) {
	provider := &stubProvider{delay: 50 * time.Millisecond}
	cache := NewCache(provider, time.Hour)
	ctx := context.Background()

	const callers = 10
	snapshots := make([]*domain.RateSnapshot, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snapshots[i], errs[i] = cache.Get(ctx, domain.SnapshotKeyLatest)
		}()
	}
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
	}

	assert.Equal(t, int64(1), provider.calls.Load(), "cold concurrent gets must issue one fetch")
	for i := 1; i < callers; i++ {
		assert.Same(t, snapshots[0], snapshots[i], "all callers must observe the same snapshot")
	}
}

func TestFailedFetchIsNotCached(t *testing.T) {
	provider := &stubProvider{}
	provider.setErr(errors.New("connection refused"))
	cache := NewCache(provider, time.Hour)
	ctx := context.Background()

	_, err := cache.Get(ctx, domain.SnapshotKeyLatest)
	require.ErrorIs(t, err, domain.ErrRateUnavailable)

	// Provider recovers; the next call must fetch again, not replay the failure.
	provider.setErr(nil)
	snap, err := cache.Get(ctx, domain.SnapshotKeyLatest)
	require.NoError(t, err)
	assert.Equal(t, "2026-08-28", snap.EffectiveDate)
	assert.Equal(t, int64(2), provider.calls.Load())
}

func TestNotFoundPassesThrough(t *testing.T) {
	provider := &stubProvider{}
	provider.setErr(fmt.Errorf("no table: %w", domain.ErrNotFound))
	cache := NewCache(provider, time.Hour)

	_, err := cache.Get(context.Background(), "2026-08-30")
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.NotErrorIs(t, err, domain.ErrRateUnavailable)
}
