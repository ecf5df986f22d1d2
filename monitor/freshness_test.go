package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/halver/herald/shared"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog/log"
)

// sequenceStore returns queued fetch results in order, repeating the last
// one, and counts refresh requests.
type sequenceStore struct {
	results   []*shared.ClosedCandle
	fetches   int
	refreshes int
}

func (s *sequenceStore) FetchClosed(_ context.Context, _ string, _ shared.Timeframe, _ shared.IndicatorKindSet) (*shared.ClosedCandle, error) {
	idx := s.fetches
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	s.fetches++

	if len(s.results) == 0 {
		return nil, nil
	}

	return s.results[idx], nil
}

func (s *sequenceStore) RequestRefresh(_ context.Context, _ string, _ shared.Timeframe) bool {
	s.refreshes++
	return true
}

func setupGuard(t *testing.T, store shared.CandleStore, now time.Time) *Guard {
	guard, err := NewGuard(&GuardConfig{
		Store:      store,
		RetryDelay: 0,
		Now:        func() time.Time { return now },
		Logger:     &log.Logger,
	})
	assert.NoError(t, err)

	return guard
}

func TestEnsureClosedFreshCandle(t *testing.T) {
	now := time.Date(2025, time.March, 12, 14, 0, 30, 0, time.UTC)
	fresh := &shared.ClosedCandle{
		Market:    "BTCUSDT",
		Timeframe: shared.OneHour,
		Timestamp: now.Add(-time.Minute * 30),
	}

	store := &sequenceStore{results: []*shared.ClosedCandle{fresh}}
	guard := setupGuard(t, store, now)

	// Ensure a fresh candle passes through without triggering a refresh.
	candle := guard.EnsureClosed(context.Background(), "BTCUSDT", shared.OneHour, 0)
	assert.NotNil(t, candle)
	assert.Equal(t, store.refreshes, 0)
	assert.Equal(t, store.fetches, 1)
}

func TestEnsureClosedMissingCandle(t *testing.T) {
	now := time.Date(2025, time.March, 12, 14, 0, 30, 0, time.UTC)

	// Ensure missing data triggers exactly one refresh and retry cycle
	// before giving up.
	store := &sequenceStore{results: []*shared.ClosedCandle{nil}}
	guard := setupGuard(t, store, now)

	candle := guard.EnsureClosed(context.Background(), "BTCUSDT", shared.OneHour, 0)
	assert.Nil(t, candle)
	assert.Equal(t, store.refreshes, 1)
	assert.Equal(t, store.fetches, 2)

	// Ensure data appearing after the refresh is returned.
	fresh := &shared.ClosedCandle{
		Market:    "BTCUSDT",
		Timeframe: shared.OneHour,
		Timestamp: now.Add(-time.Minute * 30),
	}
	recoveringStore := &sequenceStore{results: []*shared.ClosedCandle{nil, fresh}}
	guard = setupGuard(t, recoveringStore, now)

	candle = guard.EnsureClosed(context.Background(), "BTCUSDT", shared.OneHour, 0)
	assert.NotNil(t, candle)
	assert.Equal(t, recoveringStore.refreshes, 1)
}

func TestEnsureClosedStaleCandle(t *testing.T) {
	now := time.Date(2025, time.March, 12, 14, 0, 30, 0, time.UTC)

	// A candle older than twice the timeframe period is stale.
	stale := &shared.ClosedCandle{
		Market:    "BTCUSDT",
		Timeframe: shared.OneHour,
		Timestamp: now.Add(-shared.OneHour.Period() * 3),
	}

	// Ensure a persistently stale candle triggers exactly one refresh and
	// retry cycle before giving up.
	store := &sequenceStore{results: []*shared.ClosedCandle{stale}}
	guard := setupGuard(t, store, now)

	candle := guard.EnsureClosed(context.Background(), "BTCUSDT", shared.OneHour, 0)
	assert.Nil(t, candle)
	assert.Equal(t, store.refreshes, 1)
	assert.Equal(t, store.fetches, 2)

	// Ensure a refresh that lands a fresh candle recovers.
	fresh := &shared.ClosedCandle{
		Market:    "BTCUSDT",
		Timeframe: shared.OneHour,
		Timestamp: now.Add(-time.Minute * 30),
	}
	recoveringStore := &sequenceStore{results: []*shared.ClosedCandle{stale, fresh}}
	guard = setupGuard(t, recoveringStore, now)

	candle = guard.EnsureClosed(context.Background(), "BTCUSDT", shared.OneHour, 0)
	assert.NotNil(t, candle)
	assert.Equal(t, recoveringStore.refreshes, 1)
	assert.Equal(t, candle.Timestamp, fresh.Timestamp)
}
