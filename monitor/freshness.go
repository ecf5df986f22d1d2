package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/halver/herald/shared"
	"github.com/rs/zerolog"
)

// GuardConfig represents the configuration for the data freshness guard.
type GuardConfig struct {
	// Store represents the indicator store.
	Store shared.CandleStore
	// RetryDelay is the wait between a refresh request and the refetch,
	// allowing asynchronous recomputation to land.
	RetryDelay time.Duration
	// Now returns the current time, in utc.
	Now func() time.Time
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *GuardConfig) Validate() error {
	var errs error

	if cfg.Store == nil {
		errs = errors.Join(errs, fmt.Errorf("candle store cannot be nil"))
	}
	if cfg.Now == nil {
		errs = errors.Join(errs, fmt.Errorf("now function cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Guard decides whether a stored closed candle is usable for rule evaluation
// and drives a refresh and retry sequence against the indicator store when it
// is missing or stale.
type Guard struct {
	cfg *GuardConfig
}

// NewGuard initializes a new data freshness guard.
func NewGuard(cfg *GuardConfig) (*Guard, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating guard config: %w", err)
	}

	return &Guard{cfg: cfg}, nil
}

// stale reports whether the candle's age exceeds its timeframe's staleness
// threshold.
func (g *Guard) stale(candle *shared.ClosedCandle) bool {
	age := g.cfg.Now().UTC().Sub(candle.Timestamp)
	return age > candle.Timeframe.StaleAfter()
}

// fetch fetches the latest closed candle, degrading store errors to absent.
func (g *Guard) fetch(ctx context.Context, market string, timeframe shared.Timeframe, kinds shared.IndicatorKindSet) *shared.ClosedCandle {
	candle, err := g.cfg.Store.FetchClosed(ctx, market, timeframe, kinds)
	if err != nil {
		g.cfg.Logger.Error().Msgf("fetching closed candle for %s %s: %v", market, timeframe.String(), err)
		return nil
	}

	return candle
}

// refreshAndRefetch triggers a refresh for the market and timeframe, waits
// briefly for recomputation and fetches once more.
func (g *Guard) refreshAndRefetch(ctx context.Context, market string, timeframe shared.Timeframe, kinds shared.IndicatorKindSet) *shared.ClosedCandle {
	g.cfg.Store.RequestRefresh(ctx, market, timeframe)
	time.Sleep(g.cfg.RetryDelay)

	return g.fetch(ctx, market, timeframe, kinds)
}

// EnsureClosed returns a usable closed candle for the market and timeframe,
// or nil when none is available. Missing data triggers one refresh and retry
// cycle, a stale result triggers one more. A nil result is expected during
// transient indicator store unavailability, callers skip the market and
// timeframe for the current pass and retry on the next poll.
func (g *Guard) EnsureClosed(ctx context.Context, market string, timeframe shared.Timeframe, kinds shared.IndicatorKindSet) *shared.ClosedCandle {
	candle := g.fetch(ctx, market, timeframe, kinds)
	if candle == nil {
		g.cfg.Logger.Warn().Msgf("no closed candle for %s %s, triggering refresh", market, timeframe.String())
		candle = g.refreshAndRefetch(ctx, market, timeframe, kinds)
		if candle == nil {
			g.cfg.Logger.Error().Msgf("still no closed candle for %s %s", market, timeframe.String())
			return nil
		}
	}

	if g.stale(candle) {
		g.cfg.Logger.Warn().Msgf("closed candle for %s %s is stale, triggering refresh", market, timeframe.String())
		candle = g.refreshAndRefetch(ctx, market, timeframe, kinds)
		if candle == nil || g.stale(candle) {
			g.cfg.Logger.Error().Msgf("closed candle for %s %s still stale", market, timeframe.String())
			return nil
		}
	}

	return candle
}
