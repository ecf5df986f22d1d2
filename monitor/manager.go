package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"github.com/halver/herald/ledger"
	"github.com/halver/herald/rules"
	"github.com/halver/herald/shared"
	"github.com/rs/zerolog"
)

const (
	// bufferSize is the default buffer size for channels.
	bufferSize = 64
)

// ManagerConfig represents the configuration for the monitor manager.
type ManagerConfig struct {
	// Markets represents the tracked markets.
	Markets []string
	// Timeframes represents the tracked timeframes for the pattern pass.
	Timeframes []shared.Timeframe
	// PriceTimeframe is the canonical timeframe for the price pass.
	PriceTimeframe shared.Timeframe
	// Rules represents the registered alert rules.
	Rules *rules.Set
	// Ledger tracks dedupe and cooldown state. The manager is its sole owner.
	Ledger *ledger.Ledger
	// Fetcher represents the live price feed.
	Fetcher shared.PriceFetcher
	// Store represents the indicator store.
	Store shared.CandleStore
	// Notifier represents the notification channel.
	Notifier shared.Notifier
	// PatternInterval is the cadence of the pattern pass.
	PatternInterval time.Duration
	// PriceInterval is the cadence of the price pass.
	PriceInterval time.Duration
	// CloseGrace is the window after a candle close in which the pattern
	// pass evaluates a timeframe.
	CloseGrace time.Duration
	// RefreshRetryDelay is the wait before refetching after a refresh.
	RefreshRetryDelay time.Duration
	// MarketDelay is the wait between markets within a pass.
	MarketDelay time.Duration
	// TimeframeDelay is the wait between timeframes within a market.
	TimeframeDelay time.Duration
	// JobScheduler represents the job scheduler driving pass cadences.
	JobScheduler *gocron.Scheduler
	// Now returns the current time, in utc.
	Now func() time.Time
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *ManagerConfig) Validate() error {
	var errs error

	if len(cfg.Markets) == 0 {
		errs = errors.Join(errs, fmt.Errorf("no markets provided for monitor"))
	}
	if len(cfg.Timeframes) == 0 {
		errs = errors.Join(errs, fmt.Errorf("no timeframes provided for monitor"))
	}
	if cfg.Rules == nil {
		errs = errors.Join(errs, fmt.Errorf("rule set cannot be nil"))
	}
	if cfg.Ledger == nil {
		errs = errors.Join(errs, fmt.Errorf("ledger cannot be nil"))
	}
	if cfg.Fetcher == nil {
		errs = errors.Join(errs, fmt.Errorf("price fetcher cannot be nil"))
	}
	if cfg.Store == nil {
		errs = errors.Join(errs, fmt.Errorf("candle store cannot be nil"))
	}
	if cfg.Notifier == nil {
		errs = errors.Join(errs, fmt.Errorf("notifier cannot be nil"))
	}
	if cfg.PatternInterval <= 0 {
		errs = errors.Join(errs, fmt.Errorf("pattern interval must be positive"))
	}
	if cfg.PriceInterval <= 0 {
		errs = errors.Join(errs, fmt.Errorf("price interval must be positive"))
	}
	if cfg.CloseGrace <= 0 {
		errs = errors.Join(errs, fmt.Errorf("close grace window must be positive"))
	}
	if cfg.JobScheduler == nil {
		errs = errors.Join(errs, fmt.Errorf("job scheduler cannot be nil"))
	}
	if cfg.Now == nil {
		errs = errors.Join(errs, fmt.Errorf("now function cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Manager runs the two polling passes, a fast pattern pass evaluating
// timeframes inside their close grace window and a slower price pass
// evaluating live price rules on the canonical timeframe. Both passes are
// processed sequentially on one control loop, so the ledger needs no locking.
type Manager struct {
	cfg            *ManagerConfig
	guard          *Guard
	patternSignals chan struct{}
	priceSignals   chan struct{}
}

// NewManager initializes the monitor manager and registers its pass jobs on
// the provided scheduler.
func NewManager(cfg *ManagerConfig) (*Manager, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating monitor config: %w", err)
	}

	guard, err := NewGuard(&GuardConfig{
		Store:      cfg.Store,
		RetryDelay: cfg.RefreshRetryDelay,
		Now:        cfg.Now,
		Logger:     cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating freshness guard: %w", err)
	}

	mgr := &Manager{
		cfg:            cfg,
		guard:          guard,
		patternSignals: make(chan struct{}, bufferSize),
		priceSignals:   make(chan struct{}, bufferSize),
	}

	_, err = cfg.JobScheduler.Every(cfg.PatternInterval).Do(mgr.SignalPatternPass)
	if err != nil {
		return nil, fmt.Errorf("scheduling pattern pass: %w", err)
	}

	_, err = cfg.JobScheduler.Every(cfg.PriceInterval).Do(mgr.SignalPricePass)
	if err != nil {
		return nil, fmt.Errorf("scheduling price pass: %w", err)
	}

	return mgr, nil
}

// SignalPatternPass queues a pattern pass for processing.
func (m *Manager) SignalPatternPass() {
	select {
	case m.patternSignals <- struct{}{}:
		// do nothing.
	default:
		m.cfg.Logger.Error().Msgf("pattern pass channel at capacity: %d/%d",
			len(m.patternSignals), bufferSize)
	}
}

// SignalPricePass queues a price pass for processing.
func (m *Manager) SignalPricePass() {
	select {
	case m.priceSignals <- struct{}{}:
		// do nothing.
	default:
		m.cfg.Logger.Error().Msgf("price pass channel at capacity: %d/%d",
			len(m.priceSignals), bufferSize)
	}
}

// fetchLive fetches the live snapshot, degrading feed errors to absent.
func (m *Manager) fetchLive(ctx context.Context, market string, timeframe shared.Timeframe) *shared.LiveSnapshot {
	snapshot, err := m.cfg.Fetcher.FetchLive(ctx, market, timeframe)
	if err != nil {
		m.cfg.Logger.Warn().Msgf("fetching live snapshot for %s %s: %v", market, timeframe.String(), err)
		return nil
	}

	return snapshot
}

// deliver sends the consolidated findings for a market and records the
// delivery for the covered timeframes. Delivery failures are logged, not
// propagated, the cooldown still advances to honor at most one acted on
// evaluation per window.
func (m *Manager) deliver(ctx context.Context, market string, messages []string, timeframes []shared.Timeframe, currentPrice float64, now time.Time) {
	err := m.cfg.Notifier.SendConsolidated(ctx, market, messages, currentPrice)
	if err != nil {
		m.cfg.Logger.Error().Msgf("delivering findings for %s: %v", market, err)
	}

	m.cfg.Ledger.RecordDelivery(market, timeframes, now)
}

// handlePatternPass evaluates pattern rules for every market on timeframes
// currently inside their close grace window.
func (m *Manager) handlePatternPass(ctx context.Context) {
	logger := m.cfg.Logger.With().Str("pass", "pattern").Str("run", uuid.NewString()).Logger()

	kinds := rules.Needs(m.cfg.Rules.PatternRules())

	for _, market := range m.cfg.Markets {
		err := m.processMarketPatterns(ctx, &logger, market, kinds)
		if err != nil {
			logger.Error().Msgf("processing %s: %v", market, err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(m.cfg.MarketDelay):
		}
	}
}

// processMarketPatterns batches pattern findings for one market across all
// qualifying timeframes and hands survivors to the notifier as one message.
func (m *Manager) processMarketPatterns(ctx context.Context, logger *zerolog.Logger, market string, kinds shared.IndicatorKindSet) error {
	batch := make([]ledger.TimeframeFinding, 0, len(m.cfg.Timeframes))
	var currentPrice float64

	for _, timeframe := range m.cfg.Timeframes {
		if !timeframe.WithinCloseGrace(m.cfg.Now(), m.cfg.CloseGrace) {
			continue
		}

		candle := m.guard.EnsureClosed(ctx, market, timeframe, kinds)
		if candle == nil {
			continue
		}

		snapshot := m.fetchLive(ctx, market, timeframe)
		if snapshot == nil {
			time.Sleep(m.cfg.TimeframeDelay)
			continue
		}

		if currentPrice == 0 {
			currentPrice = snapshot.Close
		}

		findings := m.cfg.Rules.Run(m.cfg.Rules.PatternRules(), snapshot, candle)
		findings = m.cfg.Ledger.FilterPatternFindings(market, timeframe, candle.Timestamp, findings, m.cfg.Now())

		for _, finding := range findings {
			logger.Info().Msgf("finding for %s %s: %s", market, timeframe.String(), finding)
			batch = append(batch, ledger.TimeframeFinding{Timeframe: timeframe, Message: finding})
		}

		time.Sleep(m.cfg.TimeframeDelay)
	}

	if len(batch) == 0 {
		return nil
	}

	now := m.cfg.Now()
	messages, timeframes := m.cfg.Ledger.ApplyCooldown(market, batch, now)
	if len(messages) == 0 {
		return nil
	}

	m.deliver(ctx, market, messages, timeframes, currentPrice, now)

	return nil
}

// handlePricePass evaluates price level rules for every market on the
// canonical timeframe.
func (m *Manager) handlePricePass(ctx context.Context) {
	logger := m.cfg.Logger.With().Str("pass", "price").Str("run", uuid.NewString()).Logger()

	kinds := rules.Needs(m.cfg.Rules.PriceRules())

	for _, market := range m.cfg.Markets {
		err := m.processMarketPrice(ctx, &logger, market, kinds)
		if err != nil {
			logger.Error().Msgf("processing %s: %v", market, err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(m.cfg.MarketDelay):
		}
	}
}

// processMarketPrice evaluates price rules for one market on the canonical
// timeframe and hands survivors to the notifier as one message.
func (m *Manager) processMarketPrice(ctx context.Context, logger *zerolog.Logger, market string, kinds shared.IndicatorKindSet) error {
	timeframe := m.cfg.PriceTimeframe

	candle := m.guard.EnsureClosed(ctx, market, timeframe, kinds)
	if candle == nil {
		return nil
	}

	logger.Debug().Msgf("evaluating price rules against candle: %s", spew.Sdump(candle))

	snapshot := m.fetchLive(ctx, market, timeframe)
	if snapshot == nil {
		return nil
	}

	findings := m.cfg.Rules.Run(m.cfg.Rules.PriceRules(), snapshot, candle)
	if len(findings) == 0 {
		return nil
	}

	batch := make([]ledger.TimeframeFinding, 0, len(findings))
	for _, finding := range findings {
		logger.Info().Msgf("finding for %s %s: %s", market, timeframe.String(), finding)
		batch = append(batch, ledger.TimeframeFinding{Timeframe: timeframe, Message: finding})
	}

	now := m.cfg.Now()
	messages, timeframes := m.cfg.Ledger.ApplyCooldown(market, batch, now)
	if len(messages) == 0 {
		return nil
	}

	m.deliver(ctx, market, messages, timeframes, snapshot.Close, now)

	return nil
}

// Run manages the lifecycle processes of the monitor manager. Pass signals
// are processed one at a time, keeping all ledger mutations on this loop.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.patternSignals:
			m.handlePatternPass(ctx)
		case <-m.priceSignals:
			m.handlePricePass(ctx)
		}
	}
}
