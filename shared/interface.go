package shared

import "context"

// PriceFetcher defines the requirements for fetching live market data.
type PriceFetcher interface {
	// FetchLive fetches the most recent interval's snapshot for the market.
	FetchLive(ctx context.Context, market string, timeframe Timeframe) (*LiveSnapshot, error)
}

// CandleStore defines the requirements for fetching closed candles with their
// precomputed indicators.
type CandleStore interface {
	// FetchClosed fetches the latest closed candle for the market and
	// timeframe, populating only the indicator kinds requested. A nil candle
	// with a nil error means no data is available.
	FetchClosed(ctx context.Context, market string, timeframe Timeframe, kinds IndicatorKindSet) (*ClosedCandle, error)
	// RequestRefresh triggers recomputation of the market and timeframe.
	// Success only means the request was accepted, not completed.
	RequestRefresh(ctx context.Context, market string, timeframe Timeframe) bool
}

// Notifier defines the requirements for delivering consolidated findings.
type Notifier interface {
	// SendConsolidated delivers one consolidated message for the market.
	SendConsolidated(ctx context.Context, market string, findings []string, currentPrice float64) error
}
