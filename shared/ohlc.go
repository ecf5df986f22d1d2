package shared

import "time"

// PivotLevelNames is the canonical scan order for named pivot levels. Rules
// iterate levels in this order and stop at the first match.
var PivotLevelNames = []string{"PP", "R1", "R2", "R3", "R4", "R5", "S1", "S2", "S3", "S4", "S5"}

// EMAPeriods is the ordered set of tracked exponential moving average periods.
var EMAPeriods = []int{50, 200}

// LiveSnapshot represents the most recent, possibly still forming interval of
// one market and timeframe. Its close is treated as the current live price.
// It is fetched fresh on every poll and never persisted.
type LiveSnapshot struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// OBVIndicator holds precomputed on-balance volume values for a closed candle.
type OBVIndicator struct {
	OBV       float64
	MAValue   float64
	UpperBand float64
	LowerBand float64
}

// ChandelierExit holds precomputed chandelier exit values for a closed candle.
type ChandelierExit struct {
	ATR        float64
	LongStop   float64
	ShortStop  float64
	Direction  string
	BuySignal  bool
	SellSignal bool
}

// IndicatorBundle maps indicator names to their precomputed values for one
// closed candle. A nil map or pointer means the indicator is absent, which
// rules treat as "does not apply" rather than an error.
type IndicatorBundle struct {
	// Pivot maps named pivot levels (PP, R1..R5, S1..S5) to prices.
	Pivot map[string]float64
	// EMA maps moving average periods to values.
	EMA map[int]float64
	// RSI is the relative strength index value, if computed.
	RSI *float64
	// OBV is the on-balance volume payload, if computed.
	OBV *OBVIndicator
	// CE is the chandelier exit payload, if computed.
	CE *ChandelierExit
}

// ClosedCandle represents the last fully closed candle for one market and
// timeframe with its precomputed indicators attached. It is owned by the
// indicator store and treated as read-only once fetched.
type ClosedCandle struct {
	Market    string
	Timeframe Timeframe
	// Timestamp is the candle close time in UTC.
	Timestamp time.Time

	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64

	// Pattern is the classified candlestick pattern label, if any.
	Pattern string

	Indicators IndicatorBundle
}
