package rules

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/halver/herald/shared"
	"github.com/rs/zerolog"
)

const (
	// DojiFindingMessage is the fixed finding emitted by the doji pattern rule.
	DojiFindingMessage = "Doji candle pattern on last closed candle"
	// dojiPatternLabel is the classified pattern label the doji rule matches.
	dojiPatternLabel = "DOJI"
	// priceFormat is the display format for price values in findings.
	priceFormat = "#,###.##"
)

// PivotTimeframe is the canonical timeframe pivot proximity is evaluated on.
const PivotTimeframe = shared.OneHour

// emaTimeframes is the subset of timeframes the ema rule applies to.
var emaTimeframes = []shared.Timeframe{shared.OneHour, shared.FourHour, shared.OneDay, shared.OneMonth}

// Rule represents a single alert condition. Eval must not mutate its inputs
// and must treat absent indicators as "rule does not apply" rather than an
// error.
type Rule struct {
	// Name identifies the rule in logs.
	Name string
	// Needs declares the indicator kinds the rule reads, so callers can fetch
	// exactly the indicators an evaluation requires.
	Needs shared.IndicatorKindSet
	// Eval evaluates the rule against a live snapshot and a closed candle,
	// returning a finding and whether the condition fired.
	Eval func(snapshot *shared.LiveSnapshot, candle *shared.ClosedCandle) (string, bool)
}

// SetConfig represents the configuration for a rule set.
type SetConfig struct {
	// PivotThreshold is the maximum relative distance to a pivot level.
	PivotThreshold float64
	// EMATolerance is the maximum relative distance to an ema value.
	EMATolerance float64
	// CloseGrace is the window after a candle close in which pattern rules
	// may fire.
	CloseGrace time.Duration
	// Now returns the current time, in utc.
	Now func() time.Time
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *SetConfig) Validate() error {
	var errs error

	if cfg.PivotThreshold <= 0 {
		errs = errors.Join(errs, fmt.Errorf("pivot threshold must be positive"))
	}
	if cfg.EMATolerance <= 0 {
		errs = errors.Join(errs, fmt.Errorf("ema tolerance must be positive"))
	}
	if cfg.CloseGrace <= 0 {
		errs = errors.Join(errs, fmt.Errorf("close grace window must be positive"))
	}
	if cfg.Now == nil {
		errs = errors.Join(errs, fmt.Errorf("now function cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Set represents the registered alert rules, split into price rules evaluated
// on every price pass and pattern rules evaluated only at candle close.
type Set struct {
	cfg     *SetConfig
	price   []Rule
	pattern []Rule
}

// NewSet initializes a new rule set.
func NewSet(cfg *SetConfig) (*Set, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating rule set config: %w", err)
	}

	set := &Set{
		cfg: cfg,
	}

	set.price = []Rule{
		{
			Name:  "pivotproximity",
			Needs: shared.NewIndicatorKindSet(shared.IndicatorPivot),
			Eval:  set.evaluatePivotProximity,
		},
		{
			Name:  "emaproximity",
			Needs: shared.NewIndicatorKindSet(shared.IndicatorEMA),
			Eval:  set.evaluateEMAProximity,
		},
	}

	set.pattern = []Rule{
		{
			Name:  "dojipattern",
			Needs: shared.NewIndicatorKindSet(shared.IndicatorPattern),
			Eval:  set.evaluateDojiPattern,
		},
	}

	return set, nil
}

// PriceRules returns the price level rules in registration order.
func (s *Set) PriceRules() []Rule {
	return s.price
}

// PatternRules returns the candle pattern rules in registration order.
func (s *Set) PatternRules() []Rule {
	return s.pattern
}

// formatPrice renders the provided price for display in a finding.
func formatPrice(price float64) string {
	return "$" + humanize.FormatFloat(priceFormat, price)
}

// evaluatePivotProximity fires when the live close is within the configured
// relative threshold of a named pivot level. Only the canonical timeframe is
// evaluated, and only the first matching level in scan order is reported.
func (s *Set) evaluatePivotProximity(snapshot *shared.LiveSnapshot, candle *shared.ClosedCandle) (string, bool) {
	if snapshot == nil || candle == nil {
		return "", false
	}

	if candle.Timeframe != PivotTimeframe {
		return "", false
	}

	pivot := candle.Indicators.Pivot
	if len(pivot) == 0 {
		return "", false
	}

	threshold := s.cfg.PivotThreshold
	percent := int(threshold * 100)

	for _, name := range shared.PivotLevelNames {
		level, ok := pivot[name]
		if !ok || level <= 0 {
			continue
		}

		distance := math.Abs(snapshot.Close-level) / math.Abs(level)
		if distance <= threshold {
			return fmt.Sprintf("Price within %d%% of %s at %s", percent, name, formatPrice(level)), true
		}
	}

	return "", false
}

// evaluateEMAProximity fires when the live close is within the configured
// tolerance of a tracked ema value. The first qualifying period in order ends
// the scan, later periods are not checked once one matches.
func (s *Set) evaluateEMAProximity(snapshot *shared.LiveSnapshot, candle *shared.ClosedCandle) (string, bool) {
	if snapshot == nil || candle == nil {
		return "", false
	}

	var applies bool
	for _, timeframe := range emaTimeframes {
		if candle.Timeframe == timeframe {
			applies = true
			break
		}
	}
	if !applies {
		return "", false
	}

	ema := candle.Indicators.EMA
	if len(ema) == 0 {
		return "", false
	}

	for _, period := range shared.EMAPeriods {
		value, ok := ema[period]
		if !ok || value <= 0 {
			continue
		}

		distance := math.Abs(snapshot.Close-value) / math.Abs(value)
		if distance > s.cfg.EMATolerance {
			continue
		}

		touched := snapshot.Low <= value && value <= snapshot.High
		percent := int(s.cfg.EMATolerance * 100)

		switch {
		case touched && snapshot.Close > value:
			return fmt.Sprintf("Price touched and is above EMA%d", period), true
		case touched && snapshot.Close < value:
			return fmt.Sprintf("Price touched and is below EMA%d", period), true
		case touched:
			return fmt.Sprintf("Price touched EMA%d", period), true
		case snapshot.Close > value:
			return fmt.Sprintf("Price above EMA%d (within %d%%)", period, percent), true
		case snapshot.Close < value:
			return fmt.Sprintf("Price below EMA%d (within %d%%)", period, percent), true
		default:
			return fmt.Sprintf("Price within %d%% of EMA%d at %s", percent, period, formatPrice(value)), true
		}
	}

	return "", false
}

// evaluateDojiPattern fires when the candle that just closed carries a doji
// pattern label. The rule only applies inside the close grace window so stale
// evaluations cannot re-fire on old candles.
func (s *Set) evaluateDojiPattern(_ *shared.LiveSnapshot, candle *shared.ClosedCandle) (string, bool) {
	if candle == nil {
		return "", false
	}

	age := s.cfg.Now().UTC().Sub(candle.Timestamp)
	if age < 0 || age > s.cfg.CloseGrace {
		return "", false
	}

	pattern := strings.TrimSpace(candle.Pattern)
	if !strings.EqualFold(pattern, dojiPatternLabel) {
		return "", false
	}

	return DojiFindingMessage, true
}
