// Package ledger tracks process lifetime notification state: which closed
// candles already produced a one shot finding, and when each market and
// timeframe was last notified. The ledger is owned and mutated by the single
// monitor loop, it is not safe for concurrent use.
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/halver/herald/shared"
)

// seenEvictAfter bounds the one shot seen set. A closed candle can never
// re-close, so entries are only useful within the close grace window of the
// candle they belong to. Anything older than twice the longest tracked period
// can be dropped safely.
const seenEvictAfter = time.Hour * 24 * 60

// seenKey identifies a closed candle that already produced a one shot finding.
type seenKey struct {
	market    string
	timeframe shared.Timeframe
	closedAt  int64
}

// cooldownKey identifies the cooldown state of one market and timeframe.
type cooldownKey struct {
	market    string
	timeframe shared.Timeframe
}

// TimeframeFinding pairs a finding with the timeframe that produced it.
type TimeframeFinding struct {
	Timeframe shared.Timeframe
	Message   string
}

// Ledger tracks one shot dedupe and per timeframe cooldown state. Timestamps
// only move forward, entries are never rolled back within a process lifetime.
type Ledger struct {
	seen         map[seenKey]time.Time
	lastDelivery map[cooldownKey]time.Time
}

// NewLedger initializes a new ledger.
func NewLedger() *Ledger {
	return &Ledger{
		seen:         make(map[seenKey]time.Time),
		lastDelivery: make(map[cooldownKey]time.Time),
	}
}

// FilterPatternFindings drops pattern findings already delivered for the
// provided closed candle and marks the candle seen when findings survive.
// Repeated polls inside a candle's close grace window therefore deliver its
// pattern findings at most once.
func (l *Ledger) FilterPatternFindings(market string, timeframe shared.Timeframe, closedAt time.Time, findings []string, now time.Time) []string {
	if len(findings) == 0 {
		return findings
	}

	key := seenKey{
		market:    market,
		timeframe: timeframe,
		closedAt:  closedAt.UTC().Unix(),
	}

	if _, ok := l.seen[key]; ok {
		return nil
	}

	l.seen[key] = now
	l.evictSeen(now)

	return findings
}

// evictSeen drops seen entries old enough that their candle's grace window
// has long passed, bounding ledger growth for dynamic market universes.
func (l *Ledger) evictSeen(now time.Time) {
	for key, insertedAt := range l.seen {
		if now.Sub(insertedAt) > seenEvictAfter {
			delete(l.seen, key)
		}
	}
}

// ApplyCooldown keeps only findings whose market and timeframe are past their
// cooldown, tagging each surviving message with its timeframe. It returns the
// surviving messages and the timeframes they cover, the caller must record a
// delivery for those timeframes after attempting the send.
func (l *Ledger) ApplyCooldown(market string, findings []TimeframeFinding, now time.Time) ([]string, []shared.Timeframe) {
	allowed := make([]string, 0, len(findings))
	timeframes := make([]shared.Timeframe, 0, len(findings))
	included := make(map[shared.Timeframe]bool)

	for idx := range findings {
		timeframe := findings[idx].Timeframe

		key := cooldownKey{market: market, timeframe: timeframe}
		last, ok := l.lastDelivery[key]
		if ok && now.Sub(last) < timeframe.Cooldown() {
			continue
		}

		tag := strings.ToUpper(timeframe.String())
		allowed = append(allowed, fmt.Sprintf("[%s] %s", tag, findings[idx].Message))

		if !included[timeframe] {
			included[timeframe] = true
			timeframes = append(timeframes, timeframe)
		}
	}

	return allowed, timeframes
}

// RecordDelivery records the provided time as the last delivery for every
// given timeframe of the market. The cooldown applies per timeframe, not per
// message, so multiple findings for one timeframe share a single update.
func (l *Ledger) RecordDelivery(market string, timeframes []shared.Timeframe, now time.Time) {
	for _, timeframe := range timeframes {
		key := cooldownKey{market: market, timeframe: timeframe}
		l.lastDelivery[key] = now
	}
}
