package shared

import (
	"fmt"
	"time"
)

// Timeframe represents the candle period of tracked market data.
type Timeframe int

const (
	OneHour Timeframe = iota
	FourHour
	OneDay
	OneWeek
	OneMonth
)

const (
	// defaultStaleAfter is the staleness threshold applied to unknown timeframes.
	defaultStaleAfter = time.Hour * 2
	// defaultCooldown is the notification cooldown applied to unknown timeframes.
	defaultCooldown = time.Hour * 24
)

// Timeframes is the collection of all supported timeframes, ordered by period.
var Timeframes = []Timeframe{OneHour, FourHour, OneDay, OneWeek, OneMonth}

// String stringifies the provided timeframe.
func (t Timeframe) String() string {
	switch t {
	case OneHour:
		return "1h"
	case FourHour:
		return "4h"
	case OneDay:
		return "1d"
	case OneWeek:
		return "1w"
	case OneMonth:
		return "1M"
	default:
		return "unknown"
	}
}

// ParseTimeframe parses a timeframe from its string form.
func ParseTimeframe(timeframe string) (Timeframe, error) {
	switch timeframe {
	case "1h":
		return OneHour, nil
	case "4h":
		return FourHour, nil
	case "1d":
		return OneDay, nil
	case "1w":
		return OneWeek, nil
	case "1M":
		return OneMonth, nil
	default:
		return 0, fmt.Errorf("unknown timeframe provided: %s", timeframe)
	}
}

// Period returns the nominal duration of one candle for the timeframe. A month
// is approximated at thirty days, it is only used for relative bounds, never
// for candle close boundaries.
func (t Timeframe) Period() time.Duration {
	switch t {
	case OneHour:
		return time.Hour
	case FourHour:
		return time.Hour * 4
	case OneDay:
		return time.Hour * 24
	case OneWeek:
		return time.Hour * 24 * 7
	case OneMonth:
		return time.Hour * 24 * 30
	default:
		return time.Hour
	}
}

// StaleAfter returns the maximum tolerated age of the latest closed candle for
// the timeframe. The latest closed candle is expected to lag real time by up
// to one period, so the threshold is roughly twice the period.
func (t Timeframe) StaleAfter() time.Duration {
	switch t {
	case OneHour:
		return time.Hour * 2
	case FourHour:
		return time.Hour * 8
	case OneDay:
		return time.Hour * 48
	case OneWeek:
		return time.Hour * 24 * 14
	case OneMonth:
		return time.Hour * 24 * 60
	default:
		return defaultStaleAfter
	}
}

// Cooldown returns the minimum interval between notifications for one market
// on the timeframe. Longer timeframes signal slower and get longer cooldowns.
func (t Timeframe) Cooldown() time.Duration {
	switch t {
	case OneHour:
		return time.Hour * 4
	case FourHour:
		return time.Hour * 24
	case OneDay:
		return time.Hour * 48
	case OneWeek:
		return time.Hour * 24 * 7
	case OneMonth:
		return time.Hour * 24 * 30
	default:
		return defaultCooldown
	}
}

// LastClose returns the close time (UTC) of the candle that most recently
// closed for the timeframe.
func (t Timeframe) LastClose(now time.Time) time.Time {
	now = now.UTC()

	switch t {
	case OneHour:
		close := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, time.UTC)
		if now.After(close) {
			return close
		}
		return close.Add(-time.Hour)
	case FourHour:
		hour := (now.Hour() / 4) * 4
		close := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
		if now.After(close) {
			return close
		}
		return close.Add(-time.Hour * 4)
	case OneDay:
		close := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		if now.After(close) {
			return close
		}
		return close.AddDate(0, 0, -1)
	case OneWeek:
		// Weekly candles close on monday midnight.
		daysSinceMonday := (int(now.Weekday()) + 6) % 7
		close := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -daysSinceMonday)
		if now.After(close) {
			return close
		}
		return close.AddDate(0, 0, -7)
	case OneMonth:
		close := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		if now.After(close) {
			return close
		}
		return close.AddDate(0, -1, 0)
	default:
		return now
	}
}

// WithinCloseGrace reports whether the provided time falls inside the grace
// window immediately after the timeframe's most recent candle close.
func (t Timeframe) WithinCloseGrace(now time.Time, grace time.Duration) bool {
	age := now.UTC().Sub(t.LastClose(now))
	return age >= 0 && age <= grace
}
