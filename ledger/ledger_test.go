package ledger

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/halver/herald/shared"
	"github.com/peterldowns/testy/assert"
)

func TestFilterPatternFindingsOneShot(t *testing.T) {
	ledger := NewLedger()

	market := "BTCUSDT"
	closedAt := time.Date(2025, time.March, 12, 14, 0, 0, 0, time.UTC)
	now := closedAt.Add(time.Second * 30)
	findings := []string{"Doji candle pattern on last closed candle"}

	// Ensure the first evaluation of a closed candle passes its findings.
	got := ledger.FilterPatternFindings(market, shared.OneHour, closedAt, findings, now)
	assert.Equal(t, len(got), 1)

	// Ensure a repeat evaluation of the same closed candle is suppressed.
	got = ledger.FilterPatternFindings(market, shared.OneHour, closedAt, findings, now.Add(time.Second*10))
	assert.Equal(t, len(got), 0)

	// Ensure a different timeframe for the same close time is independent.
	got = ledger.FilterPatternFindings(market, shared.FourHour, closedAt, findings, now)
	assert.Equal(t, len(got), 1)

	// Ensure a newer closed candle fires again.
	got = ledger.FilterPatternFindings(market, shared.OneHour, closedAt.Add(time.Hour), findings, now.Add(time.Hour))
	assert.Equal(t, len(got), 1)

	// Ensure empty batches pass through without mutating state.
	got = ledger.FilterPatternFindings(market, shared.OneDay, closedAt, nil, now)
	assert.Equal(t, len(got), 0)
}

func TestSeenSetEviction(t *testing.T) {
	ledger := NewLedger()

	market := "BTCUSDT"
	closedAt := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	findings := []string{"Doji candle pattern on last closed candle"}

	ledger.FilterPatternFindings(market, shared.OneHour, closedAt, findings, closedAt)
	assert.Equal(t, len(ledger.seen), 1)

	// Ensure inserting well past the eviction horizon drops the old entry.
	farFuture := closedAt.Add(seenEvictAfter + time.Hour)
	ledger.FilterPatternFindings(market, shared.OneHour, closedAt.Add(time.Hour), findings, farFuture)
	assert.Equal(t, len(ledger.seen), 1)
}

func TestApplyCooldown(t *testing.T) {
	ledger := NewLedger()

	market := "BTCUSDT"
	now := time.Date(2025, time.March, 12, 14, 0, 30, 0, time.UTC)
	findings := []TimeframeFinding{
		{Timeframe: shared.OneHour, Message: "Price touched and is above EMA50"},
	}

	// Ensure findings with no prior delivery pass and are tagged.
	allowed, timeframes := ledger.ApplyCooldown(market, findings, now)
	assert.Equal(t, len(allowed), 1)
	assert.Equal(t, allowed[0], "[1H] Price touched and is above EMA50")
	assert.Equal(t, len(timeframes), 1)
	assert.Equal(t, timeframes[0], shared.OneHour)

	ledger.RecordDelivery(market, timeframes, now)

	// Ensure a finding inside the cooldown window is suppressed.
	within := now.Add(shared.OneHour.Cooldown() - time.Minute)
	allowed, timeframes = ledger.ApplyCooldown(market, findings, within)
	assert.Equal(t, len(allowed), 0)
	assert.Equal(t, len(timeframes), 0)

	// Ensure a finding past the cooldown window passes again.
	after := now.Add(shared.OneHour.Cooldown() + time.Minute)
	allowed, _ = ledger.ApplyCooldown(market, findings, after)
	assert.Equal(t, len(allowed), 1)

	// Ensure cooldowns are scoped per market.
	allowed, _ = ledger.ApplyCooldown("ETHUSDT", findings, within)
	assert.Equal(t, len(allowed), 1)
}

func TestApplyCooldownSharedPerTimeframe(t *testing.T) {
	ledger := NewLedger()

	market := "BTCUSDT"
	now := time.Date(2025, time.March, 12, 14, 0, 30, 0, time.UTC)
	findings := []TimeframeFinding{
		{Timeframe: shared.OneHour, Message: "Price within 2% of PP at $100.00"},
		{Timeframe: shared.OneHour, Message: "Price touched and is above EMA50"},
		{Timeframe: shared.OneMonth, Message: "Doji candle pattern on last closed candle"},
	}

	// Ensure multiple findings for one timeframe share a single cooldown
	// entry and all pass together.
	allowed, timeframes := ledger.ApplyCooldown(market, findings, now)
	want := []string{
		"[1H] Price within 2% of PP at $100.00",
		"[1H] Price touched and is above EMA50",
		"[1M] Doji candle pattern on last closed candle",
	}
	if diff := cmp.Diff(want, allowed); diff != "" {
		t.Fatalf("unexpected allowed messages (-want +got):\n%s", diff)
	}
	assert.Equal(t, len(timeframes), 2)

	ledger.RecordDelivery(market, timeframes, now)

	// Ensure both timeframes are now cooling down.
	allowed, _ = ledger.ApplyCooldown(market, findings, now.Add(time.Minute))
	assert.Equal(t, len(allowed), 0)
}
