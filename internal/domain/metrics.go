package domain

import "time"

// TradeAccuracy win ratio over closed trades with an authoritative outcome.
// Known is false when no closed trade in the window carries an outcome,
// the UI renders "unavailable" instead of a fabricated number.
type TradeAccuracy struct {
	Wins    int     `json:"wins"`
	Sample  int     `json:"sample"`
	Percent float64 `json:"percent"`
	Known   bool    `json:"known"`
}

// ComputeAccuracy derives trade accuracy from the activity window.
// Only closed-trade events whose payload names a win/loss outcome are
// counted, events without one are excluded from the sample entirely.
func ComputeAccuracy(events []ActivityEvent) TradeAccuracy {
	acc := TradeAccuracy{}
	for _, e := range events {
		if !e.IsClosedTrade() {
			continue
		}

		win, known := e.Outcome()
		if !known {
			continue
		}

		acc.Sample++
		if win {
			acc.Wins++
		}
	}

	if acc.Sample == 0 {
		return acc
	}

	acc.Known = true
	acc.Percent = float64(acc.Wins) / float64(acc.Sample) * 100

	return acc
}

// CountTradesToday counts trade events whose local calendar date matches now.
func CountTradesToday(events []ActivityEvent, now time.Time) int {
	y, m, d := now.Local().Date()
	count := 0
	for _, e := range events {
		if !e.IsTrade() {
			continue
		}

		ey, em, ed := e.Timestamp.Local().Date()
		if ey == y && em == m && ed == d {
			count++
		}
	}

	return count
}

// LatestTradeAt returns the timestamp of the most recent trade event,
// or the zero time when the window holds none.
func LatestTradeAt(events []ActivityEvent) time.Time {
	var latest time.Time
	for _, e := range events {
		if e.IsTrade() && e.Timestamp.After(latest) {
			latest = e.Timestamp
		}
	}

	return latest
}

// CooldownRemaining computes how long the post-trade cooldown still blocks
// new entries. Zero when no trade happened yet or the window has elapsed.
func CooldownRemaining(cfg TradingConfig, events []ActivityEvent, now time.Time) time.Duration {
	if cfg.CooldownSeconds <= 0 {
		return 0
	}

	latest := LatestTradeAt(events)
	if latest.IsZero() {
		return 0
	}

	remaining := time.Duration(cfg.CooldownSeconds)*time.Second - now.Sub(latest)
	if remaining < 0 {
		return 0
	}

	return remaining
}
