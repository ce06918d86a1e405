package domain

import "time"

// TradingConfig automated trading settings for the session.
// Replaced wholesale on each refresh cycle, never partially mutated.
type TradingConfig struct {
	AutoTradeEnabled    bool       `json:"auto_trade_enabled"`
	MaxConcurrentTrades int        `json:"max_concurrent_trades"`
	MaxTradesPerDay     int        `json:"max_trades_per_day"`
	CooldownSeconds     int        `json:"cooldown_seconds"`
	PanicStopEnabled    bool       `json:"panic_stop_enabled"`
	SlippageBlocker     bool       `json:"slippage_blocker"`
	LastResearchAt      *time.Time `json:"last_research_at,omitempty"`
	NextResearchAt      *time.Time `json:"next_research_at,omitempty"`
}

// DefaultTradingConfig returns the safe fallback used when the config source
// is unavailable. Everything off, everything zero, timestamps unknown.
func DefaultTradingConfig() TradingConfig {
	return TradingConfig{}
}
