package gateway

import (
	"time"

	"github.com/shopspring/decimal"
)

// Boolean-like fields are declared as any on purpose: depending on the
// backend version the gateway delivers them as true, "true", 1 or "1".
// Normalization into real bools happens in one place downstream.

// TradingConfigPayload raw trading configuration as served by the gateway.
type TradingConfigPayload struct {
	AutoTradeEnabled    any    `json:"autoTradeEnabled"`
	MaxConcurrentTrades any    `json:"maxConcurrentTrades"`
	MaxTradesPerDay     any    `json:"maxTradesPerDay"`
	CooldownSeconds     any    `json:"cooldownSeconds"`
	PanicStopEnabled    any    `json:"panicStopEnabled"`
	SlippageBlocker     any    `json:"slippageBlocker"`
	LastResearchAt      string `json:"lastResearchAt"`
	NextResearchAt      string `json:"nextResearchAt"`
}

// CredentialStatusPayload raw exchange credential record. Key material may
// arrive in any of three encodings, presence of any one of them counts.
type CredentialStatusPayload struct {
	Provider        string `json:"provider"`
	Status          string `json:"status"`
	APIKeyMasked    string `json:"apiKeyMasked"`
	APIKeyEncrypted string `json:"apiKeyEncrypted"`
	APIKey          string `json:"apiKey"`
}

// ProviderEntryPayload raw enablement flags of one data provider.
type ProviderEntryPayload struct {
	Enabled       any `json:"enabled"`
	APIKeyPresent any `json:"apiKeyPresent"`
}

// ProviderMapPayload category key -> provider id -> raw flags.
type ProviderMapPayload map[string]map[string]ProviderEntryPayload

// LiveTradePayload raw open position row.
type LiveTradePayload struct {
	ID              any              `json:"id"`
	Symbol          string           `json:"symbol"`
	Side            string           `json:"side"`
	EntryPrice      decimal.Decimal  `json:"entryPrice"`
	CurrentPrice    decimal.Decimal  `json:"currentPrice"`
	PnL             decimal.Decimal  `json:"pnl"`
	PnLPercent      decimal.Decimal  `json:"pnlPercent"`
	StopLoss        *decimal.Decimal `json:"stopLoss"`
	TakeProfit      *decimal.Decimal `json:"takeProfit"`
	AccuracyAtEntry decimal.Decimal  `json:"accuracyAtEntry"`
	Status          string           `json:"status"`
	EntryTime       time.Time        `json:"entryTime"`
}

// ActivityEventPayload raw audit log entry.
type ActivityEventPayload struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      string         `json:"type"`
	Text      string         `json:"text"`
	Meta      map[string]any `json:"meta"`
}
