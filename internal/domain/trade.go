package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LiveTrade read-only snapshot of one open position as reported by the gateway.
// The list is fully replaced on each refresh, ordering is source-provided.
type LiveTrade struct {
	ID              string           `json:"id"`
	Symbol          string           `json:"symbol"`
	Side            string           `json:"side"`
	EntryPrice      decimal.Decimal  `json:"entry_price"`
	CurrentPrice    decimal.Decimal  `json:"current_price"`
	PnL             decimal.Decimal  `json:"pnl"`
	PnLPercent      decimal.Decimal  `json:"pnl_percent"`
	StopLoss        *decimal.Decimal `json:"stop_loss,omitempty"`
	TakeProfit      *decimal.Decimal `json:"take_profit,omitempty"`
	AccuracyAtEntry decimal.Decimal  `json:"accuracy_at_entry"`
	Status          string           `json:"status"`
	EntryTime       time.Time        `json:"entry_time"`
}
