// Package normalize converts raw gateway payloads into typed, default-safe
// domain values. Every function here is total: given a failed fetch or a
// malformed payload it returns the documented default for that source
// instead of propagating the error.
package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/vadiminshakov/tradeready/internal/domain"
	"github.com/vadiminshakov/tradeready/internal/gateway"
)

// Config normalizes the trading configuration source.
func Config(payload *gateway.TradingConfigPayload, err error) domain.TradingConfig {
	if err != nil || payload == nil {
		return domain.DefaultTradingConfig()
	}

	return domain.TradingConfig{
		AutoTradeEnabled:    domain.Truthy(payload.AutoTradeEnabled),
		MaxConcurrentTrades: asInt(payload.MaxConcurrentTrades),
		MaxTradesPerDay:     asInt(payload.MaxTradesPerDay),
		CooldownSeconds:     asInt(payload.CooldownSeconds),
		PanicStopEnabled:    domain.Truthy(payload.PanicStopEnabled),
		SlippageBlocker:     domain.Truthy(payload.SlippageBlocker),
		LastResearchAt:      parseTime(payload.LastResearchAt),
		NextResearchAt:      parseTime(payload.NextResearchAt),
	}
}

// Credential normalizes the exchange credential source. Key material counts
// as present when any of the three wire encodings is non-empty.
func Credential(payload *gateway.CredentialStatusPayload, err error) domain.CredentialStatus {
	if err != nil || payload == nil {
		return domain.DefaultCredentialStatus()
	}

	return domain.CredentialStatus{
		Provider:       payload.Provider,
		HasKeyMaterial: payload.APIKeyMasked != "" || payload.APIKeyEncrypted != "" || payload.APIKey != "",
	}
}

// Providers normalizes the provider map source. All known categories are
// always present in the result, categories the gateway does not know about
// are carried through untouched.
func Providers(payload gateway.ProviderMapPayload, err error) domain.ProviderMap {
	result := domain.DefaultProviderMap()
	if err != nil || payload == nil {
		return result
	}

	for category, providers := range payload {
		entries := make(map[string]domain.ProviderEntry, len(providers))
		for id, entry := range providers {
			entries[id] = domain.ProviderEntry{
				Enabled:       domain.Truthy(entry.Enabled),
				APIKeyPresent: domain.Truthy(entry.APIKeyPresent),
			}
		}
		result[domain.Category(category)] = entries
	}

	return result
}

// Trades normalizes the live trades source.
func Trades(payload []gateway.LiveTradePayload, err error) []domain.LiveTrade {
	if err != nil || payload == nil {
		return []domain.LiveTrade{}
	}

	trades := make([]domain.LiveTrade, 0, len(payload))
	for _, p := range payload {
		trades = append(trades, domain.LiveTrade{
			ID:              asString(p.ID),
			Symbol:          p.Symbol,
			Side:            p.Side,
			EntryPrice:      p.EntryPrice,
			CurrentPrice:    p.CurrentPrice,
			PnL:             p.PnL,
			PnLPercent:      p.PnLPercent,
			StopLoss:        p.StopLoss,
			TakeProfit:      p.TakeProfit,
			AccuracyAtEntry: p.AccuracyAtEntry,
			Status:          p.Status,
			EntryTime:       p.EntryTime,
		})
	}

	return trades
}

// Activity normalizes the activity log source and bounds it to the limit
// most recent entries. The gateway returns newest first.
func Activity(payload []gateway.ActivityEventPayload, limit int, err error) []domain.ActivityEvent {
	if err != nil || payload == nil {
		return []domain.ActivityEvent{}
	}

	if limit <= 0 {
		limit = domain.DefaultActivityLimit
	}
	if len(payload) > limit {
		payload = payload[:limit]
	}

	events := make([]domain.ActivityEvent, 0, len(payload))
	for _, p := range payload {
		events = append(events, domain.ActivityEvent{
			Timestamp: p.Timestamp,
			Type:      p.Type,
			Text:      p.Text,
			Meta:      p.Meta,
		})
	}

	return events
}

// Stats passes the opaque performance payload through, nil on failure.
func Stats(payload json.RawMessage, err error) json.RawMessage {
	if err != nil {
		return nil
	}

	return payload
}

func asInt(v any) int {
	switch x := v.(type) {
	case int:
		return x
	case int64:
		return int(x)
	case float64:
		return int(x)
	case float32:
		return int(x)
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return 0
		}

		return int(n)
	case string:
		n, err := strconv.Atoi(x)
		if err != nil {
			return 0
		}

		return n
	default:
		return 0
	}
}

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}

	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}

	return &t
}
