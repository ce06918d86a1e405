package normalize

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/tradeready/internal/domain"
	"github.com/vadiminshakov/tradeready/internal/gateway"
)

func TestConfigDefaultsOnError(t *testing.T) {
	cfg := Config(nil, errors.New("fetch timed out"))
	assert.Equal(t, domain.DefaultTradingConfig(), cfg)
}

func TestConfigCoercesHeterogeneousTypes(t *testing.T) {
	payload := &gateway.TradingConfigPayload{
		AutoTradeEnabled:    "true",
		MaxConcurrentTrades: float64(3),
		MaxTradesPerDay:     "10",
		CooldownSeconds:     json.Number("120"),
		PanicStopEnabled:    1,
		SlippageBlocker:     "no",
		LastResearchAt:      "2025-06-15T10:00:00Z",
		NextResearchAt:      "not-a-timestamp",
	}

	cfg := Config(payload, nil)

	assert.True(t, cfg.AutoTradeEnabled)
	assert.Equal(t, 3, cfg.MaxConcurrentTrades)
	assert.Equal(t, 10, cfg.MaxTradesPerDay)
	assert.Equal(t, 120, cfg.CooldownSeconds)
	assert.True(t, cfg.PanicStopEnabled)
	assert.False(t, cfg.SlippageBlocker)
	require.NotNil(t, cfg.LastResearchAt)
	assert.Equal(t, time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC), cfg.LastResearchAt.UTC())
	assert.Nil(t, cfg.NextResearchAt)
}

func TestCredentialKeyMaterialEncodings(t *testing.T) {
	tests := []struct {
		name     string
		payload  *gateway.CredentialStatusPayload
		expected domain.CredentialStatus
	}{
		{
			name:     "Masked literal",
			payload:  &gateway.CredentialStatusPayload{Provider: "binance", APIKeyMasked: "sk-****"},
			expected: domain.CredentialStatus{Provider: "binance", HasKeyMaterial: true},
		},
		{
			name:     "Prefixed encrypted string",
			payload:  &gateway.CredentialStatusPayload{Provider: "bybit", APIKeyEncrypted: "enc:v1:abcdef"},
			expected: domain.CredentialStatus{Provider: "bybit", HasKeyMaterial: true},
		},
		{
			name:     "Raw encrypted blob",
			payload:  &gateway.CredentialStatusPayload{Provider: "hyperliquid", APIKey: "YWJjZGVm"},
			expected: domain.CredentialStatus{Provider: "hyperliquid", HasKeyMaterial: true},
		},
		{
			name:     "No key material",
			payload:  &gateway.CredentialStatusPayload{Provider: "binance", Status: "pending"},
			expected: domain.CredentialStatus{Provider: "binance", HasKeyMaterial: false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Credential(tt.payload, nil))
		})
	}
}

func TestCredentialDefaultsOnError(t *testing.T) {
	cred := Credential(&gateway.CredentialStatusPayload{Provider: "binance"}, errors.New("boom"))
	assert.Equal(t, domain.DefaultCredentialStatus(), cred)
	assert.False(t, cred.IsConnected())
}

func TestProvidersAlwaysContainAllCategories(t *testing.T) {
	prov := Providers(nil, errors.New("unreachable"))

	require.Contains(t, prov, domain.CategoryMarketData)
	require.Contains(t, prov, domain.CategoryNews)
	require.Contains(t, prov, domain.CategoryMetadata)
	assert.Empty(t, prov[domain.CategoryMarketData])
}

func TestProvidersCoercionAndUnknownCategories(t *testing.T) {
	payload := gateway.ProviderMapPayload{
		"marketData": {
			"cryptocompare": {Enabled: "1", APIKeyPresent: true},
			"coinapi":       {Enabled: false, APIKeyPresent: "true"},
		},
		"onchain": {
			"glassnode": {Enabled: float64(1), APIKeyPresent: "1"},
		},
	}

	prov := Providers(payload, nil)

	assert.True(t, prov[domain.CategoryMarketData]["cryptocompare"].Ready())
	assert.False(t, prov[domain.CategoryMarketData]["coinapi"].Ready())
	assert.True(t, prov["onchain"]["glassnode"].Ready())
	assert.Empty(t, prov[domain.CategoryNews])
	assert.Equal(t, 2, prov.EnabledCount())
}

func TestTradesNormalization(t *testing.T) {
	payload := []gateway.LiveTradePayload{
		{ID: float64(7), Symbol: "BTCUSDT", Side: "long"},
		{ID: "trade-8", Symbol: "ETHUSDT", Side: "short"},
	}

	trades := Trades(payload, nil)

	require.Len(t, trades, 2)
	assert.Equal(t, "7", trades[0].ID)
	assert.Equal(t, "trade-8", trades[1].ID)

	assert.Empty(t, Trades(nil, errors.New("gone")))
}

func TestActivityWindowBounded(t *testing.T) {
	payload := make([]gateway.ActivityEventPayload, 10)
	for i := range payload {
		payload[i] = gateway.ActivityEventPayload{Type: "trade_opened", Text: "t"}
	}

	assert.Len(t, Activity(payload, 4, nil), 4)
	assert.Len(t, Activity(payload, 0, nil), 10)
	assert.Empty(t, Activity(nil, 4, errors.New("gone")))
}

func TestStatsPassthrough(t *testing.T) {
	raw := json.RawMessage(`{"sharpe":1.2}`)
	assert.Equal(t, raw, Stats(raw, nil))
	assert.Nil(t, Stats(raw, errors.New("gone")))
}
