package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func connectedCredential() CredentialStatus {
	return CredentialStatus{Provider: "binance", HasKeyMaterial: true}
}

func fullProviderMap() ProviderMap {
	return ProviderMap{
		CategoryMarketData: {"cryptocompare": {Enabled: true, APIKeyPresent: true}},
		CategoryNews:       {"newsdata": {Enabled: true, APIKeyPresent: true}},
		CategoryMetadata:   {"coinmarketcap": {Enabled: true, APIKeyPresent: true}},
	}
}

func TestComputeReadiness(t *testing.T) {
	tests := []struct {
		name     string
		cred     CredentialStatus
		prov     ProviderMap
		required []Category
		expected ReadinessState
	}{
		{
			name:     "Everything connected",
			cred:     connectedCredential(),
			prov:     fullProviderMap(),
			required: DefaultRequiredCategories(),
			expected: ReadinessState{
				IsAPIConnected:        true,
				AllProvidersConnected: true,
				MissingRequirements:   []string{},
				CanEnable:             true,
				EnabledProviders:      3,
			},
		},
		{
			name:     "Credential missing blocks enable regardless of providers",
			cred:     CredentialStatus{},
			prov:     fullProviderMap(),
			required: DefaultRequiredCategories(),
			expected: ReadinessState{
				IsAPIConnected:        false,
				AllProvidersConnected: true,
				MissingRequirements:   []string{},
				CanEnable:             false,
				EnabledProviders:      3,
			},
		},
		{
			name:     "Provider named but no key material",
			cred:     CredentialStatus{Provider: "bybit"},
			prov:     fullProviderMap(),
			required: DefaultRequiredCategories(),
			expected: ReadinessState{
				IsAPIConnected:        false,
				AllProvidersConnected: true,
				MissingRequirements:   []string{},
				CanEnable:             false,
				EnabledProviders:      3,
			},
		},
		{
			name: "Missing categories listed in declaration order",
			cred: connectedCredential(),
			prov: ProviderMap{
				CategoryMarketData: {"cryptocompare": {Enabled: true}},
				CategoryNews:       {"newsdata": {Enabled: true, APIKeyPresent: true}},
				CategoryMetadata:   {},
			},
			required: DefaultRequiredCategories(),
			expected: ReadinessState{
				IsAPIConnected:        true,
				AllProvidersConnected: false,
				MissingRequirements:   []string{"Market Data", "Metadata"},
				CanEnable:             false,
				EnabledProviders:      1,
			},
		},
		{
			name:     "Duplicate required categories reported once",
			cred:     connectedCredential(),
			prov:     DefaultProviderMap(),
			required: []Category{CategoryNews, CategoryNews},
			expected: ReadinessState{
				IsAPIConnected:        true,
				AllProvidersConnected: false,
				MissingRequirements:   []string{"News"},
				CanEnable:             false,
				EnabledProviders:      0,
			},
		},
		{
			name:     "Unknown category falls back to capitalized raw key",
			cred:     connectedCredential(),
			prov:     DefaultProviderMap(),
			required: []Category{"onchain"},
			expected: ReadinessState{
				IsAPIConnected:        true,
				AllProvidersConnected: false,
				MissingRequirements:   []string{"Onchain"},
				CanEnable:             false,
				EnabledProviders:      0,
			},
		},
		{
			name:     "Disabled but keyed provider does not satisfy category",
			cred:     connectedCredential(),
			prov:     ProviderMap{CategoryMarketData: {"coinapi": {APIKeyPresent: true}}},
			required: []Category{CategoryMarketData},
			expected: ReadinessState{
				IsAPIConnected:        true,
				AllProvidersConnected: false,
				MissingRequirements:   []string{"Market Data"},
				CanEnable:             false,
				EnabledProviders:      0,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ComputeReadiness(tt.cred, tt.prov, tt.required))
		})
	}
}

func TestComputeEngineStatus(t *testing.T) {
	assert.Equal(t, EngineRunning, ComputeEngineStatus(TradingConfig{AutoTradeEnabled: true}))
	assert.Equal(t, EngineStopped, ComputeEngineStatus(TradingConfig{}))
}
