package domain

import "strings"

// Category data-provider category key as delivered by the gateway.
type Category string

const (
	CategoryMarketData Category = "marketData"
	CategoryNews       Category = "news"
	CategoryMetadata   Category = "metadata"
)

// DefaultRequiredCategories returns the categories that must have an
// enabled and keyed provider before automated trading may be switched on.
// The required set is configurable, this is only the fallback.
func DefaultRequiredCategories() []Category {
	return []Category{CategoryMarketData, CategoryNews, CategoryMetadata}
}

var categoryDisplayNames = map[Category]string{
	CategoryMarketData: "Market Data",
	CategoryNews:       "News",
	CategoryMetadata:   "Metadata",
}

// DisplayName returns the human-readable name for the category.
// Unknown categories fall back to the raw key with the first letter capitalized.
func (c Category) DisplayName() string {
	if name, ok := categoryDisplayNames[c]; ok {
		return name
	}
	s := string(c)
	if s == "" {
		return s
	}

	return strings.ToUpper(s[:1]) + s[1:]
}

// ProviderEntry enablement state of a single data provider.
type ProviderEntry struct {
	Enabled       bool `json:"enabled"`
	APIKeyPresent bool `json:"api_key_present"`
}

// Ready reports whether the provider is both switched on and keyed.
func (p ProviderEntry) Ready() bool {
	return p.Enabled && p.APIKeyPresent
}

// ProviderMap category -> provider id -> enablement state.
type ProviderMap map[Category]map[string]ProviderEntry

// DefaultProviderMap returns a map with every known category present but empty,
// so lookups by category never hit a missing key after a failed fetch.
func DefaultProviderMap() ProviderMap {
	m := make(ProviderMap, 3)
	m[CategoryMarketData] = map[string]ProviderEntry{}
	m[CategoryNews] = map[string]ProviderEntry{}
	m[CategoryMetadata] = map[string]ProviderEntry{}

	return m
}

// EnabledCount counts entries across all categories that are enabled and keyed.
func (m ProviderMap) EnabledCount() int {
	count := 0
	for _, providers := range m {
		for _, entry := range providers {
			if entry.Ready() {
				count++
			}
		}
	}

	return count
}

// HasReady reports whether the category holds at least one enabled and keyed provider.
func (m ProviderMap) HasReady(category Category) bool {
	for _, entry := range m[category] {
		if entry.Ready() {
			return true
		}
	}

	return false
}
