package domain

// ReadinessState derived answer to "is automated trading safe to enable".
// Recomputed whenever any input source changes, never persisted on its own.
type ReadinessState struct {
	IsAPIConnected        bool     `json:"is_api_connected"`
	AllProvidersConnected bool     `json:"all_providers_connected"`
	MissingRequirements   []string `json:"missing_requirements"`
	CanEnable             bool     `json:"can_enable"`
	EnabledProviders      int      `json:"enabled_providers"`
}

// ComputeReadiness evaluates credential and provider state against the
// required category list. MissingRequirements holds display names in the
// declaration order of required, with no duplicates, ready for user-facing
// messaging as-is.
func ComputeReadiness(cred CredentialStatus, providers ProviderMap, required []Category) ReadinessState {
	missing := make([]string, 0, len(required))
	seen := make(map[Category]struct{}, len(required))
	for _, category := range required {
		if _, dup := seen[category]; dup {
			continue
		}
		seen[category] = struct{}{}

		if !providers.HasReady(category) {
			missing = append(missing, category.DisplayName())
		}
	}

	connected := cred.IsConnected()

	return ReadinessState{
		IsAPIConnected:        connected,
		AllProvidersConnected: len(missing) == 0,
		MissingRequirements:   missing,
		CanEnable:             connected && len(missing) == 0,
		EnabledProviders:      providers.EnabledCount(),
	}
}
