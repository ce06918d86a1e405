package domain

// CredentialStatus exchange credential state for the session.
// Provider is empty when no exchange credential is configured.
type CredentialStatus struct {
	Provider       string `json:"provider,omitempty"`
	HasKeyMaterial bool   `json:"has_key_material"`
}

// IsConnected reports whether an exchange credential is usable: a provider
// is named and key material exists in at least one encoding.
func (c CredentialStatus) IsConnected() bool {
	return c.Provider != "" && c.HasKeyMaterial
}

// DefaultCredentialStatus returns the disconnected fallback.
func DefaultCredentialStatus() CredentialStatus {
	return CredentialStatus{}
}
