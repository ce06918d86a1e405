package synchronizer

// Identity the authenticated session driving all per-user fetches.
// Key may be briefly empty while the session is still resolving.
type Identity struct {
	Key string
}

// Resolved reports whether the stable session key is available yet.
func (i Identity) Resolved() bool {
	return i.Key != ""
}

// IdentityProvider yields the current session identity. The second return
// is false when no session exists at all, such as after logout.
type IdentityProvider interface {
	Current() (Identity, bool)
}

// StaticIdentity is an IdentityProvider for a fixed session key, used by the
// daemon where the session is configured up front and never goes away.
type StaticIdentity string

// Current implements IdentityProvider.
func (s StaticIdentity) Current() (Identity, bool) {
	return Identity{Key: string(s)}, true
}
