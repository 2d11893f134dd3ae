package models

// Principal is the verified identity of a caller, taken from an identity-provider token.
// Operations that act on behalf of a host take it explicitly.
type Principal struct {
	// ID is the identity provider's subject for the user.
	ID string

	// Name is the user's display name, if the provider supplied one.
	Name string
}

// Anonymous reports whether no identity is present.
func (p Principal) Anonymous() bool {
	return p.ID == ""
}
