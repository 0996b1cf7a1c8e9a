package models

import "fmt"

// Role is the closed set of platform roles
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleClient Role = "cliente"
)

// Capability names an action gated by role
type Capability string

const (
	CapViewLots       Capability = "view-lots"
	CapPlaceBid       Capability = "place-bid"
	CapViewOwnBids    Capability = "view-own-bids"
	CapManageAuctions Capability = "manage-auctions"
)

var roleCapabilities = map[Role][]Capability{
	RoleAdmin:  {CapViewLots, CapManageAuctions},
	RoleClient: {CapViewLots, CapPlaceBid, CapViewOwnBids},
}

// ParseRole converts a stored or wire role name into a Role
func ParseRole(raw string) (Role, error) {
	r := Role(raw)
	if _, ok := roleCapabilities[r]; !ok {
		return "", fmt.Errorf("unknown role %q", raw)
	}
	return r, nil
}

// Can reports whether role holds the capability. Unknown roles hold none.
func Can(role Role, capability Capability) bool {
	for _, c := range roleCapabilities[role] {
		if c == capability {
			return true
		}
	}
	return false
}
