package core

import "fmt"

// Role is an access tier stored on-chain per address. The numeric values
// mirror the contract's enum encoding.
type Role uint8

const (
	RoleUser Role = iota
	RoleAdmin
	RoleSuperAdmin
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "User"
	case RoleAdmin:
		return "Admin"
	case RoleSuperAdmin:
		return "SuperAdmin"
	default:
		return fmt.Sprintf("Role(%d)", uint8(r))
	}
}

// Valid reports whether r is one of the known tiers.
func (r Role) Valid() bool { return r <= RoleSuperAdmin }

// AtLeast reports whether r grants at least the access of min.
func (r Role) AtLeast(min Role) bool { return r >= min }

// ParseRole converts a display name back to a Role.
func ParseRole(s string) (Role, error) {
	switch s {
	case "User":
		return RoleUser, nil
	case "Admin":
		return RoleAdmin, nil
	case "SuperAdmin":
		return RoleSuperAdmin, nil
	default:
		return 0, fmt.Errorf("unknown role %q", s)
	}
}
