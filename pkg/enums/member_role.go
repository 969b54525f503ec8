package enums

import "fmt"

// MemberRole is the role carried in an API bearer token.
type MemberRole string

const (
	// MemberRoleAdmin is HomeBase operations staff.
	MemberRoleAdmin MemberRole = "admin"
	// MemberRoleOwner owns a provider organization.
	MemberRoleOwner MemberRole = "owner"
	// MemberRoleStaff works for a provider organization.
	MemberRoleStaff MemberRole = "staff"
)

var validMemberRoles = []MemberRole{
	MemberRoleAdmin,
	MemberRoleOwner,
	MemberRoleStaff,
}

// String implements fmt.Stringer.
func (m MemberRole) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MemberRole.
func (m MemberRole) IsValid() bool {
	for _, candidate := range validMemberRoles {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMemberRole converts raw input into a MemberRole.
func ParseMemberRole(value string) (MemberRole, error) {
	for _, candidate := range validMemberRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid member role %q", value)
}
