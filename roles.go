package auth

var roleHierarchy = map[UserRole]int{
	RoleUser:      0,
	RoleModerator: 1,
	RoleAdmin:     2,
}

// IsValidRole checks if the role is one of the predefined roles
func IsValidRole(role UserRole) bool {
	_, ok := roleHierarchy[role]
	return ok
}

// RoleIsAtLeast checks if role meets the minimum required level.
// Unknown roles never qualify.
func RoleIsAtLeast(role, minRole UserRole) bool {
	currentLevel, exists := roleHierarchy[role]
	if !exists {
		return false
	}

	minLevel, exists := roleHierarchy[minRole]
	if !exists {
		return false
	}

	return currentLevel >= minLevel
}

// AnyRoleIsAtLeast reports whether one of roles meets minRole
func AnyRoleIsAtLeast(roles []string, minRole UserRole) bool {
	for _, r := range roles {
		if RoleIsAtLeast(r, minRole) {
			return true
		}
	}
	return false
}

// GetAllRoles returns all predefined roles in hierarchical order
func GetAllRoles() []UserRole {
	return []UserRole{
		RoleUser,
		RoleModerator,
		RoleAdmin,
	}
}

// ParseRole safely parses a string into a UserRole
func ParseRole(roleStr string) (UserRole, bool) {
	return roleStr, IsValidRole(roleStr)
}
