package models

type Role string

const (
	RoleRenter Role = "renter"
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
)

// Actor is an already authenticated identity. The engine only authorizes it.
type Actor struct {
	ID    string `json:"id"`
	Roles []Role `json:"roles"`
}

func (a Actor) HasRole(role Role) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// ParseRoles keeps the known roles and drops the rest.
func ParseRoles(raw []string) []Role {
	roles := make([]Role, 0, len(raw))
	for _, r := range raw {
		switch role := Role(r); role {
		case RoleRenter, RoleOwner, RoleAdmin:
			roles = append(roles, role)
		}
	}
	return roles
}
