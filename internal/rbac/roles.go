package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleOwner      = "owner"
	RoleManager    = "manager"
	RoleViewer     = "viewer"
	RoleSuperAdmin = "super_admin"
	RoleSupport    = "support" // hidden role: platform staff reading transcripts
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

func IsHiddenRole(role string) bool { return role == RoleSupport }

// ValidRole reports whether role may be put in a token.
func ValidRole(role string) bool {
	switch role {
	case RoleOwner, RoleManager, RoleViewer, RoleSuperAdmin, RoleSupport:
		return true
	}
	return false
}
