package rbac

import (
	"net/http"

	"voice-assistant/internal/auth"

	"github.com/gin-gonic/gin"
)

const companyKey = "scope_company_id"

// RequireCompany enforces company isolation: company_id must exist in context.
// super_admin may act on another company through the company_id query parameter.
func RequireCompany() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := auth.IdentityFrom(c.Request.Context())
		if err != nil || id.CompanyID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "company_id required"})
			return
		}
		cid := id.CompanyID
		if IsSuperAdmin(id.Role) {
			if q := c.Query("company_id"); q != "" {
				cid = q
			}
		}
		c.Set(companyKey, cid)
		c.Next()
	}
}

// CompanyScope returns the company resolved by RequireCompany.
func CompanyScope(c *gin.Context) (string, bool) {
	v, ok := c.Get(companyKey)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// RequireAnyRole allows access if the caller has any of the provided roles.
// Rules:
// - super_admin bypasses all checks
// - support is a hidden role, and will be denied unless explicitly allowed
// - company isolation is enforced via RequireCompany (use it in the chain)
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		id, err := auth.IdentityFrom(c.Request.Context())
		role := id.Role
		if err != nil || role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}

		if IsSuperAdmin(role) {
			c.Next()
			return
		}

		if _, ok := allowedSet[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
