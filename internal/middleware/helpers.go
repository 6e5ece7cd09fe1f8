// internal/middleware/helpers.go
package middleware

import "github.com/gin-gonic/gin"

const (
	ctxStaffID   = "staff_id"
	ctxStaffName = "staff_name"
	ctxRoles     = "roles"
	ctxSite      = "site"
)

// GetStaffID returns the authenticated subject.
func GetStaffID(c *gin.Context) (string, bool) {
	v, exists := c.Get(ctxStaffID)
	if !exists {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

// GetRoles gets user roles from context
func GetRoles(c *gin.Context) []string {
	roles, exists := c.Get(ctxRoles)
	if !exists {
		return []string{}
	}

	rolesList, ok := roles.([]string)
	if !ok {
		return []string{}
	}

	return rolesList
}

func HasRole(c *gin.Context, role string) bool {
	for _, r := range GetRoles(c) {
		if r == role {
			return true
		}
	}
	return false
}

// IsAuthenticated checks if request is authenticated
func IsAuthenticated(c *gin.Context) bool {
	_, exists := c.Get(ctxStaffID)
	return exists
}
