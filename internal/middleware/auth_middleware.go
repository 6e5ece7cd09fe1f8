// internal/middleware/auth_middleware.go
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"frontdesk-service/internal/pkg/jwt"
	"frontdesk-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

// TokenVerifier is satisfied by *jwt.Verifier.
type TokenVerifier interface {
	Verify(token string) (*jwt.Claims, error)
}

type AuthMiddleware struct {
	verifier TokenVerifier
}

func NewAuthMiddleware(verifier TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
	}
}

// Auth is the base authentication middleware that validates JWT tokens
func (m *AuthMiddleware) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.Error(c, http.StatusUnauthorized, "missing authorization token", nil)
			return
		}

		claims, err := m.verifier.Verify(token)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, "invalid or expired token", err)
			return
		}

		c.Set(ctxStaffID, claims.Subject)
		c.Set(ctxStaffName, claims.Name)
		c.Set(ctxRoles, claims.Roles)
		c.Set(ctxSite, claims.Site)

		c.Next()
	}
}

// RequireRole middleware that requires user to have at least one of the specified roles
// MUST be used after Auth() middleware
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRoles, exists := c.Get(ctxRoles)
		if !exists {
			response.Error(c, http.StatusForbidden, "no roles found - authentication required", nil)
			return
		}

		userRolesList, ok := userRoles.([]string)
		if !ok {
			response.Error(c, http.StatusInternalServerError, "invalid roles format", nil)
			return
		}

		hasRole := false
		for _, userRole := range userRolesList {
			for _, requiredRole := range roles {
				if userRole == requiredRole {
					hasRole = true
					break
				}
			}
			if hasRole {
				break
			}
		}

		if !hasRole {
			err := errors.New("user does not have required role")
			response.Error(c, http.StatusForbidden, "insufficient permissions", err, map[string]interface{}{
				"required_roles": roles,
				"user_roles":     userRolesList,
			})
			return
		}

		c.Next()
	}
}

// Staff returns middlewares for any front-desk role.
func (m *AuthMiddleware) Staff() []gin.HandlerFunc {
	return []gin.HandlerFunc{
		m.Auth(),
		m.RequireRole(jwt.RoleReceptionist, jwt.RoleManager, jwt.RoleAdmin),
	}
}

// ManagerOnly returns middlewares for routes that hand out work to consultants.
func (m *AuthMiddleware) ManagerOnly() []gin.HandlerFunc {
	return []gin.HandlerFunc{
		m.Auth(),
		m.RequireRole(jwt.RoleManager, jwt.RoleAdmin),
	}
}

// extractToken extracts Bearer token from Authorization header
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}

	// browsers cannot set headers on a websocket upgrade
	if token := c.Query("token"); token != "" {
		return token
	}

	return ""
}
