package middleware

import (
	"net/http"
	"strings"

	"lounge_backend/internal/policy"
	"lounge_backend/internal/services"
	"lounge_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

const (
	ctxOperatorID = "operatorID"
	ctxUsername   = "username"
	ctxUserRole   = "userRole"
)

// AuthMiddleware creates a Gin middleware for JWT authentication.
// Tokens are issued by the external auth service and carry the operator identity and role.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusUnauthorized, utils.ErrCodeUnauthorized, "Authorization header required", ""))
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusUnauthorized, utils.ErrCodeUnauthorized,
				"Invalid authorization header format. Use Bearer <token>", ""))
			return
		}

		claims, err := utils.ValidateToken(parts[1])
		if err != nil {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusUnauthorized, utils.ErrCodeUnauthorized, "Invalid or expired token", err.Error()))
			return
		}

		// Set operator information in the context for downstream handlers
		c.Set(ctxOperatorID, claims.OperatorID)
		c.Set(ctxUsername, claims.Username)
		c.Set(ctxUserRole, policy.ParseRole(claims.Role))

		c.Next()
	}
}

// ActorFromContext returns the caller identity set by AuthMiddleware.
func ActorFromContext(c *gin.Context) (services.Actor, bool) {
	operatorID, ok := c.Get(ctxOperatorID)
	if !ok {
		return services.Actor{}, false
	}
	id, ok := operatorID.(int64)
	if !ok {
		return services.Actor{}, false
	}
	role, _ := c.Get(ctxUserRole)
	r, _ := role.(policy.Role)
	return services.Actor{OperatorID: id, Username: c.GetString(ctxUsername), Role: r}, true
}

// RoleAuthMiddleware rejects callers whose role is not one of allowedRoles.
// Per-operation rules live in the policy package; this only gates route groups.
func RoleAuthMiddleware(allowedRoles ...policy.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFromContext(c)
		if !ok {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusForbidden, utils.ErrCodeForbidden,
				"Operator role not found in token claims. Ensure AuthMiddleware runs first.", ""))
			return
		}

		for _, r := range allowedRoles {
			if actor.Role == r {
				c.Next()
				return
			}
		}
		utils.RespondWithError(c, utils.NewAPIError(http.StatusForbidden, utils.ErrCodeForbidden,
			"You do not have permission to access this resource", "role '"+string(actor.Role)+"' is not allowed"))
	}
}
