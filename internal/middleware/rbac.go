package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/classpoll/internal/model"
	"github.com/stemsi/classpoll/internal/response"
)

// RequireRole checks that the token's role is min or above it in the lattice.
func RequireRole(min model.Role) gin.HandlerFunc {
	code := response.ErrForbidden
	switch min {
	case model.RoleTeacher:
		code = response.ErrTeacherAccessOnly
	case model.RoleAdmin:
		code = response.ErrAdminAccessOnly
	}

	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}
		if !claims.Role.AtLeast(min) {
			response.AbortFail(c, http.StatusForbidden, code)
			return
		}
		c.Next()
	}
}
