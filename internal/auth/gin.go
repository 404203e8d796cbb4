package auth

import (
	"fmt"
	"net/http"

	"ms-auction/internal/logger"
	"ms-auction/internal/utils"

	"github.com/gin-gonic/gin"
)

// GinMiddleware is Middleware for the gin-served payment routes.
func GinMiddleware(v Verifier, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		rawToken, err := ExtractTokenFromRequest(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, utils.ErrorResponse(err.Error(), utils.CodeUnauthorized))
			return
		}

		claims, err := v.Verify(c.Request.Context(), rawToken)
		if err != nil {
			log.LogSecurity("TOKEN_REJECTED", fmt.Sprintf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, utils.ErrorResponse("invalid token", utils.CodeUnauthorized))
			return
		}

		c.Request = c.Request.WithContext(WithClaims(c.Request.Context(), claims))
		c.Next()
	}
}

func GinRequireRole(role string, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !HasRole(c.Request.Context(), role) {
			log.LogSecurity("ROLE_DENIED", fmt.Sprintf("user=%s role=%s %s %s", UserID(c.Request.Context()), role, c.Request.Method, c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusForbidden, utils.ErrorResponse("administrator role required", utils.CodeForbidden))
			return
		}
		c.Next()
	}
}
