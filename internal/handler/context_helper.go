package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/uniflow/facilitation-api/internal/middleware"
	"github.com/uniflow/facilitation-api/internal/models"
)

// claimsFromContext returns the verified JWT claims set by the auth
// middleware, or nil when the request was never authenticated.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, ok := c.Get(middleware.ContextUserKey)
	if !ok {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}
