package admin

import (
	"errors"
	"net/http"
	"strings"

	"github.com/campus-card/cardledger/internal/config"
	"github.com/campus-card/cardledger/internal/security"
	"github.com/gin-gonic/gin"
)

const operatorClaimsKey = "operatorClaims"

// anonymousAdmin is used for every request when authentication is disabled.
var anonymousAdmin = &security.OperatorClaims{OperatorID: "local", Name: "local", Role: security.RoleAdmin}

// operatorAuthMiddleware validates operator JWTs and stores the claims in context.
func operatorAuthMiddleware(jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if jwtCfg.Disabled {
			c.Set(operatorClaimsKey, anonymousAdmin)
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseOperatorToken(jwtCfg.Secret, token)
		if errJWT != nil {
			msg := "invalid token"
			if errors.Is(errJWT, security.ErrExpiredToken) {
				msg = "token expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		c.Set(operatorClaimsKey, claims)
		c.Set("operatorID", claims.OperatorID)
		c.Next()
	}
}

// operatorFromContext returns the claims stored by operatorAuthMiddleware.
func operatorFromContext(c *gin.Context) (*security.OperatorClaims, bool) {
	value, ok := c.Get(operatorClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*security.OperatorClaims)
	return claims, ok && claims != nil
}
