// Package security signs and validates operator tokens for the admin API.
package security

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWT validation errors.
var (
	// ErrInvalidToken indicates a token is malformed or fails validation.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken indicates a token has expired.
	ErrExpiredToken = errors.New("token expired")
)

// Operator roles. Viewers may only read; operators and admins may mutate.
const (
	RoleViewer   = "viewer"
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

const issuer = "cardledger"

// OperatorClaims defines JWT claims for card-center operators.
type OperatorClaims struct {
	OperatorID string `json:"operator_id"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// CanMutate reports whether the role may change ledger state.
func (c *OperatorClaims) CanMutate() bool {
	return c != nil && (c.Role == RoleOperator || c.Role == RoleAdmin)
}

// ValidRole reports whether role is a known operator role.
func ValidRole(role string) bool {
	switch role {
	case RoleViewer, RoleOperator, RoleAdmin:
		return true
	}
	return false
}

// GenerateOperatorToken signs an operator JWT with the configured expiry.
func GenerateOperatorToken(secret, operatorID, name, role string, expiry time.Duration) (string, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if !ValidRole(role) {
		return "", errors.New("unknown operator role")
	}
	if strings.TrimSpace(operatorID) == "" {
		return "", errors.New("operator id is required")
	}
	now := time.Now().UTC()
	claims := OperatorClaims{
		OperatorID: operatorID,
		Name:       name,
		Role:       role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   operatorID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseOperatorToken validates an operator JWT and returns its claims.
func ParseOperatorToken(secret string, tokenString string) (*OperatorClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &OperatorClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*OperatorClaims)
	if !ok || !token.Valid || !ValidRole(claims.Role) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
