package pkg

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

type SessionClaims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// DecodeSessionClaims reads the claims out of the backend session token
// without verifying the signature. The client only needs the identity
// fields; the backend verifies the token on every call anyway.
func DecodeSessionClaims(tokenStr string) (*SessionClaims, error) {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(tokenStr, &SessionClaims{})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims structure")
	}
	return claims, nil
}
