package identity

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// tokenClaims extends the registered claims with the Keycloak username
// field the chat system puts on access tokens.
type tokenClaims struct {
	jwt.RegisteredClaims
	PreferredUsername string `json:"preferred_username"`
}

// DisplayNameFromToken extracts preferred_username from an access token
// WITHOUT verifying the signature. The name only prefills the local
// profile; token validation stays with the auth service, which is the
// party that actually grants permissions.
func DisplayNameFromToken(tokenString string) (string, error) {
	var claims tokenClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, &claims); err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	if claims.PreferredUsername == "" {
		return "", errors.New("token has no preferred_username")
	}
	return claims.PreferredUsername, nil
}
