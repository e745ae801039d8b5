package identity

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// TokenService verifies bearer tokens issued by the session service.
// Issuance lives outside this backend; only verification happens here.
type TokenService struct {
	Secret []byte
	Issuer string
}

// Claims carries the caller's chain address.
type Claims struct {
	Address string `json:"address"`
	jwt.RegisteredClaims
}

func (ts TokenService) Parse(tokenString string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		// enforce HS256
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ts.Secret, nil
	}, jwt.WithIssuer(ts.Issuer))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.Address == "" {
		return nil, fmt.Errorf("token missing address claim")
	}
	return claims, nil
}
