package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type jwtCustomClaims struct {
	Utorid string `json:"utorid"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed JWT for utorid and returns it with its expiry.
func GenerateToken(secret, utorid string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := &jwtCustomClaims{
		Utorid: utorid,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   utorid,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ParseToken validates the token and returns the embedded utorid.
func ParseToken(secret, tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwtCustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}

	if claims, ok := token.Claims.(*jwtCustomClaims); ok && token.Valid {
		if claims.Utorid == "" {
			return "", errors.New("token has no utorid")
		}
		return claims.Utorid, nil
	}

	return "", jwt.ErrTokenInvalidClaims
}
