// Package auth issues and validates the bearer tokens protecting every
// endpoint, and owns password hashing.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidToken = errors.New("invalid token")

type claims struct {
	jwt.RegisteredClaims
}

// TokenIssuer signs and parses HS256 access tokens. The secret and expiry
// are fixed at construction.
type TokenIssuer struct {
	secret []byte
	expiry time.Duration
}

func NewTokenIssuer(secret string, expiry time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), expiry: expiry}
}

// Token is the login response payload.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func (t *TokenIssuer) Issue(userID string) (Token, error) {
	now := time.Now()
	c := &claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.expiry)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(t.secret)
	if err != nil {
		return Token{}, err
	}
	return Token{
		AccessToken: signed,
		TokenType:   "bearer",
		ExpiresIn:   int(t.expiry.Seconds()),
	}, nil
}

// Subject validates the token and returns the user id it was issued for.
func (t *TokenIssuer) Subject(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", fmt.Errorf("%w: expired", ErrInvalidToken)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return "", fmt.Errorf("%w: bad signature", ErrInvalidToken)
		case errors.Is(err, jwt.ErrTokenMalformed):
			return "", fmt.Errorf("%w: malformed", ErrInvalidToken)
		default:
			return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}
	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid || c.Subject == "" {
		return "", ErrInvalidToken
	}
	return c.Subject, nil
}

func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
