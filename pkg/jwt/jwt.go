package jwt

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

// Claims is the JWT payload issued by the identity provider.
// Tokens are minted externally; this manager only verifies them
// with the shared HMAC secret.
type Claims struct {
	jwt.RegisteredClaims
	UserID   uint64 `json:"user_id"`
	Nickname string `json:"nickname,omitempty"`
}

// Manager verifies bearer tokens against the identity provider's secret
type Manager struct {
	secretKey []byte
}

// NewManager creates a verifying JWT manager
func NewManager(secret string) *Manager {
	return &Manager{secretKey: []byte(secret)}
}

// VerifyToken parses and validates a bearer token string
func (m *Manager) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secretKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}
