// Package auth resolves connection credentials to identities. A connection
// presents a signed bearer token at upgrade time; verification failure refuses
// the connection before any room command is reachable.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mellivod/Lounge/internal/domain"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
	jwt.RegisteredClaims
}

type Config struct {
	SecretKey     string
	TokenDuration time.Duration
	Issuer        string
}

func DefaultConfig(secret string) Config {
	return Config{
		SecretKey:     secret,
		TokenDuration: 24 * time.Hour,
		Issuer:        "lounge",
	}
}

// Authenticator issues and verifies session tokens (HS256).
type Authenticator struct {
	config Config
}

func NewAuthenticator(config Config) *Authenticator {
	return &Authenticator{config: config}
}

// IssueToken mints a session token for an identity resolved by the external
// credential exchange.
func (a *Authenticator) IssueToken(id domain.Identity) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   string(id.UserID),
		Username: id.Username,
		Avatar:   id.Avatar,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.config.Issuer,
			Subject:   string(id.UserID),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.config.TokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.config.SecretKey))
}

// Verify resolves a presented token to an Identity or fails the attempt
// outright. Failure is terminal for the attempt; the client must reconnect
// with a fresh credential.
func (a *Authenticator) Verify(tokenString string) (*domain.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(a.config.SecretKey), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return domain.NewIdentity(domain.UserID(claims.UserID), claims.Username, claims.Avatar)
}
