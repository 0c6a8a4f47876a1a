package rpc

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"deficore/crypto"
)

// AuthConfig configures bearer-token authentication. The token's subject is
// the caller's bech32 address.
type AuthConfig struct {
	HMACSecret string
	Issuer     string
	ClockSkew  time.Duration
}

type Authenticator struct {
	secret []byte
	issuer string
	skew   time.Duration
}

func NewAuthenticator(cfg AuthConfig) *Authenticator {
	skew := cfg.ClockSkew
	if skew <= 0 {
		skew = 2 * time.Minute
	}
	return &Authenticator{
		secret: []byte(strings.TrimSpace(cfg.HMACSecret)),
		issuer: strings.TrimSpace(cfg.Issuer),
		skew:   skew,
	}
}

// Caller resolves the authenticated caller of r. A request without an
// Authorization header yields the zero address and no error.
func (a *Authenticator) Caller(r *http.Request) (crypto.Address, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return crypto.Address{}, nil
	}
	token := extractBearer(header)
	if token == "" {
		return crypto.Address{}, errors.New("malformed authorization header")
	}
	return a.Verify(token)
}

// Verify parses token and returns the caller it names.
func (a *Authenticator) Verify(tokenString string) (crypto.Address, error) {
	if len(a.secret) == 0 {
		return crypto.Address{}, errors.New("auth secret not configured")
	}
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.skew),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return crypto.Address{}, err
	}
	if !token.Valid {
		return crypto.Address{}, errors.New("token invalid")
	}
	caller, err := crypto.DecodeAddress(claims.Subject)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("subject: %w", err)
	}
	return caller, nil
}

// IssueToken signs an HS256 token naming caller as its subject.
func IssueToken(secret, issuer string, caller crypto.Address, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("auth secret not configured")
	}
	if caller.IsZero() {
		return "", errors.New("caller required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   caller.String(),
		Issuer:    strings.TrimSpace(issuer),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(strings.TrimSpace(secret)))
}

func extractBearer(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
