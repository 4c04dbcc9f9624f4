// Package sitelink builds links to the self-service web portal, optionally
// carrying a short-lived access token so the portal can greet the user
// without asking for the document number again.
package sitelink

import (
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Result is a link ready to be sent to the user.
type Result struct {
	URL       string
	TokenUsed bool
}

// Service signs portal tokens. When token support is disabled, or signing
// fails, GenerateLink degrades to the plain portal URL.
type Service struct {
	baseURL string
	secret  []byte
	ttl     time.Duration
	enabled bool
	logger  *slog.Logger
}

// New builds a link service. Token support is active only when enabled is
// true and secret is non-empty.
func New(baseURL string, secret string, ttl time.Duration, enabled bool, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Service{
		baseURL: baseURL,
		secret:  []byte(secret),
		ttl:     ttl,
		enabled: enabled && secret != "",
		logger:  logger,
	}
}

// GenerateLink returns the portal URL for a user. identifierHash may be empty
// when the user has not shared a document number; the link is then plain.
func (s *Service) GenerateLink(identifierHash string) Result {
	if !s.enabled || identifierHash == "" {
		return Result{URL: s.baseURL}
	}

	token, err := s.signToken(identifierHash)
	if err != nil {
		s.logger.Warn("site link token signing failed, sending plain link", "error", err)
		return Result{URL: s.baseURL}
	}

	u, err := url.Parse(s.baseURL)
	if err != nil {
		s.logger.Warn("invalid portal base URL, sending as-is", "error", err)
		return Result{URL: s.baseURL}
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return Result{URL: u.String(), TokenUsed: true}
}

func (s *Service) signToken(identifierHash string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   identifierHash,
		Issuer:    "viabot",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing portal token: %w", err)
	}
	return signed, nil
}

// VerifyToken checks a portal token and returns the identifier hash it was
// issued for. Used by the devtools surface to sanity-check issued links.
func (s *Service) VerifyToken(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer("viabot"), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("parsing portal token: %w", err)
	}
	return claims.Subject, nil
}
