package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/xkilldash9x/skilltree/internal/config"
)

// DefaultPlayerID identifies requests that carry no identity when auth is off.
const DefaultPlayerID = "local"

type ctxKey struct{}

// PlayerID returns the identity attached by the auth middleware.
func PlayerID(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok {
		return id
	}
	return DefaultPlayerID
}

// Authenticator resolves the player behind a request.
type Authenticator struct {
	enabled bool
	secret  []byte
	issuer  string
	parser  *jwt.Parser
}

// NewAuthenticator builds an Authenticator from the auth section.
func NewAuthenticator(cfg config.AuthConfig) *Authenticator {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	return &Authenticator{
		enabled: cfg.Enabled,
		secret:  []byte(cfg.Secret),
		issuer:  cfg.Issuer,
		parser:  jwt.NewParser(opts...),
	}
}

// Identify returns the player id for r. With auth enabled only a valid
// bearer token is accepted; otherwise X-Player-ID is trusted.
func (a *Authenticator) Identify(r *http.Request) (string, error) {
	if !a.enabled {
		if id := strings.TrimSpace(r.Header.Get("X-Player-ID")); id != "" {
			return id, nil
		}
		return DefaultPlayerID, nil
	}

	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return "", errors.New("missing bearer token")
	}

	token, err := a.parser.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}

// Sign issues a token for playerID. It backs the CLI's token helper and tests.
func (a *Authenticator) Sign(playerID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   playerID,
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Middleware attaches the player id to the request context or rejects the
// request with 401.
func (a *Authenticator) Middleware(onError func(http.ResponseWriter, int, string, string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := a.Identify(r)
			if err != nil {
				onError(w, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
		})
	}
}
