package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"stakeledger/crypto"
)

// ScopeAdmin grants access to the operator routes.
const ScopeAdmin = "admin"

// AuthConfig configures bearer token validation.
type AuthConfig struct {
	HMACSecret string
	Issuer     string
	Audience   string
	ScopeClaim string
	ClockSkew  time.Duration
}

// Principal is the authenticated caller. Address is decoded from the token
// subject and is the participant every mutating operation acts for.
type Principal struct {
	Address crypto.Address
	Scopes  []string
}

// HasScope reports whether the principal was granted scope.
func (p *Principal) HasScope(scope string) bool {
	if p == nil {
		return false
	}
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

type principalContextKey struct{}

// PrincipalFromContext returns the caller attached by the auth middleware.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*Principal)
	return p, ok && p != nil
}

// Authenticator validates HS256 bearer tokens.
type Authenticator struct {
	cfg    AuthConfig
	secret []byte
	logger *slog.Logger
}

// NewAuthenticator validates cfg and returns an authenticator.
func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) (*Authenticator, error) {
	secret := strings.TrimSpace(cfg.HMACSecret)
	if secret == "" {
		return nil, errors.New("auth secret not configured")
	}
	if cfg.ScopeClaim == "" {
		cfg.ScopeClaim = "scope"
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{cfg: cfg, secret: []byte(secret), logger: logger}, nil
}

// Middleware rejects requests without a valid token, or lacking any of the
// required scopes.
func (a *Authenticator) Middleware(requiredScopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := extractBearer(r.Header.Get("Authorization"))
			if tokenString == "" {
				writeProblem(w, http.StatusUnauthorized, "missing bearer token", 0, "")
				return
			}
			principal, err := a.Authenticate(tokenString)
			if err != nil {
				a.logger.Warn("token validation failed", "error", err, "route", r.URL.Path)
				writeProblem(w, http.StatusUnauthorized, "invalid token", 0, "")
				return
			}
			for _, scope := range requiredScopes {
				if !principal.HasScope(scope) {
					writeProblem(w, http.StatusForbidden, "insufficient scope", 0, "")
					return
				}
			}
			ctx := context.WithValue(r.Context(), principalContextKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Authenticate parses and validates tokenString.
func (a *Authenticator) Authenticate(tokenString string) (*Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(a.cfg.ClockSkew),
		jwt.WithExpirationRequired(),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	if a.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(a.cfg.Audience))
	}
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token invalid")
	}
	subject, err := claims.GetSubject()
	if err != nil {
		return nil, err
	}
	addr, err := crypto.DecodeAddressWithPrefix(strings.TrimSpace(subject), crypto.ParticipantPrefix)
	if err != nil {
		return nil, fmt.Errorf("subject: %w", err)
	}
	return &Principal{Address: addr, Scopes: extractScopes(claims, a.cfg.ScopeClaim)}, nil
}

// TokenParams describes a token minted by IssueToken.
type TokenParams struct {
	Subject  crypto.Address
	Scopes   []string
	Issuer   string
	Audience string
	TTL      time.Duration
}

// IssueToken signs an HS256 token for params. It backs the operator CLI and
// tests; production deployments are expected to mint tokens elsewhere with
// the same secret.
func IssueToken(secret string, params TokenParams, now time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("auth secret not configured")
	}
	if params.Subject.IsZero() {
		return "", errors.New("token subject required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	claims := jwt.MapClaims{
		"sub": params.Subject.String(),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if len(params.Scopes) > 0 {
		claims["scope"] = strings.Join(params.Scopes, " ")
	}
	if params.Issuer != "" {
		claims["iss"] = params.Issuer
	}
	if params.Audience != "" {
		claims["aud"] = params.Audience
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(strings.TrimSpace(secret)))
}

func extractBearer(header string) string {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func extractScopes(claims jwt.MapClaims, scopeClaim string) []string {
	raw, ok := claims[scopeClaim]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case string:
		return strings.Fields(v)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			if s, ok := entry.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
