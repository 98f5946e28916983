package auth

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oriys/scriptd/internal/config"
)

// ScopeWildcard satisfies any required scope set.
const ScopeWildcard = "*"

// ErrAdminExchangeNotEnabled means the admin secret is not configured; the
// HTTP surface maps this to 404, distinct from an invalid secret (401).
var ErrAdminExchangeNotEnabled = errors.New("admin token exchange not enabled")

// ErrInvalidAdminSecret means a secret was presented but didn't match.
var ErrInvalidAdminSecret = errors.New("invalid admin secret")

// ErrMisconfigured means auth is enabled but no signing secret is set.
var ErrMisconfigured = errors.New("jwt auth enabled but no secret configured")

// Gate guards Run Manager / Registry operations behind bearer-token scope
// checks, with an admin-secret-to-token exchange for bootstrapping access.
type Gate struct {
	cfg config.JWTConfig
	now func() time.Time
}

// NewGate builds a Gate from JWT settings. now defaults to time.Now.
func NewGate(cfg config.JWTConfig) *Gate {
	return &Gate{cfg: cfg, now: time.Now}
}

func (g *Gate) codec() *Codec {
	return &Codec{
		Secret:        g.cfg.Secret,
		Issuer:        g.cfg.Issuer,
		Audience:      g.cfg.Audience,
		LeewaySeconds: g.cfg.LeewaySeconds,
	}
}

// CheckResult is the outcome of a scope check: exactly one of ok, the HTTP
// status to report, and the claims (when ok) is meaningful.
type CheckResult struct {
	OK     bool
	Status int
	Detail string
	Claims Claims
}

// Check enforces the bearer-token + scope rule described in the component
// design: auth disabled admits unconditionally; otherwise a valid token
// whose scopes satisfy "*" or a superset of required is admitted.
func (g *Gate) Check(r *http.Request, required ...string) CheckResult {
	if !g.cfg.Enabled {
		return CheckResult{OK: true}
	}

	if g.cfg.Secret == "" {
		return CheckResult{Status: http.StatusInternalServerError, Detail: "jwt auth enabled but secret not configured"}
	}

	token := bearerToken(r)
	if token == "" {
		return CheckResult{Status: http.StatusUnauthorized, Detail: "missing bearer token"}
	}

	claims, err := g.codec().Decode(token, g.now())
	if err != nil {
		return CheckResult{Status: http.StatusUnauthorized, Detail: err.Error()}
	}

	scopes := scopesFromClaims(claims)
	if !scopesSatisfy(scopes, required) {
		return CheckResult{Status: http.StatusForbidden, Detail: "insufficient scopes"}
	}

	return CheckResult{OK: true, Claims: claims}
}

// Require wraps an http.HandlerFunc with a scope check; on failure it writes
// the error response and does not call next.
func (g *Gate) Require(next http.HandlerFunc, required ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := g.Check(r, required...)
		if !result.OK {
			writeError(w, result.Status, result.Detail)
			return
		}
		next(w, r)
	}
}

// ExchangeAdminToken trades the shared admin secret for a freshly signed
// token bearing sub=admin, scopes=["*"], a fresh jti, and configured iss/aud.
func (g *Gate) ExchangeAdminToken(secret string) (token string, expiresIn int, err error) {
	if g.cfg.AdminSecret == "" {
		return "", 0, ErrAdminExchangeNotEnabled
	}
	if subtle.ConstantTimeCompare([]byte(secret), []byte(g.cfg.AdminSecret)) != 1 {
		return "", 0, ErrInvalidAdminSecret
	}
	if g.cfg.Secret == "" {
		return "", 0, ErrMisconfigured
	}

	now := g.now().Unix()
	exp := now + int64(g.cfg.ExpireSeconds)
	claims := Claims{
		"sub":    "admin",
		"type":   "admin",
		"scopes": []string{ScopeWildcard},
		"iat":    now,
		"exp":    exp,
		"jti":    uuid.NewString(),
	}
	if g.cfg.Issuer != "" {
		claims["iss"] = g.cfg.Issuer
	}
	if g.cfg.Audience != "" {
		claims["aud"] = g.cfg.Audience
	}

	tok, err := g.codec().Encode(claims)
	if err != nil {
		return "", 0, err
	}
	return tok, g.cfg.ExpireSeconds, nil
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

// scopesFromClaims extracts claims["scopes"] as a set, accepting either a
// single string or an array of strings; any other shape yields an empty set.
func scopesFromClaims(claims Claims) map[string]struct{} {
	set := make(map[string]struct{})
	raw, ok := claims["scopes"]
	if !ok {
		return set
	}
	switch v := raw.(type) {
	case string:
		set[v] = struct{}{}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				set[s] = struct{}{}
			}
		}
	}
	return set
}

func scopesSatisfy(granted map[string]struct{}, required []string) bool {
	if _, ok := granted[ScopeWildcard]; ok {
		return true
	}
	for _, r := range required {
		if _, ok := granted[r]; !ok {
			return false
		}
	}
	return true
}

// writeError writes the standard {"detail": "..."} error body used across
// the HTTP surface.
func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
