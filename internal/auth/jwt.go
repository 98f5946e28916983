package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// JWTError is the single error kind raised by the codec; the Auth Gate maps
// every instance of it to HTTP 401 regardless of the specific reason.
type JWTError struct {
	Reason string
}

func (e *JWTError) Error() string { return "invalid token: " + e.Reason }

func jwtErrf(format string, args ...any) error {
	return &JWTError{Reason: fmt.Sprintf(format, args...)}
}

// Claims is a JWT payload: an open map so callers can stash arbitrary
// application claims (scopes, sub, jti, ...) alongside the registered ones.
type Claims map[string]any

// Codec encodes and verifies HS256 JWTs against a single secret.
type Codec struct {
	Secret        string
	Issuer        string
	Audience      string
	LeewaySeconds int
}

type jwtHeader struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

// Encode produces a signed HS256 token for the given claims.
func (c *Codec) Encode(claims Claims) (string, error) {
	header := jwtHeader{Alg: "HS256", Typ: "JWT"}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", err
	}
	payloadJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	headerB64 := b64urlEncode(headerJSON)
	payloadB64 := b64urlEncode(payloadJSON)
	signingInput := headerB64 + "." + payloadB64
	sig := signHS256([]byte(c.Secret), signingInput)

	return signingInput + "." + b64urlEncode(sig), nil
}

// Decode verifies the token's signature and structural/claim validity and
// returns its claims. now is injectable for deterministic tests; callers
// should pass time.Now() in production.
func (c *Codec) Decode(token string, now time.Time) (Claims, error) {
	parts := splitJWT(token)
	if parts == nil {
		return nil, jwtErrf("malformed token")
	}
	headerB64, payloadB64, sigB64 := parts[0], parts[1], parts[2]

	headerBytes, err := b64urlDecode(headerB64)
	if err != nil {
		return nil, jwtErrf("bad header encoding")
	}
	var header jwtHeader
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, jwtErrf("bad header json")
	}
	if header.Alg != "HS256" {
		return nil, jwtErrf("unsupported alg %q", header.Alg)
	}

	payloadBytes, err := b64urlDecode(payloadB64)
	if err != nil {
		return nil, jwtErrf("bad payload encoding")
	}
	sig, err := b64urlDecode(sigB64)
	if err != nil {
		return nil, jwtErrf("bad signature encoding")
	}

	signingInput := headerB64 + "." + payloadB64
	expected := signHS256([]byte(c.Secret), signingInput)
	if !hmac.Equal(sig, expected) {
		return nil, jwtErrf("signature mismatch")
	}

	var claims Claims
	if err := json.Unmarshal(payloadBytes, &claims); err != nil {
		return nil, jwtErrf("bad claims json")
	}

	if err := c.validateClaims(claims, now); err != nil {
		return nil, err
	}
	return claims, nil
}

func (c *Codec) validateClaims(claims Claims, now time.Time) error {
	leeway := int64(c.LeewaySeconds)
	nowUnix := now.Unix()

	if raw, ok := claims["exp"]; ok {
		exp, ok := claimInt(raw)
		if !ok {
			return jwtErrf("invalid exp claim")
		}
		if nowUnix > exp+leeway {
			return jwtErrf("token expired")
		}
	}

	if raw, ok := claims["nbf"]; ok {
		nbf, ok := claimInt(raw)
		if !ok {
			return jwtErrf("invalid nbf claim")
		}
		if nowUnix+leeway < nbf {
			return jwtErrf("token not yet valid")
		}
	}

	if c.Issuer != "" {
		iss, _ := claims["iss"].(string)
		if iss != c.Issuer {
			return jwtErrf("invalid iss claim")
		}
	}

	if c.Audience != "" {
		aud, present := claims["aud"]
		if !present {
			return jwtErrf("missing aud claim")
		}
		if !audienceMatches(aud, c.Audience) {
			return jwtErrf("invalid aud claim")
		}
	}

	return nil
}

// audienceMatches: equal if aud is a string, contains check if an array,
// reject for any other shape.
func audienceMatches(aud any, expected string) bool {
	switch v := aud.(type) {
	case string:
		return v == expected
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == expected {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func claimInt(raw any) (int64, bool) {
	switch v := raw.(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}

func signHS256(secret []byte, input string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(input))
	return mac.Sum(nil)
}

func splitJWT(token string) []string {
	parts := make([]string, 0, 3)
	start := 0
	for i := 0; i < len(token); i++ {
		if token[i] == '.' {
			parts = append(parts, token[start:i])
			start = i + 1
		}
	}
	parts = append(parts, token[start:])
	if len(parts) != 3 {
		return nil
	}
	return parts
}

func b64urlEncode(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}

func b64urlDecode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}
