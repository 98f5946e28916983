package auth

import (
	"strings"
	"testing"
	"time"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	codec := &Codec{Secret: "s3cret", Issuer: "scriptd", Audience: "clients", LeewaySeconds: 5}
	now := time.Unix(1_700_000_000, 0).UTC()

	token, err := codec.Encode(Claims{
		"sub":  "alice",
		"iss":  "scriptd",
		"aud":  "clients",
		"iat":  now.Unix(),
		"exp":  now.Add(time.Hour).Unix(),
		"nbf":  now.Unix(),
		"jti":  "abc-123",
		"type": "user",
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	claims, err := codec.Decode(token, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if claims["sub"] != "alice" {
		t.Fatalf("expected sub=alice, got %v", claims["sub"])
	}
}

func TestDecodeRejectsTamperedSignature(t *testing.T) {
	codec := &Codec{Secret: "s3cret"}
	token, err := codec.Encode(Claims{"sub": "alice"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("expected 3 jwt segments, got %d", len(parts))
	}
	// Append a character to the signature segment.
	tampered := parts[0] + "." + parts[1] + "." + parts[2] + "x"

	if _, err := codec.Decode(tampered, time.Now()); err == nil {
		t.Fatalf("expected signature mismatch error")
	}
}

func TestDecodeRejectsWrongSecret(t *testing.T) {
	encoder := &Codec{Secret: "secret-a"}
	decoder := &Codec{Secret: "secret-b"}

	token, err := encoder.Encode(Claims{"sub": "alice"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := decoder.Decode(token, time.Now()); err == nil {
		t.Fatalf("expected decode with wrong secret to fail")
	}
}

func TestDecodeExpiryBoundaryWithLeeway(t *testing.T) {
	codec := &Codec{Secret: "s3cret", LeewaySeconds: 30}
	exp := time.Unix(1_700_000_000, 0).UTC()

	token, err := codec.Encode(Claims{"sub": "alice", "exp": exp.Unix()})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// Exactly at the leeway boundary: still valid.
	if _, err := codec.Decode(token, exp.Add(30*time.Second)); err != nil {
		t.Fatalf("expected token valid at exactly exp+leeway, got %v", err)
	}

	// One second past the boundary: expired.
	if _, err := codec.Decode(token, exp.Add(31*time.Second)); err == nil {
		t.Fatalf("expected token expired past exp+leeway")
	}
}

func TestDecodeRejectsNotYetValid(t *testing.T) {
	codec := &Codec{Secret: "s3cret", LeewaySeconds: 5}
	nbf := time.Unix(1_700_000_000, 0).UTC()

	token, err := codec.Encode(Claims{"sub": "alice", "nbf": nbf.Unix()})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if _, err := codec.Decode(token, nbf.Add(-10*time.Second)); err == nil {
		t.Fatalf("expected not-yet-valid error")
	}
	if _, err := codec.Decode(token, nbf.Add(-2*time.Second)); err != nil {
		t.Fatalf("expected leeway to admit nbf-2s, got %v", err)
	}
}

func TestDecodeValidatesIssuerAndAudience(t *testing.T) {
	codec := &Codec{Secret: "s3cret", Issuer: "scriptd", Audience: "clients"}
	now := time.Now()

	wrongIss, _ := codec.Encode(Claims{"sub": "alice", "iss": "someone-else", "aud": "clients"})
	if _, err := codec.Decode(wrongIss, now); err == nil {
		t.Fatalf("expected invalid iss to be rejected")
	}

	wrongAud, _ := codec.Encode(Claims{"sub": "alice", "iss": "scriptd", "aud": "other"})
	if _, err := codec.Decode(wrongAud, now); err == nil {
		t.Fatalf("expected invalid aud to be rejected")
	}

	arrayAud, _ := codec.Encode(Claims{"sub": "alice", "iss": "scriptd", "aud": []string{"clients", "other"}})
	if _, err := codec.Decode(arrayAud, now); err != nil {
		t.Fatalf("expected array aud containing expected value to be accepted, got %v", err)
	}
}

func TestDecodeRejectsMalformedToken(t *testing.T) {
	codec := &Codec{Secret: "s3cret"}
	if _, err := codec.Decode("not-a-jwt", time.Now()); err == nil {
		t.Fatalf("expected malformed token error")
	}
}
