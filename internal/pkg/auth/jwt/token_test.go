package jwt

import (
	"testing"
	"time"
)

const testSecret = "test-secret"

func TestGenerateAndParseToken(t *testing.T) {
	payload := &Payload{
		UserID:   "alice",
		Name:     "Alice",
		Language: "en",
	}

	tokenString, err := GenerateToken(payload, testSecret, SessionExpiration)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	parsed, err := ParseToken(tokenString, testSecret)
	if err != nil {
		t.Fatalf("failed to parse token: %v", err)
	}

	if parsed.UserID != "alice" || parsed.Name != "Alice" || parsed.Language != "en" {
		t.Errorf("claims did not survive the round trip: %+v", parsed)
	}
	if parsed.Issuer != TokenIssuer {
		t.Errorf("expected issuer %q, got %q", TokenIssuer, parsed.Issuer)
	}
}

func TestParseTokenWrongSecret(t *testing.T) {
	tokenString, err := GenerateToken(&Payload{UserID: "alice"}, testSecret, SessionExpiration)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	if _, err := ParseToken(tokenString, "other-secret"); err == nil {
		t.Error("expected parse failure for wrong secret")
	}
}

func TestParseTokenExpired(t *testing.T) {
	tokenString, err := GenerateToken(&Payload{UserID: "alice"}, testSecret, -time.Minute)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	if _, err := ParseToken(tokenString, testSecret); err == nil {
		t.Error("expected parse failure for expired token")
	}
}

func TestParseTokenGarbage(t *testing.T) {
	if _, err := ParseToken("not.a.token", testSecret); err == nil {
		t.Error("expected parse failure for malformed token")
	}
}
