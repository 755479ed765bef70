package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func setSecret(t *testing.T, secret string) {
	t.Helper()
	t.Setenv("JWT_SECRET", secret)
	Init()
}

func TestNewToken_RoundTrip(t *testing.T) {
	setSecret(t, "test-secret")

	token, err := NewToken("user-1", time.Hour)
	if err != nil {
		t.Fatalf("NewToken() failed: %v", err)
	}

	claims, err := ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken() failed: %v", err)
	}

	if claims.UserID != "user-1" {
		t.Errorf("UserID mismatch: got %q, want %q", claims.UserID, "user-1")
	}
	if claims.Subject != "user-1" {
		t.Errorf("Subject mismatch: got %q, want %q", claims.Subject, "user-1")
	}
}

func TestParseToken_Expired(t *testing.T) {
	setSecret(t, "test-secret")

	token, err := NewToken("user-1", -time.Minute)
	if err != nil {
		t.Fatalf("NewToken() failed: %v", err)
	}

	if _, err := ParseToken(token); err == nil {
		t.Error("ParseToken() accepted an expired token")
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	setSecret(t, "test-secret")
	token, err := NewToken("user-1", time.Hour)
	if err != nil {
		t.Fatalf("NewToken() failed: %v", err)
	}

	setSecret(t, "other-secret")
	if _, err := ParseToken(token); err == nil {
		t.Error("ParseToken() accepted a token signed with a different secret")
	}
}

func TestParseToken_RejectsUnsignedToken(t *testing.T) {
	setSecret(t, "test-secret")

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, AppClaims{UserID: "user-1"})
	tokenString, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to build unsigned token: %v", err)
	}

	if _, err := ParseToken(tokenString); err == nil {
		t.Error("ParseToken() accepted a token with alg=none")
	}
}

func TestParseBearer(t *testing.T) {
	setSecret(t, "test-secret")
	token, err := NewToken("user-2", time.Hour)
	if err != nil {
		t.Fatalf("NewToken() failed: %v", err)
	}

	claims, err := ParseBearer("Bearer " + token)
	if err != nil {
		t.Fatalf("ParseBearer() failed: %v", err)
	}
	if claims.UserID != "user-2" {
		t.Errorf("UserID mismatch: got %q, want %q", claims.UserID, "user-2")
	}
}

func TestParseBearer_BadScheme(t *testing.T) {
	setSecret(t, "test-secret")

	for _, header := range []string{"", "Basic abc", "Bearer", "Bearertoken"} {
		if _, err := ParseBearer(header); err == nil {
			t.Errorf("ParseBearer(%q) accepted a malformed header", header)
		}
	}
}
