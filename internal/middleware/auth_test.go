package middleware

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func signedToken(t *testing.T, sub interface{}, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	s, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestParseUserID(t *testing.T) {
	userID, err := ParseUserID(signedToken(t, "user_abc", testSecret), testSecret)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if userID != "user_abc" {
		t.Errorf("expected user_abc, got %q", userID)
	}
}

func TestParseUserIDWrongSecret(t *testing.T) {
	if _, err := ParseUserID(signedToken(t, "user_abc", "other-secret"), testSecret); err == nil {
		t.Error("token signed with another secret must be rejected")
	}
}

func TestParseUserIDMissingSub(t *testing.T) {
	if _, err := ParseUserID(signedToken(t, nil, testSecret), testSecret); err == nil {
		t.Error("token without sub claim must be rejected")
	}
}

func TestParseUserIDGarbage(t *testing.T) {
	if _, err := ParseUserID("not.a.token", testSecret); err == nil {
		t.Error("garbage token must be rejected")
	}
}
