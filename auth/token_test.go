package auth

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"
)

const testSecret = "test-secret-key-for-jwt-signing-at-least-32-bytes-long"

func TestVerifyRoundTrip(t *testing.T) {
	token, err := Sign(testSecret, "storage", "bucket-events", time.Hour)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	claims, err := NewVerifier(testSecret, "storage").Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.Subject != "bucket-events" {
		t.Errorf("unexpected subject %q", claims.Subject)
	}
}

func TestVerifyRejects(t *testing.T) {
	good, _ := Sign(testSecret, "storage", "s", time.Hour)
	otherKey, _ := Sign("another-secret-that-is-also-long-enough-32b", "storage", "s", time.Hour)
	wrongIssuer, _ := Sign(testSecret, "someone-else", "s", time.Hour)

	expired := NewVerifier(testSecret, "storage")
	expired.now = func() time.Time { return time.Now().Add(3 * time.Hour) }

	tests := []struct {
		name  string
		v     *Verifier
		token string
		want  error
	}{
		{"empty", NewVerifier(testSecret, ""), "", ErrInvalidToken},
		{"garbage", NewVerifier(testSecret, ""), "not.a.jwt", ErrInvalidToken},
		{"wrong key", NewVerifier(testSecret, ""), otherKey, ErrInvalidSignature},
		{"wrong issuer", NewVerifier(testSecret, "storage"), wrongIssuer, ErrInvalidIssuer},
		{"expired", expired, good, ErrTokenExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.v.Verify(tt.token); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestVerifyRequest(t *testing.T) {
	v := NewVerifier(testSecret, "")
	token, _ := Sign(testSecret, "", "s", time.Minute)

	r := httptest.NewRequest("POST", "/events", nil)
	if _, err := v.VerifyRequest(r); !errors.Is(err, ErrMissingToken) {
		t.Errorf("expected ErrMissingToken, got %v", err)
	}

	r.Header.Set("Authorization", "Bearer "+token)
	if _, err := v.VerifyRequest(r); err != nil {
		t.Errorf("valid token rejected: %v", err)
	}
}

func TestDisabledVerifierAcceptsEverything(t *testing.T) {
	var nilVerifier *Verifier
	for _, v := range []*Verifier{nilVerifier, NewVerifier("", "")} {
		if v.Enabled() {
			t.Error("verifier without secret must be disabled")
		}
		if _, err := v.VerifyRequest(httptest.NewRequest("POST", "/events", nil)); err != nil {
			t.Errorf("disabled verifier rejected request: %v", err)
		}
	}
}

func TestSignRequiresSecret(t *testing.T) {
	if _, err := Sign("", "", "s", time.Minute); err == nil {
		t.Error("expected error for empty secret")
	}
}
