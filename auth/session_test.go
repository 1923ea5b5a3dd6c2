package auth

import (
	"testing"
	"time"
)

func TestSessionRoundTrip(t *testing.T) {
	issuer := newTestIssuer(t)
	token, err := issuer.Issue("U9", "")
	if err != nil {
		t.Fatalf("Issue error = %v", err)
	}
	claims, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("Verify error = %v", err)
	}
	if claims.Subject != "U9" {
		t.Fatalf("subject = %q, want U9", claims.Subject)
	}
}

func TestSessionExpired(t *testing.T) {
	issuer := newTestIssuer(t)
	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := issuer.Issue("U9", "")
	if err != nil {
		t.Fatalf("Issue error = %v", err)
	}
	if _, err := issuer.Verify(token); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestSessionWrongSecret(t *testing.T) {
	issuer := newTestIssuer(t)
	other, err := NewSessionIssuer("another-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewSessionIssuer error = %v", err)
	}
	token, _ := other.Issue("U9", "")
	if _, err := issuer.Verify(token); err == nil {
		t.Fatal("expected foreign token to fail")
	}
}

func TestNewSessionIssuerRequiresSecret(t *testing.T) {
	if _, err := NewSessionIssuer("", time.Hour); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
