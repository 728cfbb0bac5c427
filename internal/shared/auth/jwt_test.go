package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestSignAndVerify(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	signer, err := NewSigner("s3cret", time.Hour, func() time.Time { return now })
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	token, err := signer.Sign("owner")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	claims, err := signer.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "owner" || claims.Role != "admin" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	signer, _ := NewSigner("s3cret", time.Minute, func() time.Time { return now })
	token, err := signer.Sign("owner")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := signer.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	a, _ := NewSigner("secret-a", time.Hour, nil)
	b, _ := NewSigner("secret-b", time.Hour, nil)
	token, err := a.Sign("owner")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := b.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsNoneAlgorithm(t *testing.T) {
	signer, _ := NewSigner("s3cret", time.Hour, nil)
	tok := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "owner",
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	raw, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := signer.Verify(raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestNewSignerRequiresSecret(t *testing.T) {
	if _, err := NewSigner("  ", 0, nil); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}

func TestSignRequiresAdminID(t *testing.T) {
	signer, _ := NewSigner("s3cret", 0, nil)
	if _, err := signer.Sign(" "); err == nil {
		t.Fatalf("expected error for empty admin id")
	}
}
