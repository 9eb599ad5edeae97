package auth

import (
	"testing"

	"github.com/google/uuid"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewTokenService("test-secret", 1)
	sessionID := uuid.New()

	token, err := svc.Generate(sessionID)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := svc.Validate(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.SessionID != sessionID {
		t.Errorf("session_id = %v, want %v", claims.SessionID, sessionID)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	token, err := NewTokenService("secret-a", 1).Generate(uuid.New())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := NewTokenService("secret-b", 1).Validate(token); err != ErrInvalidToken {
		t.Errorf("validate with wrong secret: %v, want ErrInvalidToken", err)
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	if _, err := NewTokenService("secret", 1).Validate("not-a-token"); err != ErrInvalidToken {
		t.Errorf("validate garbage: %v, want ErrInvalidToken", err)
	}
}
