package auth

import (
	"testing"

	"github.com/fieldmedic/paramedic-assistant/internal/config"
)

func TestJWTRoundTrip(t *testing.T) {
	config.AppConfig.JWTSecret = "test-secret"

	token, err := GenerateJWT("medic@example.com")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	email, err := ValidateJWT(token)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if email != "medic@example.com" {
		t.Fatalf("unexpected subject: %q", email)
	}

	if _, err := ValidateJWT(token + "tampered"); err == nil {
		t.Fatal("tampered token validated")
	}
}

func TestPasswordHashing(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if hash == "s3cret" {
		t.Fatal("password stored in the clear")
	}
	if !CheckPasswordHash("s3cret", hash) {
		t.Fatal("correct password rejected")
	}
	if CheckPasswordHash("wrong", hash) {
		t.Fatal("wrong password accepted")
	}
}
