package passhash

import (
	"strings"
	"testing"
)

func TestHashSecret(t *testing.T) {
	hash, err := HashSecret("super-secret-value")
	if err != nil {
		t.Fatalf("failed to hash secret: %v", err)
	}

	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Errorf("expected hash to start with $argon2id$, got %s", hash[:20])
	}

	parts := strings.Split(hash, "$")
	if len(parts) != 6 {
		t.Errorf("expected 6 parts, got %d", len(parts))
	}
}

func TestHashSecret_DifferentSalts(t *testing.T) {
	hash1, _ := HashSecret("same-secret")
	hash2, _ := HashSecret("same-secret")

	if hash1 == hash2 {
		t.Error("expected different hashes for the same secret due to random salts")
	}
}

func TestVerifySecret(t *testing.T) {
	hash, err := HashSecret("correct-secret")
	if err != nil {
		t.Fatalf("failed to hash: %v", err)
	}

	valid, err := VerifySecret("correct-secret", hash)
	if err != nil {
		t.Fatalf("failed to verify: %v", err)
	}
	if !valid {
		t.Error("expected correct secret to verify")
	}

	valid, err = VerifySecret("wrong-secret", hash)
	if err != nil {
		t.Fatalf("failed to verify: %v", err)
	}
	if valid {
		t.Error("expected wrong secret to not verify")
	}
}

func TestVerifySecret_InvalidHash(t *testing.T) {
	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"invalid format", "not-a-valid-hash"},
		{"wrong parts", "$argon2id$v=19$m=65536"},
		{"wrong algorithm", "$bcrypt$v=19$m=65536,t=3,p=2$salt$hash"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := VerifySecret("secret", tt.hash)
			if err == nil {
				t.Error("expected error for invalid hash")
			}
		})
	}
}

func TestNewJWTManagerVerified(t *testing.T) {
	hash, err := HashSecret("signing-secret")
	if err != nil {
		t.Fatalf("failed to hash: %v", err)
	}

	mgr, err := NewJWTManagerVerified(&JWTConfig{SecretKey: "signing-secret"}, hash)
	if err != nil {
		t.Fatalf("expected verified manager, got error: %v", err)
	}
	if mgr == nil {
		t.Fatal("expected non-nil manager")
	}

	if _, err := NewJWTManagerVerified(&JWTConfig{SecretKey: "wrong-secret"}, hash); err == nil {
		t.Error("expected error for mismatched secret")
	}
}
