package passhash

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// signTestToken mints a token directly against the jwt library, standing in
// for whatever out-of-band tool provisions operator bearer tokens: this
// package only validates them.
func signTestToken(t *testing.T, secret string, claims *Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return token
}

func TestJWTManager_ValidateToken(t *testing.T) {
	manager := NewJWTManager(&JWTConfig{SecretKey: "test-secret-key", Issuer: "test-issuer"})

	token := signTestToken(t, "test-secret-key", &Claims{
		UserID:   "user-123",
		Username: "testuser",
		Role:     "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "test-issuer",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(15 * time.Minute)),
		},
	})

	claims, err := manager.ValidateToken(token)
	if err != nil {
		t.Fatalf("failed to validate token: %v", err)
	}
	if claims.UserID != "user-123" {
		t.Errorf("expected userID 'user-123', got %s", claims.UserID)
	}
	if claims.Username != "testuser" {
		t.Errorf("expected username 'testuser', got %s", claims.Username)
	}
	if claims.Role != "admin" {
		t.Errorf("expected role 'admin', got %s", claims.Role)
	}
}

func TestJWTManager_ValidateToken_Invalid(t *testing.T) {
	manager := NewJWTManager(nil)

	_, err := manager.ValidateToken("invalid-token")
	if err == nil {
		t.Error("expected error for invalid token")
	}
}

func TestJWTManager_ValidateToken_Expired(t *testing.T) {
	manager := NewJWTManager(&JWTConfig{SecretKey: "test-secret", Issuer: "test"})

	token := signTestToken(t, "test-secret", &Claims{
		UserID: "user",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "test",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})

	if _, err := manager.ValidateToken(token); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestJWTManager_ValidateToken_WrongSecret(t *testing.T) {
	manager := NewJWTManager(&JWTConfig{SecretKey: "secret-2", Issuer: "test"})

	token := signTestToken(t, "secret-1", &Claims{
		UserID:           "user",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "test"},
	})

	if _, err := manager.ValidateToken(token); err == nil {
		t.Error("expected error for wrong secret")
	}
}

// TestJWTManager_ValidateToken_IssuerMismatch exercises the rotation story:
// a token signed with the current secret but tagged with a stale issuer
// (e.g. minted before SLICECTL_AUTH_SECRET and SLICECTL_AUTH_SECRET_HASH
// were rotated together) must not validate.
func TestJWTManager_ValidateToken_IssuerMismatch(t *testing.T) {
	manager := NewJWTManager(&JWTConfig{SecretKey: "shared-secret", Issuer: "slicectl-auth-v2"})

	token := signTestToken(t, "shared-secret", &Claims{
		UserID:           "user",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "slicectl-auth-v1"},
	})

	if _, err := manager.ValidateToken(token); err == nil {
		t.Error("expected error for mismatched issuer")
	}
}

func TestDefaultJWTConfig(t *testing.T) {
	cfg := DefaultJWTConfig()

	if cfg.SecretKey == "" {
		t.Error("expected default secret key")
	}
	if cfg.Issuer != "slicectl-auth" {
		t.Errorf("expected 'slicectl-auth', got %s", cfg.Issuer)
	}
}

func TestNewJWTManager_NilConfig(t *testing.T) {
	manager := NewJWTManager(nil)
	if manager.config.Issuer != "slicectl-auth" {
		t.Errorf("expected default issuer, got %s", manager.config.Issuer)
	}
}
