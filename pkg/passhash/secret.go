// Package passhash covers the control plane's two secret-handling concerns:
// hashing the shared auth secret at rest, and validating the bearer tokens
// issued against it. Tokens are minted out of band; this package never
// issues or refreshes one.
package passhash

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/argon2"
)

// Argon2Params tunes the Argon2id hash used to store the control plane's
// shared auth secret at rest, so the raw value never needs to sit in
// config alongside the hash used to verify it.
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Params are the parameters used by HashSecret.
func DefaultArgon2Params() *Argon2Params {
	return &Argon2Params{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// HashSecret returns an encoded Argon2id hash of secret in the form
// $argon2id$v=19$m=...,t=...,p=...$salt$hash, suitable for storing in
// config so the plaintext secret only needs to exist at the moment an
// operator sets it.
func HashSecret(secret string) (string, error) {
	return HashSecretWithParams(secret, DefaultArgon2Params())
}

// HashSecretWithParams is HashSecret with explicit Argon2 parameters.
func HashSecretWithParams(secret string, p *Argon2Params) (string, error) {
	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(secret), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)

	encoded := fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		p.Memory, p.Iterations, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
	return encoded, nil
}

// VerifySecret reports whether secret matches an encoded hash produced by
// HashSecret, in constant time.
func VerifySecret(secret, encodedHash string) (bool, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, fmt.Errorf("invalid hash format")
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false, fmt.Errorf("invalid hash parameters: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("invalid hash salt: %w", err)
	}
	wantKey, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("invalid hash key: %w", err)
	}

	gotKey := argon2.IDKey([]byte(secret), salt, iterations, memory, parallelism, uint32(len(wantKey)))
	return subtle.ConstantTimeCompare(gotKey, wantKey) == 1, nil
}

// NewJWTManagerVerified builds a JWTManager only after confirming
// config.SecretKey matches secretHash, catching a rotated or mistyped
// signing secret at startup instead of silently accepting bearer tokens no
// deployment actually trusts.
func NewJWTManagerVerified(config *JWTConfig, secretHash string) (*JWTManager, error) {
	if config == nil {
		config = DefaultJWTConfig()
	}
	ok, err := VerifySecret(config.SecretKey, secretHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify auth secret against its stored hash: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("configured auth secret does not match its stored hash")
	}
	return NewJWTManager(config), nil
}

// JWTConfig configures bearer-token validation. Operator tokens are minted
// out of band (by whatever provisions SLICECTL_AUTH_SECRET); the control
// plane only ever verifies them, so there is no expiry/refresh machinery
// here, only what ValidateToken needs.
type JWTConfig struct {
	// SecretKey is the HMAC signing secret, normally SLICECTL_AUTH_SECRET.
	SecretKey string
	// Issuer must match a validated token's iss claim. Rotating the signing
	// secret (see NewJWTManagerVerified) and bumping Issuer together
	// invalidates every token minted against the previous secret, even one
	// that would otherwise still verify against a reused key.
	Issuer string
}

// DefaultJWTConfig returns a sensible default configuration.
func DefaultJWTConfig() *JWTConfig {
	return &JWTConfig{
		SecretKey: "change-me-in-production",
		Issuer:    "slicectl-auth",
	}
}

// Claims are the custom JWT claims carried by an operator bearer token.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// JWTManager validates bearer tokens presented to the control-plane API.
type JWTManager struct {
	config *JWTConfig
}

// NewJWTManager constructs a JWTManager, falling back to DefaultJWTConfig
// when config is nil.
func NewJWTManager(config *JWTConfig) *JWTManager {
	if config == nil {
		config = DefaultJWTConfig()
	}
	return &JWTManager{config: config}
}

// ValidateToken verifies tokenString's signature and expiry, then checks
// its issuer against the manager's configured Issuer before returning its
// claims.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.config.SecretKey), nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	if m.config.Issuer != "" && claims.Issuer != m.config.Issuer {
		return nil, fmt.Errorf("token issuer %q does not match configured issuer %q", claims.Issuer, m.config.Issuer)
	}

	return claims, nil
}
