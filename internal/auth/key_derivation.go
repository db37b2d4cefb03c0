package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// DerivedKeyLength is the length of derived keys in bytes (32 bytes = 256 bits for HMAC-SHA256)
	DerivedKeyLength = 32

	purposeSessionCookie = "siteflow-session-cookie-v1"
	purposeBearerJWT     = "siteflow-bearer-jwt-v1"
)

// ErrInvalidMasterSecret is returned when the master secret is invalid
var ErrInvalidMasterSecret = errors.New("master secret cannot be empty")

// DeriveKey derives a key from a master secret using HKDF-SHA256.
// Keys derived with different purpose strings are independent of each other,
// so one BETTER_AUTH_SECRET can sign both cookies and bearer tokens.
func DeriveKey(masterSecret []byte, purpose string) ([]byte, error) {
	if len(masterSecret) == 0 {
		return nil, ErrInvalidMasterSecret
	}

	// salt=nil is acceptable per RFC 5869 (defaults to zeros)
	reader := hkdf.New(sha256.New, masterSecret, nil, []byte(purpose))

	derivedKey := make([]byte, DerivedKeyLength)
	if _, err := io.ReadFull(reader, derivedKey); err != nil {
		return nil, err
	}
	return derivedKey, nil
}

// DeriveSessionCookieKey derives the HMAC key used to sign session cookies.
func DeriveSessionCookieKey(masterSecret []byte) ([]byte, error) {
	return DeriveKey(masterSecret, purposeSessionCookie)
}

// DeriveBearerKey derives the key used to sign bearer JWTs.
func DeriveBearerKey(masterSecret []byte) ([]byte, error) {
	return DeriveKey(masterSecret, purposeBearerJWT)
}

// NewManagers builds the cookie and bearer managers from the master secret.
func NewManagers(masterSecret, cookieName, issuer string) (*CookieManager, *BearerManager, error) {
	cookieKey, err := DeriveSessionCookieKey([]byte(masterSecret))
	if err != nil {
		return nil, nil, fmt.Errorf("derive session cookie key: %w", err)
	}
	bearerKey, err := DeriveBearerKey([]byte(masterSecret))
	if err != nil {
		return nil, nil, fmt.Errorf("derive bearer key: %w", err)
	}
	return NewCookieManager(cookieName, cookieKey), NewBearerManager(bearerKey, issuer), nil
}
