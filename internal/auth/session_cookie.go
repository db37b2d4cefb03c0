package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"
)

const sessionTokenBytes = 32

var ErrInvalidCookie = errors.New("invalid session cookie")

// NewSessionToken returns a random opaque session token.
func NewSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// CookieManager reads and writes the signed session cookie. The cookie value
// is "<token>.<base64url HMAC-SHA256(token)>".
type CookieManager struct {
	name string
	key  []byte
}

func NewCookieManager(name string, key []byte) *CookieManager {
	return &CookieManager{name: name, key: key}
}

func (m *CookieManager) Name() string {
	return m.name
}

func (m *CookieManager) Sign(token string) string {
	return token + "." + m.mac(token)
}

// Verify returns the session token carried by a signed cookie value.
func (m *CookieManager) Verify(value string) (string, error) {
	idx := strings.LastIndexByte(value, '.')
	if idx <= 0 || idx == len(value)-1 {
		return "", ErrInvalidCookie
	}
	token, sig := value[:idx], value[idx+1:]
	if !hmac.Equal([]byte(sig), []byte(m.mac(token))) {
		return "", ErrInvalidCookie
	}
	return token, nil
}

// Token extracts and verifies the session token from r.
func (m *CookieManager) Token(r *http.Request) (string, error) {
	c, err := r.Cookie(m.name)
	if err != nil {
		return "", ErrMissingToken
	}
	return m.Verify(c.Value)
}

// Set writes the session cookie. A zero expires writes a browser-session
// cookie. Browser clients call the API cross-site with credentials, so the
// cookie must be SameSite=None and therefore Secure.
func (m *CookieManager) Set(w http.ResponseWriter, token string, expires time.Time) {
	cookie := &http.Cookie{
		Name:     m.name,
		Value:    m.Sign(token),
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	}
	if !expires.IsZero() {
		cookie.Expires = expires.UTC()
		cookie.MaxAge = int(time.Until(expires).Seconds())
	}
	http.SetCookie(w, cookie)
}

func (m *CookieManager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}

func (m *CookieManager) mac(token string) string {
	h := hmac.New(sha256.New, m.key)
	h.Write([]byte(token))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
