package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// BearerClaims identify a session. The session row stays authoritative:
// a signed token whose session was revoked resolves to no identity.
type BearerClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

type BearerManager struct {
	secret []byte
	issuer string
}

// TokenHeader carries a freshly issued bearer token on sign-in responses.
const TokenHeader = "Set-Auth-Token"

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

func NewBearerManager(secret []byte, issuer string) *BearerManager {
	return &BearerManager{
		secret: secret,
		issuer: issuer,
	}
}

// Issue signs a token for session that expires together with it.
func (m *BearerManager) Issue(session Session) (string, error) {
	if session.ID == "" || session.UserID == "" {
		return "", ErrInvalidToken
	}

	claims := &BearerClaims{
		SessionID: session.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.UserID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

func (m *BearerManager) Validate(tokenString string) (*BearerClaims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, ErrMissingToken
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &BearerClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer))
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*BearerClaims)
	if !ok || !parsed.Valid || claims.SessionID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func TokenFromHeader(authHeader string) (string, error) {
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(parts[1]), nil
}
