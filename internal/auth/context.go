package auth

import (
	"context"
	"time"
)

// User is the identity view of an account holder as exposed by the auth
// endpoints. Field names follow the wire shape browser clients expect.
type User struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"emailVerified"`
	Image         *string   `json:"image"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Session is a server-side login. Token is the opaque value carried by the
// session cookie; it is never derived from user data.
type Session struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
	IPAddress string    `json:"ipAddress"`
	UserAgent string    `json:"userAgent"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Expired reports whether the session is no longer valid at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Source identifies where a request's credential came from.
type Source string

const (
	SourceNone   Source = ""
	SourceCookie Source = "cookie"
	SourceBearer Source = "bearer"
)

// Context is the request-scoped identity handed to every procedure. The zero
// value is the unauthenticated context.
type Context struct {
	User    *User
	Session *Session
	Source  Source
	// Refreshed is set when resolving the session extended its expiry.
	Refreshed bool
}

func (c Context) Authenticated() bool {
	return c.User != nil && c.Session != nil
}

func (c Context) UserID() string {
	if c.User == nil {
		return ""
	}
	return c.User.ID
}

type contextKey struct{}

// WithContext stores ac on ctx.
func WithContext(ctx context.Context, ac Context) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

// FromContext returns the identity stored on ctx, or the empty context.
func FromContext(ctx context.Context) Context {
	if ctx == nil {
		return Context{}
	}
	ac, _ := ctx.Value(contextKey{}).(Context)
	return ac
}
