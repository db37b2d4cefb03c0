package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNoSession is returned by a SessionResolver when the session does not
	// exist or has expired.
	ErrNoSession = errors.New("no active session")
	// ErrUntrustedOrigin rejects browser requests sent from an origin other
	// than the configured trusted ones.
	ErrUntrustedOrigin = errors.New("untrusted origin")
)

// SessionResolver loads the identity behind a session. Implementations may
// extend the session's expiry and report it through Context.Refreshed.
type SessionResolver interface {
	SessionByToken(ctx context.Context, token string) (Context, error)
	SessionByID(ctx context.Context, id string) (Context, error)
}

// Gate turns request credentials into a Context. It performs no
// authorization of its own; procedures decide what an empty Context may do.
type Gate struct {
	resolver SessionResolver
	cookies  *CookieManager
	bearer   *BearerManager
	trusted  map[string]struct{}
}

func NewGate(resolver SessionResolver, cookies *CookieManager, bearer *BearerManager, trustedOrigins []string) *Gate {
	trusted := make(map[string]struct{}, len(trustedOrigins))
	for _, origin := range trustedOrigins {
		trusted[origin] = struct{}{}
	}
	return &Gate{
		resolver: resolver,
		cookies:  cookies,
		bearer:   bearer,
		trusted:  trusted,
	}
}

// TrustedOrigin reports whether origin exactly matches a trusted origin.
func (g *Gate) TrustedOrigin(origin string) bool {
	_, ok := g.trusted[origin]
	return ok
}

// CheckOrigin rejects requests whose Origin header names an untrusted origin.
// Requests without an Origin header (same-origin navigation, CLI clients)
// pass.
func (g *Gate) CheckOrigin(r *http.Request) error {
	origin := r.Header.Get("Origin")
	if origin == "" || g.TrustedOrigin(origin) {
		return nil
	}
	return ErrUntrustedOrigin
}

// Resolve builds the Context for r. Missing, malformed, revoked and expired
// credentials all yield the empty Context with a nil error; only an untrusted
// origin or a store failure is an error.
func (g *Gate) Resolve(r *http.Request) (Context, error) {
	if err := g.CheckOrigin(r); err != nil {
		return Context{}, err
	}

	ctx := r.Context()

	if header := r.Header.Get("Authorization"); header != "" {
		if raw, err := TokenFromHeader(header); err == nil {
			claims, err := g.bearer.Validate(raw)
			if err != nil {
				return Context{}, nil
			}
			ac, err := g.resolver.SessionByID(ctx, claims.SessionID)
			if err != nil {
				return emptyOnNoSession(err)
			}
			if ac.UserID() != claims.Subject {
				return Context{}, nil
			}
			ac.Source = SourceBearer
			return ac, nil
		}
	}

	token, err := g.cookies.Token(r)
	if err != nil {
		return Context{}, nil
	}
	ac, err := g.resolver.SessionByToken(ctx, token)
	if err != nil {
		return emptyOnNoSession(err)
	}
	ac.Source = SourceCookie
	return ac, nil
}

// RefreshCookie re-issues the session cookie after a sliding refresh so the
// browser's copy expires together with the server-side session.
func (g *Gate) RefreshCookie(w http.ResponseWriter, ac Context) {
	if ac.Refreshed && ac.Source == SourceCookie && ac.Session != nil {
		g.cookies.Set(w, ac.Session.Token, ac.Session.ExpiresAt)
	}
}

func emptyOnNoSession(err error) (Context, error) {
	if errors.Is(err, ErrNoSession) {
		return Context{}, nil
	}
	return Context{}, fmt.Errorf("resolve session: %w", err)
}
