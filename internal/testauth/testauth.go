// Package testauth builds an in-memory server fixture for tests: a migrated
// SQLite store, the user and todo services, and an auth gate keyed with a
// well-known development secret.
//
// Never import it from production code.
package testauth

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/siteflow/server/internal/auth"
	"github.com/siteflow/server/internal/config"
	"github.com/siteflow/server/internal/domain/todos"
	"github.com/siteflow/server/internal/domain/users"
	"github.com/siteflow/server/internal/procedure"
	"github.com/siteflow/server/internal/storage/sqlite"
)

const (
	// Secret is the development signing secret shared by every fixture.
	Secret = "siteflow-development-secret-do-not-use"
	// TrustedOrigin is the fixture's CORS origin.
	TrustedOrigin = "http://localhost:5173"
	// Password is the password of users created through SignUp.
	Password = "correct horse battery"
)

type Fixture struct {
	Config  config.Config
	Store   *sqlite.Store
	Users   *users.Service
	Todos   *todos.Service
	Router  *procedure.Router
	Cookies *auth.CookieManager
	Bearer  *auth.BearerManager
	Gate    *auth.Gate
}

// Config returns the configuration the fixture is built from.
func Config() config.Config {
	cfg := config.Defaults()
	cfg.Environment = config.EnvTest
	cfg.Database.URL = "sqlite::memory:"
	cfg.Auth.Secret = Secret
	cfg.CORS.Origin = TrustedOrigin
	return cfg
}

// New opens a fresh in-memory store. It is closed when the test ends.
func New(t testing.TB) *Fixture {
	t.Helper()
	cfg := Config()

	store, err := sqlite.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := sqlite.MigrateUp(store.DB()); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}

	cookies, bearer, err := auth.NewManagers(cfg.Auth.Secret, cfg.Auth.CookieName, cfg.Auth.BaseURL)
	if err != nil {
		t.Fatalf("auth managers: %v", err)
	}

	logger := zerolog.Nop()
	userSvc := users.NewService(store.Users(), users.Options{
		SessionTTL: cfg.Auth.SessionTTL,
		UpdateAge:  cfg.Auth.SessionUpdateAge,
	}, logger)
	todoSvc := todos.NewService(store.Todos(), logger)

	return &Fixture{
		Config:  cfg,
		Store:   store,
		Users:   userSvc,
		Todos:   todoSvc,
		Router:  todos.NewRouter(todoSvc),
		Cookies: cookies,
		Bearer:  bearer,
		Gate:    auth.NewGate(userSvc, cookies, bearer, cfg.TrustedOrigins()),
	}
}

// Login is a signed-in user with both credential forms ready to attach.
type Login struct {
	User    auth.User
	Session auth.Session
	Cookie  *http.Cookie
	Bearer  string
}

// Authorize adds the session cookie to r.
func (l Login) Authorize(r *http.Request) {
	r.AddCookie(l.Cookie)
}

// AuthorizeBearer adds the Authorization header to r.
func (l Login) AuthorizeBearer(r *http.Request) {
	r.Header.Set("Authorization", "Bearer "+l.Bearer)
}

// SignUp registers email with Password and returns its first session.
func (f *Fixture) SignUp(t testing.TB, email string) Login {
	t.Helper()
	user, session, err := f.Users.SignUp(context.Background(), users.SignUpParams{
		Name:     "Test User",
		Email:    email,
		Password: Password,
	}, users.ClientInfo{IPAddress: "127.0.0.1", UserAgent: "testauth"})
	if err != nil {
		t.Fatalf("sign up %s: %v", email, err)
	}
	token, err := f.Bearer.Issue(session)
	if err != nil {
		t.Fatalf("issue bearer: %v", err)
	}
	return Login{
		User:    user,
		Session: session,
		Cookie: &http.Cookie{
			Name:    f.Cookies.Name(),
			Value:   f.Cookies.Sign(session.Token),
			Expires: session.ExpiresAt,
		},
		Bearer: token,
	}
}

// ExpireSession moves the session's expiry into the past.
func (f *Fixture) ExpireSession(t testing.TB, session auth.Session) {
	t.Helper()
	past := time.Now().Add(-time.Minute)
	if err := f.Store.Users().ExtendSession(context.Background(), session.ID, past, past); err != nil {
		t.Fatalf("expire session: %v", err)
	}
}
