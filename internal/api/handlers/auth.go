package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/siteflow/server/internal/api/middleware"
	"github.com/siteflow/server/internal/audit"
	"github.com/siteflow/server/internal/auth"
	"github.com/siteflow/server/internal/domain/users"
	"github.com/siteflow/server/internal/procedure"
)

// Error codes of the auth endpoints. They follow the browser auth client's
// vocabulary rather than the procedure taxonomy.
const (
	CodeInvalidOrigin          = "INVALID_ORIGIN"
	CodeValidation             = "VALIDATION_ERROR"
	CodeInvalidEmailOrPassword = "INVALID_EMAIL_OR_PASSWORD"
	CodeUserAlreadyExists      = "USER_ALREADY_EXISTS"
	CodeTooManyRequests        = "TOO_MANY_REQUESTS"
	CodeNotFound               = "NOT_FOUND"
	CodeInternalServerError    = "INTERNAL_SERVER_ERROR"
	CodePayloadTooLarge        = "PAYLOAD_TOO_LARGE"
	CodeFailedToCreateSession  = "FAILED_TO_CREATE_SESSION"
)

// AuthError is the body of every failed auth response.
type AuthError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Issues  []procedure.Issue `json:"issues,omitempty"`
}

// SessionResponse is returned by get-session for a signed-in caller.
type SessionResponse struct {
	Session auth.Session `json:"session"`
	User    auth.User    `json:"user"`
}

type signUpResponse struct {
	Token string    `json:"token"`
	User  auth.User `json:"user"`
}

type signInResponse struct {
	Redirect bool      `json:"redirect"`
	Token    string    `json:"token"`
	User     auth.User `json:"user"`
}

type signInRequest struct {
	users.SignInParams
	// RememberMe defaults to true. When false the cookie lasts for the
	// browser session only; the server-side session keeps its TTL.
	RememberMe *bool `json:"rememberMe"`
}

type AuthHandler struct {
	prefix         string
	users          *users.Service
	gate           *auth.Gate
	cookies        *auth.CookieManager
	bearer         *auth.BearerManager
	limiter        *middleware.RateLimiter
	audit          *audit.Logger
	exposeInternal bool
}

type AuthHandlerConfig struct {
	// Prefix is the mount path, e.g. "/api/auth".
	Prefix         string
	Users          *users.Service
	Gate           *auth.Gate
	Cookies        *auth.CookieManager
	Bearer         *auth.BearerManager
	Limiter        *middleware.RateLimiter
	Audit          *audit.Logger
	ExposeInternal bool
}

func NewAuthHandler(cfg AuthHandlerConfig) *AuthHandler {
	if cfg.Audit == nil {
		cfg.Audit = audit.NewLogger(zerolog.Nop())
	}
	return &AuthHandler{
		prefix:         strings.TrimSuffix(cfg.Prefix, "/"),
		users:          cfg.Users,
		gate:           cfg.Gate,
		cookies:        cfg.Cookies,
		bearer:         cfg.Bearer,
		limiter:        cfg.Limiter,
		audit:          cfg.Audit,
		exposeInternal: cfg.ExposeInternal,
	}
}

func (h *AuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rel := strings.TrimPrefix(r.URL.Path, h.prefix)

	if r.Method == http.MethodPost {
		if err := h.gate.CheckOrigin(r); err != nil {
			writeAuthError(w, http.StatusForbidden, AuthError{Code: CodeInvalidOrigin, Message: "Invalid origin"})
			return
		}
	}

	switch {
	case r.Method == http.MethodPost && rel == "/sign-up/email":
		h.signUp(w, r)
	case r.Method == http.MethodPost && rel == "/sign-in/email":
		h.signIn(w, r)
	case r.Method == http.MethodPost && rel == "/sign-out":
		h.signOut(w, r)
	case r.Method == http.MethodGet && rel == "/get-session":
		h.getSession(w, r)
	case r.Method == http.MethodGet && rel == "/ok":
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	default:
		writeAuthError(w, http.StatusNotFound, AuthError{Code: CodeNotFound, Message: "Not found"})
	}
}

func (h *AuthHandler) signUp(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r) {
		return
	}
	var params users.SignUpParams
	if !h.decode(w, r, &params) {
		return
	}

	user, session, err := h.users.SignUp(r.Context(), params, h.clientInfo(r))
	if err != nil {
		if errors.Is(err, users.ErrEmailTaken) {
			h.audit.LogFailure(audit.ActionSignUp, params.Email, h.clientIP(r), r.UserAgent(), "email taken")
			writeAuthError(w, http.StatusUnprocessableEntity, AuthError{Code: CodeUserAlreadyExists, Message: "User already exists"})
			return
		}
		h.fail(w, r, err)
		return
	}

	token, ok := h.startSession(w, r, session, true)
	if !ok {
		return
	}
	h.audit.LogSuccess(audit.ActionSignUp, user.ID, user.Email, session.IPAddress, session.UserAgent)
	writeJSON(w, http.StatusOK, signUpResponse{Token: token, User: user})
}

func (h *AuthHandler) signIn(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r) {
		return
	}
	var req signInRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, session, err := h.users.SignIn(r.Context(), req.SignInParams, h.clientInfo(r))
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			h.audit.LogFailure(audit.ActionSignIn, req.Email, h.clientIP(r), r.UserAgent(), "invalid credentials")
			writeAuthError(w, http.StatusUnauthorized, AuthError{Code: CodeInvalidEmailOrPassword, Message: "Invalid email or password"})
			return
		}
		h.fail(w, r, err)
		return
	}

	rememberMe := req.RememberMe == nil || *req.RememberMe
	token, ok := h.startSession(w, r, session, rememberMe)
	if !ok {
		return
	}
	h.audit.LogSuccess(audit.ActionSignIn, user.ID, user.Email, session.IPAddress, session.UserAgent)
	writeJSON(w, http.StatusOK, signInResponse{Redirect: false, Token: token, User: user})
}

// signOut always succeeds; a caller without a session has nothing to revoke.
func (h *AuthHandler) signOut(w http.ResponseWriter, r *http.Request) {
	ac, err := h.gate.Resolve(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if ac.Authenticated() {
		if err := h.users.SignOut(r.Context(), ac.Session.ID); err != nil {
			h.fail(w, r, err)
			return
		}
		h.audit.LogSuccess(audit.ActionSignOut, ac.UserID(), ac.User.Email, h.clientIP(r), r.UserAgent())
	}
	h.cookies.Clear(w)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AuthHandler) getSession(w http.ResponseWriter, r *http.Request) {
	ac, err := h.gate.Resolve(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !ac.Authenticated() {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	h.gate.RefreshCookie(w, ac)
	writeJSON(w, http.StatusOK, SessionResponse{Session: *ac.Session, User: *ac.User})
}

// startSession sets the cookie and the bearer header for session and returns
// the bearer token.
func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, session auth.Session, persistent bool) (string, bool) {
	token, err := h.bearer.Issue(session)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("session_id", session.ID).Msg("issue bearer token")
		writeAuthError(w, http.StatusInternalServerError, AuthError{Code: CodeFailedToCreateSession, Message: "Failed to create session"})
		return "", false
	}
	expires := session.ExpiresAt
	if !persistent {
		expires = time.Time{}
	}
	h.cookies.Set(w, session.Token, expires)
	w.Header().Set(auth.TokenHeader, token)
	return token, true
}

func (h *AuthHandler) allow(w http.ResponseWriter, r *http.Request) bool {
	if h.limiter == nil || h.limiter.Allow(r) {
		return true
	}
	zerolog.Ctx(r.Context()).Warn().Str("client_ip", h.clientIP(r)).Str("path", r.URL.Path).Msg("auth rate limit exceeded")
	w.Header().Set("Retry-After", h.limiter.RetryAfter())
	writeAuthError(w, http.StatusTooManyRequests, AuthError{Code: CodeTooManyRequests, Message: "Too many requests. Please try again later."})
	return false
}

func (h *AuthHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeAuthError(w, http.StatusRequestEntityTooLarge, AuthError{Code: CodePayloadTooLarge, Message: "Request body too large"})
			return false
		}
		h.fail(w, r, err)
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeAuthError(w, http.StatusBadRequest, AuthError{Code: CodeValidation, Message: "Invalid request body"})
		return false
	}
	return true
}

// fail maps service errors onto auth responses. Validation failures keep
// their issues; anything unexpected is a logged 500.
func (h *AuthHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verr *procedure.ValidationError
	switch {
	case errors.As(err, &verr):
		writeAuthError(w, http.StatusBadRequest, AuthError{Code: CodeValidation, Message: verr.Message, Issues: verr.Issues})
	case errors.Is(err, auth.ErrUntrustedOrigin):
		writeAuthError(w, http.StatusForbidden, AuthError{Code: CodeInvalidOrigin, Message: "Invalid origin"})
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("auth request failed")
		message := "Internal server error"
		if h.exposeInternal {
			message = err.Error()
		}
		writeAuthError(w, http.StatusInternalServerError, AuthError{Code: CodeInternalServerError, Message: message})
	}
}

func (h *AuthHandler) clientIP(r *http.Request) string {
	if h.limiter != nil {
		return h.limiter.ClientIP(r)
	}
	return middleware.ClientIP(r, nil)
}

func (h *AuthHandler) clientInfo(r *http.Request) users.ClientInfo {
	return users.ClientInfo{IPAddress: h.clientIP(r), UserAgent: r.UserAgent()}
}

func writeAuthError(w http.ResponseWriter, status int, body AuthError) {
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
