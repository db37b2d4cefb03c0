// Package audit records security-relevant account events (sign-up, sign-in,
// sign-out) as structured log lines under an "audit" key.
package audit

import (
	"time"

	"github.com/rs/zerolog"
)

const (
	ActionSignUp  = "auth.sign_up"
	ActionSignIn  = "auth.sign_in"
	ActionSignOut = "auth.sign_out"

	StatusSuccess = "success"
	StatusFailure = "failure"
)

type Entry struct {
	Timestamp time.Time         `json:"timestamp"`
	Action    string            `json:"action"`
	UserID    string            `json:"user_id,omitempty"`
	Email     string            `json:"email,omitempty"`
	IPAddress string            `json:"ip_address"`
	UserAgent string            `json:"user_agent,omitempty"`
	Status    string            `json:"status"`
	Details   map[string]string `json:"details,omitempty"`
}

type Logger struct {
	logger zerolog.Logger
	now    func() time.Time
}

func NewLogger(logger zerolog.Logger) *Logger {
	return &Logger{
		logger: logger.With().Str("component", "audit").Logger(),
		now:    time.Now,
	}
}

// Log writes entry. Failures are logged at warn so they surface in alerting.
func (l *Logger) Log(entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now().UTC()
	}
	event := l.logger.Info()
	if entry.Status == StatusFailure {
		event = l.logger.Warn()
	}
	event.Interface("audit", entry).Msg(entry.Action)
}

func (l *Logger) LogSuccess(action, userID, email, ipAddress, userAgent string) {
	l.Log(Entry{
		Action:    action,
		UserID:    userID,
		Email:     email,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		Status:    StatusSuccess,
	})
}

// LogFailure records a rejected attempt. reason should be safe to store; never
// pass the submitted password.
func (l *Logger) LogFailure(action, email, ipAddress, userAgent, reason string) {
	l.Log(Entry{
		Action:    action,
		Email:     email,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		Status:    StatusFailure,
		Details:   map[string]string{"reason": reason},
	})
}
