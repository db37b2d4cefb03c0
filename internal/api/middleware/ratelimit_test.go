package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opentelemetry.io/otel/sdk/trace.(*batchSpanProcessor).processQueue"),
	)
}

func newRequest(remote string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/sign-in/email", nil)
	req.RemoteAddr = remote
	return req
}

func TestRateLimiter_BurstThenBlock(t *testing.T) {
	rl := NewRateLimiter(3, nil)
	defer rl.Stop()
	handler := rl.Middleware(okHandler)

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, newRequest("192.0.2.1:1000"))
		assert.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newRequest("192.0.2.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "20", rec.Header().Get("Retry-After"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, newRequest("192.0.2.2:1000"))
	assert.Equal(t, http.StatusOK, rec.Code, "other clients have their own bucket")
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(0, nil)
	defer rl.Stop()
	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow(newRequest("192.0.2.1:1000")))
	}
}

func TestRateLimiter_Sweep(t *testing.T) {
	rl := NewRateLimiter(5, nil)
	defer rl.Stop()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	rl.Allow(newRequest("192.0.2.1:1000"))

	now = now.Add(limiterTTL + time.Second)
	rl.Allow(newRequest("192.0.2.2:1000"))
	rl.sweep()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.limiters, "192.0.2.1")
	assert.Contains(t, rl.limiters, "192.0.2.2")
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(1, nil)
	rl.Stop()
	rl.Stop()
}

func TestClientIP(t *testing.T) {
	trusted := ParseTrustedProxies([]string{"10.0.0.0/8", "not-a-cidr"})
	assert.Len(t, trusted, 1)

	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{name: "direct", remote: "203.0.113.5:4000", want: "203.0.113.5"},
		{name: "spoofed header from untrusted peer", remote: "203.0.113.5:4000", headers: map[string]string{"X-Forwarded-For": "1.2.3.4"}, want: "203.0.113.5"},
		{name: "forwarded by trusted proxy", remote: "10.1.2.3:4000", headers: map[string]string{"X-Forwarded-For": "198.51.100.7, 10.1.2.3"}, want: "198.51.100.7"},
		{name: "real ip from trusted proxy", remote: "10.1.2.3:4000", headers: map[string]string{"X-Real-IP": "198.51.100.8"}, want: "198.51.100.8"},
		{name: "trusted proxy without headers", remote: "10.1.2.3:4000", want: "10.1.2.3"},
		{name: "remote without port", remote: "203.0.113.9", want: "203.0.113.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newRequest(tt.remote)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req, trusted))
		})
	}
}
