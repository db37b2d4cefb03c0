package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterTTL      = 15 * time.Minute
	cleanupInterval = 5 * time.Minute
)

// RateLimiter is a per-client token bucket: perMinute requests per minute
// with a burst of perMinute. Clients are keyed by ClientIP.
type RateLimiter struct {
	perMinute   int
	trustedNets []*net.IPNet
	now         func() time.Time

	mu       sync.Mutex
	limiters map[string]*limiterEntry

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter starts a background sweep of idle clients; call Stop to end
// it. A perMinute of zero or less disables limiting.
func NewRateLimiter(perMinute int, trustedProxyCIDRs []string) *RateLimiter {
	rl := &RateLimiter{
		perMinute:   perMinute,
		trustedNets: ParseTrustedProxies(trustedProxyCIDRs),
		now:         time.Now,
		limiters:    make(map[string]*limiterEntry),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Allow reports whether the client behind r may proceed.
func (rl *RateLimiter) Allow(r *http.Request) bool {
	if rl.perMinute <= 0 {
		return true
	}
	key := rl.ClientIP(r)

	rl.mu.Lock()
	entry, ok := rl.limiters[key]
	if !ok {
		entry = &limiterEntry{
			limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rl.perMinute)), rl.perMinute),
		}
		rl.limiters[key] = entry
	}
	entry.lastSeen = rl.now()
	rl.mu.Unlock()

	return entry.limiter.Allow()
}

// RetryAfter is the Retry-After value, in seconds, for a blocked client: the
// time one token takes to refill.
func (rl *RateLimiter) RetryAfter() string {
	if rl.perMinute <= 0 {
		return "60"
	}
	return strconv.Itoa(max(1, 60/rl.perMinute))
}

// Middleware answers 429 with Retry-After once a client exhausts its bucket.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	retryAfter := rl.RetryAfter()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(r) {
			w.Header().Set("Retry-After", retryAfter)
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Stop ends the cleanup goroutine and waits for it. Safe to call twice.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
	<-rl.done
}

func (rl *RateLimiter) cleanupLoop() {
	defer close(rl.done)
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.sweep()
		case <-rl.stop:
			return
		}
	}
}

func (rl *RateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-limiterTTL)
	for key, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
		}
	}
}

// ClientIP returns the caller's address. X-Forwarded-For and X-Real-IP are
// only honored when the direct peer is inside a trusted proxy CIDR.
func (rl *RateLimiter) ClientIP(r *http.Request) string {
	return ClientIP(r, rl.trustedNets)
}

func ClientIP(r *http.Request, trustedNets []*net.IPNet) string {
	remoteIP := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		remoteIP = host
	}

	if isTrusted(remoteIP, trustedNets) {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
			return realIP
		}
	}
	return remoteIP
}

func isTrusted(ip string, nets []*net.IPNet) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, n := range nets {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}

// ParseTrustedProxies drops malformed entries; config validation reports them.
func ParseTrustedProxies(cidrs []string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		if _, n, err := net.ParseCIDR(strings.TrimSpace(c)); err == nil {
			nets = append(nets, n)
		}
	}
	return nets
}
