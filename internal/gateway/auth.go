package gateway

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// ipLimiter enforces a per-IP request budget on the API routes.
type ipLimiter struct {
	rpm int

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

func newIPLimiter(rpm int) *ipLimiter {
	return &ipLimiter{rpm: rpm, buckets: make(map[string]*rate.Limiter)}
}

func (l *ipLimiter) allow(ip string) bool {
	if l.rpm < 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.buckets[ip]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(l.rpm)/60.0), l.rpm)
		l.buckets[ip] = lim
	}
	return lim.Allow()
}

// protect wraps an API handler with rate limiting and bearer auth.
func (s *Server) protect(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(clientIP(r)) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		if !s.authorized(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h(w, r)
	})
}

// authorized accepts the token via Authorization: Bearer or ?token=.
func (s *Server) authorized(r *http.Request) bool {
	candidate := ""
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		candidate = strings.TrimPrefix(auth, "Bearer ")
	} else {
		candidate = r.URL.Query().Get("token")
	}
	if candidate == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(s.token)) == 1
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
