package server

import (
	"container/list"
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SecurityHeadersMiddleware adds security headers to all responses.
// The sandbox page may only be framed by itself, which lets it embed /preview.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Frame-Options", "SAMEORIGIN")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("Content-Security-Policy",
				"default-src 'self'; "+
					"script-src 'self'; "+
					"style-src 'self' 'unsafe-inline'; "+
					"img-src 'self' data: https:; "+
					"connect-src 'self'; "+
					"frame-src 'self'; "+
					"frame-ancestors 'self'")

			next.ServeHTTP(w, r)
		})
	}
}

// previewCSP applies to the preview document only. Demo code and its
// packages run there, so scripts and styles may come from anywhere; the
// document cannot open connections back to the sandbox.
const previewCSP = "default-src 'none'; " +
	"script-src 'unsafe-inline' 'unsafe-eval' https: http:; " +
	"style-src 'unsafe-inline' https: http:; " +
	"img-src data: https: http:; " +
	"font-src data: https: http:; " +
	"frame-ancestors 'self'"

// evictionLogInterval is the minimum time between eviction log messages.
const evictionLogInterval = 30 * time.Second

// ipLimiter tracks a per-IP token bucket and its position in the LRU list.
type ipLimiter struct {
	ip       string
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterSet is an LRU of per-IP token buckets.
type limiterSet struct {
	rps    rate.Limit
	burst  int
	maxIPs int

	mu           sync.Mutex
	items        map[string]*list.Element
	order        *list.List // front = most recent, back = oldest
	lastEvictLog time.Time
	evictCount   int
}

func (s *limiterSet) allow(ip string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, exists := s.items[ip]
	if exists {
		s.order.MoveToFront(elem)
		elem.Value.(*ipLimiter).lastSeen = now
		return elem.Value.(*ipLimiter).limiter.Allow()
	}

	if s.order.Len() >= s.maxIPs {
		if back := s.order.Back(); back != nil {
			evicted := back.Value.(*ipLimiter)
			s.order.Remove(back)
			delete(s.items, evicted.ip)
			s.evictCount++
			if now.Sub(s.lastEvictLog) >= evictionLogInterval {
				log.Printf("[RateLimit] Evicted %d least-recent IP(s) (at capacity: %d IPs)", s.evictCount, s.maxIPs)
				s.lastEvictLog = now
				s.evictCount = 0
			}
		}
	}
	lim := &ipLimiter{ip: ip, limiter: rate.NewLimiter(s.rps, s.burst), lastSeen: now}
	s.items[ip] = s.order.PushFront(lim)
	return lim.limiter.Allow()
}

// sweep drops buckets idle for longer than idle. LRU order tracks access
// recency, not lastSeen, so every entry is checked.
func (s *limiterSet) sweep(now time.Time, idle time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for e := s.order.Back(); e != nil; {
		lim := e.Value.(*ipLimiter)
		prev := e.Prev()
		if now.Sub(lim.lastSeen) > idle {
			s.order.Remove(e)
			delete(s.items, lim.ip)
		}
		e = prev
	}
}

// RateLimitMiddleware limits requests using a token bucket per client IP.
// maxIPs bounds the number of tracked IPs (LRU eviction when full).
//
// The cleanup goroutine stops when ctx is cancelled; the returned channel
// is closed once it has exited.
func RateLimitMiddleware(ctx context.Context, rps float64, burst int, maxIPs int) (func(http.Handler) http.Handler, <-chan struct{}) {
	if maxIPs <= 0 {
		maxIPs = 10000
	}
	set := &limiterSet{
		rps:    rate.Limit(rps),
		burst:  burst,
		maxIPs: maxIPs,
		items:  make(map[string]*list.Element),
		order:  list.New(),
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				set.sweep(now, 10*time.Minute)
			case <-ctx.Done():
				return
			}
		}
	}()

	middleware := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !set.allow(getClientIP(r), time.Now()) {
				w.Header().Set("Retry-After", "1")
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}

	return middleware, done
}

// getClientIP extracts the client IP from the request.
// X-Forwarded-For / X-Real-IP are only trusted from loopback or private peers.
func getClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	peerIP := net.ParseIP(host)
	trustedProxy := peerIP != nil && (peerIP.IsLoopback() || peerIP.IsPrivate())

	if trustedProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	if peerIP != nil {
		return peerIP.String()
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Server] Failed to encode response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
