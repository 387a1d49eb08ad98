package limiter

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/michaelbrown/pylearn/internal/metrics"
	"golang.org/x/time/rate"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a global token bucket plus one bucket per client IP.
type RateLimiter struct {
	global     *rate.Limiter
	clientRate rate.Limit
	burst      int

	mu      sync.Mutex
	clients map[string]*clientLimiter
	now     func() time.Time

	trusted []netip.Prefix
}

func NewRateLimiter(globalRPS, clientRPS float64, clientBurst int) *RateLimiter {
	globalBurst := int(globalRPS) * 2
	if globalBurst < 1 {
		globalBurst = 1
	}
	return &RateLimiter{
		global:     rate.NewLimiter(rate.Limit(globalRPS), globalBurst),
		clientRate: rate.Limit(clientRPS),
		burst:      clientBurst,
		clients:    make(map[string]*clientLimiter),
		now:        time.Now,
	}
}

func (rl *RateLimiter) clientLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	c, ok := rl.clients[ip]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(rl.clientRate, rl.burst)}
		rl.clients[ip] = c
	}
	c.lastSeen = rl.now()
	return c.limiter
}

// Allow reports whether a request from ip may proceed.
func (rl *RateLimiter) Allow(ip string) bool {
	if !rl.clientLimiter(ip).Allow() {
		metrics.RejectedTotal.WithLabelValues("rate_limit").Inc()
		return false
	}
	if !rl.global.Allow() {
		metrics.RejectedTotal.WithLabelValues("rate_limit").Inc()
		return false
	}
	return true
}

// Middleware rejects with 429 and a JSON error body.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(rl.ClientIP(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"too many requests"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Prune drops client buckets idle for longer than maxIdle.
func (rl *RateLimiter) Prune(maxIdle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-maxIdle)
	removed := 0
	for ip, c := range rl.clients {
		if c.lastSeen.Before(cutoff) {
			delete(rl.clients, ip)
			removed++
		}
	}
	return removed
}

// StartCleanup prunes idle clients every interval until stop is closed.
func (rl *RateLimiter) StartCleanup(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.Prune(interval)
			case <-stop:
				return
			}
		}
	}()
}

// TrustProxies sets the proxies whose X-Forwarded-For header is believed.
// Entries are CIDRs or bare addresses. Call it before serving.
func (rl *RateLimiter) TrustProxies(proxies []string) error {
	prefixes := make([]netip.Prefix, 0, len(proxies))
	for _, p := range proxies {
		if addr, err := netip.ParseAddr(p); err == nil {
			prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(p)
		if err != nil {
			return fmt.Errorf("trusted proxy %q: %w", p, err)
		}
		prefixes = append(prefixes, prefix.Masked())
	}
	rl.trusted = prefixes
	return nil
}

func (rl *RateLimiter) isTrusted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range rl.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP returns the address the rate limit is keyed on. X-Forwarded-For
// is only read when the peer is a trusted proxy; the client is then the
// right-most hop that is not itself trusted.
func (rl *RateLimiter) ClientIP(r *http.Request) string {
	peer := ClientIP(r)
	if len(rl.trusted) == 0 || !rl.isTrusted(peer) {
		return peer
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !rl.isTrusted(hop) {
			return hop
		}
		peer = hop
	}
	return peer
}

// ClientIP returns the host part of the request's peer address.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
