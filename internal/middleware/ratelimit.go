package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	// maxClients bounds the limiter table; the least recently seen client
	// is evicted when it is full.
	maxClients = 10000

	cleanupInterval = 5 * time.Minute
)

// RateLimiter is a per-client token bucket. Each client may burst up to
// the per-minute allowance and refills at an even pace.
type RateLimiter struct {
	mu         sync.Mutex
	clients    map[string]*client
	limit      rate.Limit
	burst      int
	staleAfter time.Duration
	trustProxy bool
	now        func() time.Time

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing requestsPerMinute per client.
// trustProxy makes it key clients by X-Forwarded-For / X-Real-IP; enable it
// only behind a reverse proxy that sets them. Call Close on shutdown.
func NewRateLimiter(requestsPerMinute int, trustProxy bool) *RateLimiter {
	if requestsPerMinute < 1 {
		requestsPerMinute = 1
	}
	rl := &RateLimiter{
		clients:    make(map[string]*client),
		limit:      rate.Limit(float64(requestsPerMinute) / 60),
		burst:      requestsPerMinute,
		staleAfter: 2 * time.Minute,
		trustProxy: trustProxy,
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}

	rl.wg.Add(1)
	go func() {
		defer rl.wg.Done()
		rl.cleanupRoutine()
	}()

	return rl
}

// Allow reports whether a request from ip may proceed. When it may not, it
// also returns how long until one would be allowed.
func (rl *RateLimiter) Allow(ip string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	c, ok := rl.clients[ip]
	if !ok {
		if len(rl.clients) >= maxClients {
			rl.evictOldestLocked()
		}
		c = &client{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[ip] = c
	}
	c.lastSeen = now

	res := c.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Minute
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Handler returns the rate limiting middleware.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()
		ip := getClientIP(r, rl.trustProxy)

		if ok, retryAfter := rl.Allow(ip); !ok {
			seconds := int(math.Ceil(retryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			log.Debug().Str("client", ip).Dur("retry_after", retryAfter).Msg("Rate limit exceeded")
			writeErrorResponse(w, http.StatusTooManyRequests, kindRateLimited, "Rate limit exceeded. Please try again later.", startTime)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Close stops the cleanup routine. Safe to call more than once.
func (rl *RateLimiter) Close() {
	rl.closeOnce.Do(func() {
		close(rl.stopCh)
		rl.wg.Wait()
	})
}

func (rl *RateLimiter) cleanupRoutine() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStale()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanupStale drops clients idle long enough for their bucket to be full
// again; a fresh limiter behaves the same.
func (rl *RateLimiter) cleanupStale() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for ip, c := range rl.clients {
		if now.Sub(c.lastSeen) > rl.staleAfter {
			delete(rl.clients, ip)
		}
	}
}

func (rl *RateLimiter) evictOldestLocked() {
	var oldestIP string
	var oldest time.Time
	for ip, c := range rl.clients {
		if oldestIP == "" || c.lastSeen.Before(oldest) {
			oldestIP, oldest = ip, c.lastSeen
		}
	}
	delete(rl.clients, oldestIP)
}

// normalizeIP returns the canonical form of an IP, folding IPv4-mapped IPv6
// addresses to IPv4 so one client cannot appear as two.
func normalizeIP(s string) string {
	s = strings.TrimSpace(s)
	ip := net.ParseIP(s)
	if ip == nil {
		return ""
	}
	if ip4 := ip.To4(); ip4 != nil {
		return ip4.String()
	}
	return ip.String()
}

// getClientIP extracts the client IP. Forwarding headers are only honored
// with trustProxy, since anyone can set them.
func getClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := normalizeIP(first); ip != "" {
				return ip
			}
		}
		if ip := normalizeIP(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := normalizeIP(host); ip != "" {
		return ip
	}
	return host
}
