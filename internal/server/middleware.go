package server

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/woozymasta/overbyte/internal/models"
)

// GetRealIP attempts to determine the client's real IP address, trusting
// headers like CF-Connecting-IP or X-Forwarded-For if configured to do so.
func GetRealIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if cf := r.Header.Get("CF-Connecting-IP"); cf != "" {
			return cf
		}
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			return strings.TrimSpace(parts[0])
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return ip
}

// keySet is the allow-list of internal API keys, indexed by xxhash.
type keySet map[uint64]string

func newKeySet(keys ...string) keySet {
	set := make(keySet, len(keys))
	for _, k := range keys {
		if k != "" {
			set[xxhash.Sum64String(k)] = k
		}
	}
	return set
}

func (ks keySet) allows(token string) bool {
	key, ok := ks[xxhash.Sum64String(token)]
	return ok && subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1
}

// InternalKeyMiddleware requires a Bearer token from keys. A missing header is
// answered with missing, an unknown key with invalid.
func InternalKeyMiddleware(keys []string, missing, invalid *models.APIError) func(http.Handler) http.Handler {
	allowed := newKeySet(keys...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				writeError(w, missing)
				return
			}
			if !allowed.allows(token) {
				log.Debug().Str("path", r.URL.Path).Msg("Invalid internal key")
				writeError(w, invalid)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// rateLimiter is a per-IP token bucket set.
type rateLimiter struct {
	clients    map[string]*rateClient
	limit      rate.Limit
	burst      int
	trustProxy bool
	mu         sync.Mutex
}

type rateClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiter(count int, window time.Duration, trustProxy bool) *rateLimiter {
	return &rateLimiter{
		clients:    make(map[string]*rateClient),
		limit:      rate.Limit(float64(count) / window.Seconds()),
		burst:      count,
		trustProxy: trustProxy,
	}
}

// Middleware rejects requests with code 42 once the client's bucket is empty.
func (rl *rateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := GetRealIP(r, rl.trustProxy)

		rl.mu.Lock()
		cli, found := rl.clients[ip]
		if !found {
			cli = &rateClient{limiter: rate.NewLimiter(rl.limit, rl.burst)}
			rl.clients[ip] = cli
		}
		cli.lastSeen = time.Now()
		limiter := cli.limiter
		rl.mu.Unlock()

		if !limiter.Allow() {
			log.Debug().Str("ip", ip).Str("path", r.URL.Path).Msg("Rate limit hit")
			writeError(w, models.ErrTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// gc drops clients idle for longer than idle until shutdown is closed.
func (rl *rateLimiter) gc(shutdown <-chan struct{}, every, idle time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-shutdown:
			return
		case <-ticker.C:
			now := time.Now()
			rl.mu.Lock()
			for ip, c := range rl.clients {
				if now.Sub(c.lastSeen) > idle {
					delete(rl.clients, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs the details of each HTTP request, including method, path, IP, status and duration.
func LoggingMiddleware(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("ip", GetRealIP(r, trustProxy)).
				Int("status", rec.status).
				Dur("duration", time.Since(start)).
				Msg("Request handled")
		})
	}
}
