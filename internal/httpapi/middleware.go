// internal/httpapi/middleware.go
package httpapi

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"lostfound/internal/platform/httpx"
)

// RequestLogger logs one line per request, at warn for 4xx and error for 5xx.
func RequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			path := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					path = pattern
				}
			}

			event := logger.Info()
			if status >= 500 {
				event = logger.Error()
			} else if status >= 400 {
				event = logger.Warn()
			}

			event.
				Str("method", r.Method).
				Str("path", path).
				Int("status", status).
				Dur("duration", time.Since(start)).
				Str("actor", r.Header.Get(httpx.ActorHeader)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Int("bytes", ww.BytesWritten()).
				Msg("http_request")
		})
	}
}

const (
	// limiterIdle is how long an actor's bucket survives without requests.
	limiterIdle = 10 * time.Minute
	// maxLimiters bounds the number of tracked actors.
	maxLimiters = 10000
)

type actorBucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

// ActorLimiter hands every actor its own token bucket. Idle buckets are
// swept lazily, and the oldest bucket is evicted once maxLimiters is reached.
type ActorLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*actorBucket
	limit     rate.Limit
	burst     int
	idle      time.Duration
	max       int
	lastSweep time.Time
	now       func() time.Time
}

// NewActorLimiter allows perMinute requests per actor with the given burst.
// A non-positive perMinute disables limiting.
func NewActorLimiter(perMinute float64, burst int) *ActorLimiter {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(perMinute / 60)
	}
	if burst < 1 {
		burst = 1
	}
	return &ActorLimiter{
		buckets: make(map[string]*actorBucket),
		limit:   limit,
		burst:   burst,
		idle:    limiterIdle,
		max:     maxLimiters,
		now:     time.Now,
	}
}

// Allow spends one token from actor's bucket. Surrounding whitespace is
// ignored so the key matches the actor the handlers see.
func (l *ActorLimiter) Allow(actor string) bool {
	actor = strings.TrimSpace(actor)
	now := l.now()

	l.mu.Lock()
	if now.Sub(l.lastSweep) >= l.idle {
		l.sweep(now)
	}
	b, ok := l.buckets[actor]
	if !ok {
		if len(l.buckets) >= l.max {
			l.evictOldest()
		}
		b = &actorBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[actor] = b
	}
	b.seen = now
	l.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

// Tracked reports how many actors currently hold a bucket.
func (l *ActorLimiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *ActorLimiter) sweep(now time.Time) {
	for actor, b := range l.buckets {
		if now.Sub(b.seen) >= l.idle {
			delete(l.buckets, actor)
		}
	}
	l.lastSweep = now
}

func (l *ActorLimiter) evictOldest() {
	var oldest string
	var at time.Time
	for actor, b := range l.buckets {
		if at.IsZero() || b.seen.Before(at) {
			oldest, at = actor, b.seen
		}
	}
	delete(l.buckets, oldest)
}

// Middleware rejects requests over the caller's budget with 429. Requests
// without an actor pass through so the handler can reject them properly.
func (l *ActorLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := strings.TrimSpace(r.Header.Get(httpx.ActorHeader))
		if actor != "" && !l.Allow(actor) {
			w.Header().Set("Retry-After", "60")
			httpx.JSON(w, http.StatusTooManyRequests, map[string]string{
				"error": "too many claim submissions",
				"code":  "rate_limited",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
