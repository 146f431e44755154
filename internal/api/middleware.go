package api

import (
	"bufio"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"fleetvrp/internal/auth"
	"fleetvrp/internal/metrics"
)

// statusWriter captures the final HTTP status code and number of bytes written.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Record implicit 200 responses when handlers write without calling WriteHeader.
func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Flush keeps server-sent event streams working through the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack hands the connection to the websocket upgrader.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	if w.status == 0 {
		w.status = http.StatusSwitchingProtocols
	}
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)
		log.Printf("method=%s path=%s status=%d bytes=%d dur=%dms",
			r.Method, r.URL.RequestURI(), sw.status, sw.bytes, time.Since(start).Milliseconds())
	})
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)
		status := sw.status
		if status == 0 {
			status = http.StatusOK
		}
		labels := []string{r.Method, routeLabel(r.URL.Path), strconv.Itoa(status)}
		metrics.HTTPRequests.WithLabelValues(labels...).Inc()
		metrics.HTTPDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
	})
}

// routeLabel collapses run ids so the path label stays low-cardinality.
func routeLabel(path string) string {
	rest, ok := strings.CutPrefix(path, "/v1/solves/")
	if !ok || rest == "" {
		return path
	}
	if _, sub, found := strings.Cut(rest, "/"); found {
		return "/v1/solves/{id}/" + sub
	}
	return "/v1/solves/{id}"
}

// maxLimitedTenants bounds the limiter set; the least recently seen tenant
// loses its bucket first.
const maxLimitedTenants = 10_000

// tenantLimiter hands out one token bucket per tenant. A non-positive rate
// disables limiting.
type tenantLimiter struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	limiters *lru.Cache[string, *rate.Limiter]
}

func newTenantLimiter(rps float64, burst int) *tenantLimiter {
	return newTenantLimiterSize(rps, burst, maxLimitedTenants)
}

func newTenantLimiterSize(rps float64, burst, size int) *tenantLimiter {
	if burst < 1 {
		burst = 1
	}
	limiters, err := lru.New[string, *rate.Limiter](max(size, 1))
	if err != nil {
		panic(err)
	}
	return &tenantLimiter{rps: rate.Limit(rps), burst: burst, limiters: limiters}
}

func (l *tenantLimiter) allow(tenant string) bool {
	if l == nil || l.rps <= 0 {
		return true
	}
	l.mu.Lock()
	lim, ok := l.limiters.Get(tenant)
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.limiters.Add(tenant, lim)
	}
	l.mu.Unlock()
	return lim.Allow()
}

// Metric labels for callers whose tenant is not backed by a verified token.
const (
	labelAnonymous  = "anonymous"
	labelUnverified = "unverified"
)

// tenantLabel keeps the RateLimited series bounded: only verified tenants get
// their own label.
func tenantLabel(p auth.Principal, err error) string {
	switch {
	case err != nil:
		return labelAnonymous
	case !p.Verified:
		return labelUnverified
	default:
		return p.Tenant
	}
}

// rateLimit throttles /v1/ requests per tenant.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v1/") {
			next.ServeHTTP(w, r)
			return
		}
		p, err := s.getPrincipal(r)
		tenant := labelAnonymous
		if err == nil {
			tenant = p.Tenant
		}
		if !s.limiter.allow(tenant) {
			metrics.RateLimited.WithLabelValues(tenantLabel(p, err)).Inc()
			w.Header().Set("Retry-After", "1")
			writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded for tenant "+tenant, r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}
