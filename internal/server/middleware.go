package server

import (
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// withInternalAuth requires X-Internal-Auth to match the shared secret.
// With no secret configured the check is off.
func (s *Server) withInternalAuth(next http.HandlerFunc) http.HandlerFunc {
	shared := s.cfg.InternalSharedSecret
	if shared == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("X-Internal-Auth")
		if subtle.ConstantTimeCompare([]byte(got), []byte(shared)) != 1 {
			writeErr(w, http.StatusUnauthorized, "unauthorized", "Invalid authentication")
			return
		}
		next(w, r)
	}
}

// withConcurrencyLimit admits at most MaxConcurrentRequests conversions.
// Excess requests are refused at once, never queued.
func (s *Server) withConcurrencyLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.requestSem.TryAcquire(1) {
			s.metrics.reject()
			writeErr(w, http.StatusServiceUnavailable, "capacity", "Service at capacity")
			return
		}
		defer s.requestSem.Release(1)

		s.metrics.incActive()
		defer s.metrics.decActive()

		next(w, r)
	}
}

func (s *Server) withRateLimit(next http.HandlerFunc) http.HandlerFunc {
	if !s.cfg.RateLimitEnabled {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		limiter := s.rateLimiter(clientIP(r))

		if !limiter.Allow() {
			w.Header().Set("Retry-After", "60")
			writeErr(w, http.StatusTooManyRequests, "rate_limit", "Rate limit exceeded")
			return
		}
		next(w, r)
	}
}

func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				s.log.Error("panic",
					zap.Any("error", err),
					zap.String("request_id", chimiddleware.GetReqID(r.Context())),
					zap.Stack("stack"),
				)
				writeErr(w, http.StatusInternalServerError, "internal_error", "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &wrapWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", sanitizeLogString(r.URL.Path)),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			zap.String("remote", r.RemoteAddr),
		)
	})
}

// cors answers cross-origin requests from the allowed origins with any
// method and header, credentials included. An empty list or "*" echoes back
// whatever Origin the browser sends, so with credentials any site can call
// the API as the user; list origins explicitly when that matters.
// Disallowed origins get no CORS headers and their preflights are refused.
func cors(allowed []string) func(http.Handler) http.Handler {
	anyOrigin := len(allowed) == 0
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			anyOrigin = true
		}
		set[strings.TrimRight(o, "/")] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
			h := w.Header()
			h.Add("Vary", "Origin")

			switch {
			case origin == "" && anyOrigin:
				origin = "*"
			case origin == "":
				next.ServeHTTP(w, r)
				return
			case !anyOrigin && !set[origin]:
				if preflight {
					writeErr(w, http.StatusForbidden, "cors_origin_denied", "Origin not allowed")
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")

			if preflight {
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				headers := r.Header.Get("Access-Control-Request-Headers")
				if headers == "" {
					headers = "*"
				}
				h.Set("Access-Control-Allow-Headers", headers)
				h.Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

type wrapWriter struct {
	http.ResponseWriter
	status int
}

func (w *wrapWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *wrapWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// ---------- Helpers ----------

func (s *Server) rateLimiter(ip string) *rate.Limiter {
	limiters := s.limiters.Load()
	if v, ok := limiters.Load(ip); ok {
		return v.(*rate.Limiter)
	}

	every := s.cfg.RateLimitEvery
	if every <= 0 {
		every = 600 * time.Millisecond // ~100/min
	}
	burst := s.cfg.RateLimitBurst
	if burst <= 0 {
		burst = 20
	}

	v, _ := limiters.LoadOrStore(ip, rate.NewLimiter(rate.Every(every), burst))
	return v.(*rate.Limiter)
}

func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		if idx := strings.Index(ip, ","); idx > 0 {
			return strings.TrimSpace(ip[:idx])
		}
		return strings.TrimSpace(ip)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func sanitizeLogString(s string) string {
	s = strings.ReplaceAll(s, "\n", "")
	s = strings.ReplaceAll(s, "\r", "")
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > 300 {
		msg = msg[:300] + "..."
	}
	return msg
}

func byteLimit(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%dMB", n/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%dKB", n/(1<<10))
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}
