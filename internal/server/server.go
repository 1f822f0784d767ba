// Package server exposes the conversion service over HTTP.
package server

import (
	"context"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/toricodesthings/document-conversion-service/internal/accel"
	"github.com/toricodesthings/document-conversion-service/internal/config"
	"github.com/toricodesthings/document-conversion-service/internal/converter"
)

const Version = "1.0.0"

type Server struct {
	cfg   config.Config
	svc   *converter.Service
	probe accel.Prober
	log   *zap.Logger

	requestSem *semaphore.Weighted

	// Per-IP rate limiters, swapped out wholesale by the cleanup loop.
	limiters atomic.Pointer[sync.Map]

	metrics *serverMetrics
}

func New(cfg config.Config, svc *converter.Service, probe accel.Prober, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if probe == nil {
		probe = accel.HostProbe
	}
	maxConcurrent := cfg.MaxConcurrentRequests
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	cfg.MaxConcurrentRequests = maxConcurrent

	s := &Server{
		cfg:        cfg,
		svc:        svc,
		probe:      probe,
		log:        log,
		requestSem: semaphore.NewWeighted(maxConcurrent),
		metrics:    &serverMetrics{},
	}
	s.limiters.Store(&sync.Map{})
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.withLogging)
	r.Use(s.withRecovery)
	r.Use(cors(s.cfg.CORSOrigins))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeErr(w, http.StatusNotFound, "not_found", "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeErr(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	})

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.withInternalAuth(s.handleMetrics))
	r.Get("/system-info", s.handleSystemInfo)

	r.Post("/documents/convert",
		s.withInternalAuth(
			s.withRateLimit(
				s.withConcurrencyLimit(s.handleConvert))))

	return r
}

// RunCleanup periodically logs server stats and drops idle rate limiters
// until ctx is done.
func (s *Server) RunCleanup(ctx context.Context) {
	interval := s.cfg.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		snap := s.metrics.get()
		s.log.Info("stats",
			zap.Int64("active", snap.active),
			zap.Int64("total", snap.total),
			zap.Int64("converted", snap.converted),
			zap.Int64("failed", snap.failed),
			zap.Int("goroutines", runtime.NumGoroutine()),
			zap.Uint64("mem_mb", m.Alloc/(1<<20)),
		)

		s.limiters.Store(&sync.Map{})
	}
}
