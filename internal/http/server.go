package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"byb/internal/ledger"
	applog "byb/internal/log"
	"byb/internal/metrics"
	"byb/internal/middleware/ratelimit"
	"byb/internal/middleware/security"
	"byb/internal/middleware/trace"
	"byb/internal/planner"
	"byb/internal/vision"
	"byb/internal/wizard"
)

// readyTimeout bounds the readiness probe.
const readyTimeout = 3 * time.Second

type (
	// Options wires the services the API serves. Ready, when set, backs
	// /readyz; Now defaults to time.Now.
	Options struct {
		Ledger    *ledger.Ledger
		Wizard    *wizard.Manager
		Planner   *planner.Planner
		Vision    *vision.Board
		Ready     func(ctx context.Context) error
		Now       func() time.Time
		Logger    *applog.Logger
		RateLimit ratelimit.Config
	}

	Server struct {
		http.Server

		ledger  *ledger.Ledger
		wizard  *wizard.Manager
		planner *planner.Planner
		vision  *vision.Board
		ready   func(ctx context.Context) error
		now     func() time.Time
		logger  *applog.Logger

		limiter      *ratelimit.Limiter
		shutdownOnce sync.Once
	}
)

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}

	s := &Server{
		ledger:  opts.Ledger,
		wizard:  opts.Wizard,
		planner: opts.Planner,
		vision:  opts.Vision,
		ready:   opts.Ready,
		now:     opts.Now,
		logger:  opts.Logger.WithComponent(applog.ComponentHTTP),
		limiter: ratelimit.NewLimiter(opts.RateLimit),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", metrics.Handler())

	if s.ledger != nil {
		mux.HandleFunc("GET /api/days/{date}", s.handleGetDay)
		mux.HandleFunc("GET /api/days/{date}/week", s.handleWeek)
		mux.HandleFunc("POST /api/days/{date}/items", s.handleAddItem)
		mux.HandleFunc("POST /api/days/{date}/items/{category}/{id}/toggle", s.handleToggleItem)
		mux.HandleFunc("DELETE /api/days/{date}/items/{category}/{id}", s.handleRemoveItem)
		mux.HandleFunc("POST /api/days/{date}/clear-completed", s.handleClearCompleted)
		if s.planner != nil {
			mux.HandleFunc("POST /api/days/{date}/import", s.handleImport)
		}
	}

	if s.wizard != nil {
		mux.HandleFunc("POST /api/wizard", s.handleStartWizard)
		mux.HandleFunc("GET /api/wizard/{id}", s.handleGetWizard)
		mux.HandleFunc("DELETE /api/wizard/{id}", s.handleDiscardWizard)
		mux.HandleFunc("PUT /api/wizard/{id}/big-goal", s.handleSetBigGoal)
		mux.HandleFunc("PUT /api/wizard/{id}/timeframe", s.handleSetTimeframe)
		mux.HandleFunc("PUT /api/wizard/{id}/midpoint", s.handleSetMidpoint)
		mux.HandleFunc("PUT /api/wizard/{id}/milestones", s.handleSetMilestones)
		mux.HandleFunc("PUT /api/wizard/{id}/actions/{frequency}", s.handleSetActions)
		mux.HandleFunc("POST /api/wizard/{id}/next", s.handleWizardNext)
		mux.HandleFunc("POST /api/wizard/{id}/back", s.handleWizardBack)
		mux.HandleFunc("POST /api/wizard/{id}/commit", s.handleWizardCommit)
		mux.HandleFunc("POST /api/wizard/{id}/retry", s.handleWizardRetry)
	}

	if s.planner != nil {
		mux.HandleFunc("GET /api/planner", s.handleGetPlanner)
		mux.HandleFunc("PUT /api/planner/goal", s.handleSetPlannerGoal)
		mux.HandleFunc("PUT /api/planner/tasks/{index}", s.handleSetPlannerTask)
		mux.HandleFunc("POST /api/planner/tasks/{index}/toggle", s.handleTogglePlannerTask)
		mux.HandleFunc("DELETE /api/planner", s.handleResetPlanner)
	}

	if s.vision != nil {
		mux.HandleFunc("GET /api/vision", s.handleGetVision)
		mux.HandleFunc("POST /api/vision", s.handleAddVision)
		mux.HandleFunc("DELETE /api/vision/{index}", s.handleRemoveVision)
		mux.HandleFunc("POST /api/vision/{index}/move", s.handleMoveVision)
	}

	detector := security.NewDetector()
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limit := s.limiter.Middleware(detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		NewJSONResponse().Status(http.StatusTooManyRequests).
			Body(ErrorBody{Error: "rate limit exceeded, try again later"}).Write(w)
	})
	tracer := trace.NewMiddleware(opts.Logger, detector.ExtractClientIP)

	// Outermost first: tracing, security headers, probe rejection, rate limit.
	var handler http.Handler = mux
	handler = limit(handler)
	handler = detector.Middleware(handler)
	handler = headers.Middleware(handler)
	handler = tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server and the rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// fail writes the error response and logs server-side failures.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if StatusFor(err) >= http.StatusInternalServerError {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			applog.FieldError, err, applog.FieldPath, r.URL.Path)
	}
	ErrorResponse(err).Write(w)
}
