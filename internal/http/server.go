package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"tresorerie/internal/cache"
	"tresorerie/internal/core"
	applog "tresorerie/internal/log"
	"tresorerie/internal/middleware/ratelimit"
	"tresorerie/internal/middleware/security"
	"tresorerie/internal/middleware/trace"
	"tresorerie/internal/services"
	"tresorerie/internal/storage"
)

// Services groups everything the handlers call.
type Services struct {
	Gateway      storage.Gateway
	Processor    *services.RecurringProcessor
	Templates    *services.TemplateService
	Transactions *services.TransactionService
	Categories   *services.CategoryService
	Tags         *services.TagService
	Goals        *services.GoalService
	Analytics    *services.AnalyticsService
}

// NewServices wires every service over gw. snapshots may be nil to disable
// dashboard caching; publisher may be nil to disable events.
func NewServices(gw storage.Gateway, publisher services.EventPublisher, snapshots cache.Cache[*services.Snapshot], opts ...services.ProcessorOption) Services {
	if publisher != nil {
		opts = append([]services.ProcessorOption{services.WithPublisher(publisher)}, opts...)
	}
	return Services{
		Gateway:      gw,
		Processor:    services.NewRecurringProcessor(gw, opts...),
		Templates:    services.NewTemplateService(gw),
		Transactions: services.NewTransactionService(gw, publisher),
		Categories:   services.NewCategoryService(gw),
		Tags:         services.NewTagService(gw),
		Goals:        services.NewGoalService(gw),
		Analytics:    services.NewAnalyticsService(gw, snapshots),
	}
}

type appMetrics struct {
	uptime  time.Time
	created int64
	failed  int64
}

type Server struct {
	http.Server
	logger *applog.Logger

	gw           storage.Gateway
	processor    *services.RecurringProcessor
	templates    *services.TemplateService
	transactions *services.TransactionService
	categories   *services.CategoryService
	tags         *services.TagService
	goals        *services.GoalService
	analytics    *services.AnalyticsService

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	cacheManager     *cache.Manager

	appMetrics   appMetrics
	now          func() time.Time
	shutdownOnce sync.Once
}

type Option func(*Server)

func WithLogger(l *applog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithCacheManager hands the cache cleanup loop to the server so Shutdown
// stops it.
func WithCacheManager(m *cache.Manager) Option {
	return func(s *Server) { s.cacheManager = m }
}

func WithRateLimit(cfg ratelimit.Config) Option {
	return func(s *Server) {
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
		s.rateLimiter = ratelimit.NewLimiter(cfg)
	}
}

// WithClock sets the clock used for "today" defaults.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, svc Services, opts ...Option) *Server {
	s := &Server{
		logger:           applog.New(applog.DefaultConfig()),
		gw:               svc.Gateway,
		processor:        svc.Processor,
		templates:        svc.Templates,
		transactions:     svc.Transactions,
		categories:       svc.Categories,
		tags:             svc.Tags,
		goals:            svc.Goals,
		analytics:        svc.Analytics,
		rateLimiter:      ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		securityDetector: security.NewDetector(),
		appMetrics:       appMetrics{uptime: time.Now()},
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.traceMiddleware = trace.NewMiddleware(s.logger, s.securityDetector.ExtractClientIP,
		func(r *http.Request) string { return r.Header.Get(HeaderUserID) })

	mux := http.NewServeMux()
	s.routes(mux)

	var handler http.Handler = mux
	handler = s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, ratelimit.Mutating, func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, please try again later").Write(w)
	})(handler)
	handler = s.securityDetector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)
	handler = applog.Middleware(s.logger)(handler)

	s.Addr = addr
	s.Handler = handler
	s.ReadHeaderTimeout = 10 * time.Second
	s.ReadTimeout = 30 * time.Second
	s.WriteTimeout = 60 * time.Second
	s.IdleTimeout = 120 * time.Second
	s.MaxHeaderBytes = 1 << 16
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	// Recurring templates
	mux.HandleFunc("POST /api/recurring/process", s.owned(s.handleProcessDue))
	mux.HandleFunc("GET /api/recurring/due", s.owned(s.handleListDue))
	mux.HandleFunc("GET /api/recurring/templates", s.owned(s.handleListTemplates))
	mux.HandleFunc("GET /api/recurring/templates/{id}", s.owned(s.handleGetTemplate))
	mux.HandleFunc("POST /api/recurring/templates/{id}/process", s.owned(s.handleProcessOne))
	mux.HandleFunc("POST /api/recurring/templates/{id}/pause", s.owned(s.handleSetTemplateActive(false)))
	mux.HandleFunc("POST /api/recurring/templates/{id}/resume", s.owned(s.handleSetTemplateActive(true)))
	mux.HandleFunc("DELETE /api/recurring/templates/{id}", s.owned(s.handleDeleteTemplate))

	// Transactions
	mux.HandleFunc("GET /api/transactions", s.owned(s.handleListTransactions))
	mux.HandleFunc("POST /api/transactions", s.owned(s.handleCreateTransaction))
	mux.HandleFunc("GET /api/transactions/{id}", s.owned(s.handleGetTransaction))
	mux.HandleFunc("PUT /api/transactions/{id}", s.owned(s.handleUpdateTransaction))
	mux.HandleFunc("DELETE /api/transactions/{id}", s.owned(s.handleDeleteTransaction))

	// Categories and tags
	mux.HandleFunc("GET /api/categories", s.owned(s.handleListCategories))
	mux.HandleFunc("POST /api/categories", s.owned(s.handleCreateCategory))
	mux.HandleFunc("GET /api/categories/{id}", s.owned(s.handleGetCategory))
	mux.HandleFunc("PUT /api/categories/{id}", s.owned(s.handleUpdateCategory))
	mux.HandleFunc("POST /api/categories/{id}/rename", s.owned(s.handleRenameCategory))
	mux.HandleFunc("POST /api/categories/{id}/type", s.owned(s.handleChangeCategoryType))
	mux.HandleFunc("DELETE /api/categories/{id}", s.owned(s.handleDeleteCategory))
	mux.HandleFunc("GET /api/tags", s.owned(s.handleListTags))
	mux.HandleFunc("POST /api/tags", s.owned(s.handleCreateTag))
	mux.HandleFunc("DELETE /api/tags/{id}", s.owned(s.handleDeleteTag))

	// Goals and spending limits
	mux.HandleFunc("GET /api/goals", s.owned(s.handleListGoals))
	mux.HandleFunc("PUT /api/goals/{category}", s.owned(s.handleUpsertGoal))
	mux.HandleFunc("DELETE /api/goals/{category}", s.owned(s.handleDeleteGoal))
	mux.HandleFunc("GET /api/limits", s.owned(s.handleListLimits))
	mux.HandleFunc("PUT /api/limits/{category}", s.owned(s.handleUpsertLimit))
	mux.HandleFunc("DELETE /api/limits/{category}", s.owned(s.handleDeleteLimit))

	// Analytics
	mux.HandleFunc("GET /api/analytics/dashboard", s.owned(s.handleDashboard))
	mux.HandleFunc("POST /api/analytics/compute", s.handleCompute)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("no route for " + r.Method + " " + r.URL.Path).Write(w)
	})
}

func (s *Server) today() core.Date {
	return core.DateOf(s.now())
}

// Shutdown stops background goroutines and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
		if s.cacheManager != nil {
			s.cacheManager.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
