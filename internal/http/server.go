package http

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Bota93/spendesk/internal/backend"
	"github.com/Bota93/spendesk/internal/cache"
	"github.com/Bota93/spendesk/internal/config"
	"github.com/Bota93/spendesk/internal/core"
	"github.com/Bota93/spendesk/internal/events"
	"github.com/Bota93/spendesk/internal/log"
	"github.com/Bota93/spendesk/internal/middleware/ratelimit"
	"github.com/Bota93/spendesk/internal/middleware/security"
	"github.com/Bota93/spendesk/internal/middleware/trace"
	"github.com/Bota93/spendesk/internal/session"
	appweb "github.com/Bota93/spendesk/web"
)

// appMetrics tracks application-level counters. Fields are updated
// atomically.
type appMetrics struct {
	uptime      time.Time
	signIns     int64
	signUps     int64
	demoSignUps int64
	authFailed  int64
	mutations   int64
	liveClients int64
}

type Server struct {
	http.Server
	templates    *template.Template
	backend      *backend.BackendResult
	workspaces   *workspaceRegistry
	cacheManager *cache.Manager
	logger       *log.Logger
	audit        *log.StructuredLogger

	securityDetector *security.Detector
	rateLimiter      *ratelimit.Limiter
	traceMiddleware  *trace.Middleware
	upgrader         websocket.Upgrader

	cookieSecure bool
	appMetrics   *appMetrics
	shutdownOnce sync.Once
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run server. source feeds auth events to the workspaces; it may be
// nil.
func NewServer(cfg *config.Config, be *backend.BackendResult, source events.Source, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Discard()
	}
	httpLogger := logger.WithComponent(log.ComponentHTTP)

	mux := http.NewServeMux()
	detector := security.NewDetector(logger)

	s := &Server{
		Server: http.Server{
			Addr:              ":" + cfg.Port,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		backend:          be,
		workspaces:       newWorkspaceRegistry(cfg.WorkspaceCacheSize, cfg.WorkspaceIdleTTL, be.Backend, source, logger.WithComponent(log.ComponentSession)),
		cacheManager:     cache.NewManager(logger),
		logger:           httpLogger,
		audit:            log.NewStructuredLogger(logger),
		securityDetector: detector,
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: cfg.RateLimit,
			Logger:            logger,
		}),
		traceMiddleware: trace.NewMiddleware(detector.ExtractClientIP, logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		cookieSecure: cfg.CookieSecure,
		appMetrics:   &appMetrics{uptime: time.Now()},
	}

	s.cacheManager.Register(s.workspaces.cache)
	s.cacheManager.StartCleanup(time.Minute)

	t, err := template.New("").ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.logger.Warn("Failed parsing templates",
			log.FieldError, err.Error(),
			log.FieldErrorType, log.ErrorTypeConfiguration)
	} else {
		s.templates = t
	}

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err.Error())
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /{$}", s.withWorkspace(s.handleHome))
	mux.HandleFunc("GET /login", s.withWorkspace(s.handleLoginPage))
	mux.HandleFunc("POST /login", s.withWorkspace(s.handleLogin))
	mux.HandleFunc("POST /login/demo", s.withWorkspace(s.handleDemoLogin))
	mux.HandleFunc("GET /register", s.withWorkspace(s.handleRegisterPage))
	mux.HandleFunc("POST /register", s.withWorkspace(s.handleRegister))
	mux.HandleFunc("POST /logout", s.withWorkspace(s.handleLogout))

	mux.HandleFunc("GET /dashboard", s.requireSession(s.handleDashboard))
	mux.HandleFunc("GET /dashboard/transactions", s.requireSession(s.handleTransactionList))
	mux.HandleFunc("POST /dashboard/transactions", s.requireSession(s.handleSaveTransaction))
	mux.HandleFunc("DELETE /dashboard/transactions/{id}", s.requireSession(s.handleDeleteTransaction))
	mux.HandleFunc("POST /dashboard/transactions/{id}/delete", s.requireSession(s.handleDeleteTransaction))
	mux.HandleFunc("GET /dashboard/form", s.requireSession(s.handleOpenCreate))
	mux.HandleFunc("GET /dashboard/form/{id}", s.requireSession(s.handleOpenEdit))
	mux.HandleFunc("POST /dashboard/form/close", s.requireSession(s.handleCloseForm))

	mux.HandleFunc("GET /ws", s.withWorkspace(s.handleLive))

	// Outermost first: scanner detection, headers, request logger, tracing,
	// rate limiting.
	var handler http.Handler = mux
	handler = s.rateLimiter.Middleware(detector.ExtractClientIP, s.handleRateLimited)(handler)
	handler = s.traceMiddleware.Middleware(handler)
	handler = log.Middleware(httpLogger)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = detector.Middleware(handler)
	s.Handler = handler

	return s
}

// Shutdown stops background routines, closes every workspace and shuts the
// HTTP server down. Only the first call has an effect.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.Stop()
		s.workspaces.closeAll()
		shutdownErr = s.Server.Shutdown(ctx)
		s.logger.Info("HTTP server stopped", log.FieldOperation, log.OpShutdown)
	})
	return shutdownErr
}

// workspaceHandler serves a request on behalf of a browser workspace.
type workspaceHandler func(w http.ResponseWriter, r *http.Request, ws *Workspace)

// withWorkspace resolves the browser's workspace and waits until its
// session store has resolved the initial lookup.
func (s *Server) withWorkspace(h workspaceHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, created := s.workspaces.open(r)
		if created {
			s.setWorkspaceCookie(w, ws.ID)
		}
		if err := ws.Sessions.Wait(r.Context()); err != nil {
			return
		}
		ctx := log.NewContext(r.Context(), log.FromContext(r.Context()).With(log.FieldWorkspaceID, ws.ID))
		h(w, r.WithContext(ctx), ws)
	}
}

// sessionHandler serves a protected request with the session the guard let
// through.
type sessionHandler func(w http.ResponseWriter, r *http.Request, ws *Workspace, sess *core.Session)

// requireSession applies the route guard to protected views. Expired
// sessions are resolved once more first so the client can drop them, and the
// token cookie must match the workspace's session.
func (s *Server) requireSession(h sessionHandler) http.HandlerFunc {
	return s.withWorkspace(func(w http.ResponseWriter, r *http.Request, ws *Workspace) {
		if current := ws.Sessions.Session(); current != nil && !current.Valid(time.Now()) {
			_, _ = ws.Client.GetSession(r.Context())
		}
		current := ws.Sessions.Session()
		decision := session.Guard(current)
		if decision.Allow && !ownsSession(r, ws) {
			s.logger.WarnContext(r.Context(), "Token cookie does not match workspace session",
				log.FieldErrorType, log.ErrorTypeAuth)
			decision = session.Guard(nil)
		}
		if !decision.Allow {
			s.clearTokenCookie(w)
			redirect(w, r, decision.Redirect)
			return
		}
		h(w, r, ws, current)
	})
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", "60")
	ErrorResponse(http.StatusTooManyRequests, "Demasiadas peticiones. Inténtalo de nuevo en un minuto.").Write(w)
}

// render executes the named template into a buffer so failures never leave
// a half-written page.
func (s *Server) render(name string, data any) ([]byte, error) {
	if s.templates == nil {
		return nil, fmt.Errorf("templates not loaded")
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("render %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

// writePage renders a template and writes it with status.
func (s *Server) writePage(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	body, err := s.render(name, data)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Template execution failed",
			log.FieldOperation, log.OpRender,
			"template", name,
			log.FieldError, err.Error(),
			log.FieldErrorType, log.ErrorTypeInternal)
		http.Error(w, "Error interno", http.StatusInternalServerError)
		return
	}
	NewReply().Status(status).BodyHTML(string(body)).Write(w)
}
