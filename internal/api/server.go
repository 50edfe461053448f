package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/terra-clan/quiz-engine/internal/auth"
	"github.com/terra-clan/quiz-engine/internal/config"
	"github.com/terra-clan/quiz-engine/internal/models"
	"github.com/terra-clan/quiz-engine/internal/notify"
	"github.com/terra-clan/quiz-engine/internal/questionbank"
	"github.com/terra-clan/quiz-engine/internal/services"
	"github.com/terra-clan/quiz-engine/internal/session"
	"github.com/terra-clan/quiz-engine/internal/storage"
)

const (
	leaderboardSize    = 50
	recentResultsLimit = 5
	notificationsLimit = 50
	recentUsersLimit   = 10
)

// Deps are the components the HTTP layer is built on
type Deps struct {
	Repo     storage.Repository
	Sessions session.Manager
	Tokens   *auth.Service
	Notifier *notify.Notifier
	Hub      *notify.Hub
	Bank     *questionbank.Loader
	BankDir  string
	Registry *services.Registry
	Log      *zap.Logger
}

// Server represents the HTTP API server
type Server struct {
	config   config.ServerConfig
	router   *chi.Mux
	repo     storage.Repository
	sessions session.Manager
	tokens   *auth.Service
	notifier *notify.Notifier
	hub      *notify.Hub
	bank     *questionbank.Loader
	bankDir  string
	registry *services.Registry
	log      *zap.Logger
	now      func() time.Time

	authMiddleware *AuthMiddleware
	userAuth       *UserAuth
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	s := &Server{
		config:         cfg,
		repo:           deps.Repo,
		sessions:       deps.Sessions,
		tokens:         deps.Tokens,
		notifier:       deps.Notifier,
		hub:            deps.Hub,
		bank:           deps.Bank,
		bankDir:        deps.BankDir,
		registry:       deps.Registry,
		log:            deps.Log,
		now:            time.Now,
		authMiddleware: NewAuthMiddleware(deps.Repo, deps.Tokens, deps.Log),
		userAuth:       NewUserAuth(deps.Tokens, deps.Log),
	}
	if s.registry == nil {
		s.registry = services.NewRegistry()
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	timeout := s.config.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	origins := s.config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (outside versioned API - public)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		// The websocket stream is long-lived and must not be cut by the request timeout.
		r.With(s.userAuth.RequireUser).Get("/notifications/ws", s.handleNotificationsWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(timeout))

			// Public
			r.Post("/auth/register", s.handleRegister)
			r.Post("/auth/login", s.handleLogin)
			r.Get("/leaderboard", s.handleLeaderboard)
			r.Get("/users/{id}/profile", s.handleUserProfile)

			// Signed-in users
			r.Group(func(r chi.Router) {
				r.Use(s.userAuth.RequireUser)

				r.Get("/auth/me", s.handleMe)
				r.Get("/gamification/summary", s.handleGamificationSummary)

				r.Route("/profile", func(r chi.Router) {
					r.Post("/update-bio", s.handleUpdateBio)
					r.Post("/update-name", s.handleUpdateName)
					r.Post("/update-notification-settings", s.handleUpdateNotificationSettings)
				})

				r.Route("/tests", func(r chi.Router) {
					r.Post("/start", s.handleStartTest)
					r.Post("/start-single-question/{questionId}", s.handleStartSingleQuestion)

					r.Route("/{id}", func(r chi.Router) {
						r.Post("/answer", s.handleSubmitAnswer)
						r.Get("/question/{index}", s.handleGetQuestion)
						r.Post("/complete", s.handleCompleteTest)
						r.Get("/result", s.handleGetResult)
					})
				})

				r.Get("/notifications", s.handleListNotifications)
				r.Post("/notifications/{id}/read", s.handleMarkNotificationRead)
			})

			// Admin (API key or admin user token)
			r.Route("/admin", func(r chi.Router) {
				r.Use(s.authMiddleware.Authenticate)

				r.Route("/questions", func(r chi.Router) {
					r.With(s.authMiddleware.RequirePermission(models.PermQuestionsRead)).Get("/", s.handleAdminListQuestions)
					r.With(s.authMiddleware.RequirePermission(models.PermQuestionsWrite)).Post("/", s.handleAdminCreateQuestion)
					r.With(s.authMiddleware.RequirePermission(models.PermQuestionsWrite)).Post("/seed", s.handleAdminSeedQuestions)
					r.With(s.authMiddleware.RequirePermission(models.PermQuestionsWrite)).Delete("/{id}", s.handleAdminDeleteQuestion)
				})

				r.With(s.authMiddleware.RequirePermission(models.PermUsersRead)).Get("/stats", s.handleAdminStats)

				r.Route("/users", func(r chi.Router) {
					r.With(s.authMiddleware.RequirePermission(models.PermUsersRead)).Get("/", s.handleAdminListUsers)
					r.With(s.authMiddleware.RequirePermission(models.PermUsersWrite)).Delete("/{id}", s.handleAdminDeleteUser)
					r.With(s.authMiddleware.RequirePermission(models.PermUsersWrite)).Post("/{id}/premium", s.handleAdminTogglePremium)
				})
			})
		})
	})

	s.router = r
}

// loggingMiddleware logs every HTTP request
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("remote_addr", r.RemoteAddr),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
