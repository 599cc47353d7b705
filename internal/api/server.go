package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/david/grantmate/internal/ai"
	"github.com/david/grantmate/internal/auth"
	"github.com/david/grantmate/internal/db"
	"github.com/david/grantmate/internal/drafting"
	"github.com/david/grantmate/internal/grants"
	"github.com/david/grantmate/internal/linkcheck"
	"github.com/david/grantmate/internal/models"
)

// Store is the record store the handlers use. *db.Store implements it.
type Store interface {
	CreateClient(ctx context.Context, c *models.Client, missionEmbedding []float32) error
	UpdateClient(ctx context.Context, c *models.Client, missionEmbedding []float32) error
	GetClient(ctx context.Context, userID, id uuid.UUID) (*models.Client, error)
	GetClientEmbedding(ctx context.Context, userID, id uuid.UUID) ([]float32, error)
	ListClients(ctx context.Context, userID uuid.UUID) ([]models.Client, error)
	DeleteClient(ctx context.Context, userID, id uuid.UUID) error

	CreateApplication(ctx context.Context, a *models.Application) error
	GetApplication(ctx context.Context, userID, id uuid.UUID) (*models.Application, error)
	ListApplications(ctx context.Context, userID, clientID uuid.UUID) ([]models.Application, error)
	UpdateApplicationStatus(ctx context.Context, userID, id uuid.UUID, status models.ApplicationStatus) error
	SetFunderGuidance(ctx context.Context, userID, id uuid.UUID, guidance string) error
	UpsertSection(ctx context.Context, applicationID uuid.UUID, sectionType, content string, position int) (*models.DraftSection, error)

	SaveGrant(ctx context.Context, g *models.SavedGrant, linkURL string, embedding []float32) error
	ListSavedGrants(ctx context.Context, userID, clientID uuid.UUID, missionEmbedding []float32) ([]models.SavedGrant, error)
	DeleteSavedGrant(ctx context.Context, userID, clientID, id uuid.UUID) error

	linkcheck.LinkStore

	RecordSearchRun(ctx context.Context, r *models.SearchRun) error
	ListSearchRuns(ctx context.Context, userID *uuid.UUID, limit int) ([]models.SearchRun, error)
	GetDashboardStats(ctx context.Context, userID uuid.UUID) (*models.DashboardStats, error)
}

type Authenticator interface {
	Signup(ctx context.Context, req auth.SignupRequest) (*auth.AuthResponse, error)
	Login(ctx context.Context, req auth.LoginRequest) (*auth.AuthResponse, error)
	Middleware(next echo.HandlerFunc) echo.HandlerFunc
	OptionalMiddleware(next echo.HandlerFunc) echo.HandlerFunc
}

type Searcher interface {
	Search(ctx context.Context, q grants.SearchQuery) (*grants.SearchResult, error)
}

type Drafter interface {
	GenerateSection(ctx context.Context, in drafting.WizardInput, client models.Client, sectionID, funderGuidance string) (string, error)
	GenerateDraft(ctx context.Context, in drafting.WizardInput, client models.Client, funderGuidance string) ([]drafting.GeneratedSection, error)
	Regenerate(ctx context.Context, sectionID, current, instructions, funderGuidance string) (string, error)
}

type LinkChecker interface {
	Check(ctx context.Context, url string) linkcheck.Result
	VerifySaved(ctx context.Context, store linkcheck.LinkStore, limit int) (linkcheck.Summary, error)
}

// Deps wires the server. Embedder may be nil, in which case clients and saved
// grants are stored without embeddings.
type Deps struct {
	Store       Store
	Auth        Authenticator
	Finder      Searcher
	Drafter     Drafter
	Links       LinkChecker
	Embedder    ai.Embedder
	AdminSecret []byte
	CORSOrigins []string
	Logger      *zap.Logger
}

type Server struct {
	Echo *echo.Echo

	store       Store
	auth        Authenticator
	finder      Searcher
	drafter     Drafter
	links       LinkChecker
	embedder    ai.Embedder
	adminSecret []byte
	logger      *zap.Logger

	// Background job tracking
	jobMu      sync.Mutex
	runningJob *backgroundJob
	jobTimeout time.Duration
}

type backgroundJob struct {
	ID        string             `json:"id"`
	Kind      string             `json:"kind"`
	Status    string             `json:"status"` // running, completed, failed
	StartedAt time.Time          `json:"started_at"`
	EndedAt   time.Time          `json:"ended_at,omitempty"`
	Result    any                `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
	Cancel    context.CancelFunc `json:"-"`
}

func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = errorHandler(d.Logger)
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			d.Logger.Info("request", fields...)
			return nil
		},
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: d.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-Admin-Secret"},
	}))

	s := &Server{
		Echo:        e,
		store:       d.Store,
		auth:        d.Auth,
		finder:      d.Finder,
		drafter:     d.Drafter,
		links:       d.Links,
		embedder:    d.Embedder,
		adminSecret: d.AdminSecret,
		logger:      d.Logger,
		jobTimeout:  30 * time.Minute,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)
	s.Echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := s.Echo.Group("/api/v1")

	// Auth Routes
	api.POST("/auth/signup", s.handleSignup)
	api.POST("/auth/login", s.handleLogin)

	// Search is open to anonymous users; signed-in searches are recorded.
	api.POST("/grants/search", s.handleSearch, s.auth.OptionalMiddleware)

	protected := api.Group("")
	protected.Use(s.auth.Middleware)
	protected.POST("/grants/verify-link", s.handleVerifyLink)
	protected.GET("/searches", s.handleListSearches)
	protected.GET("/dashboard", s.handleDashboard)

	protected.GET("/clients", s.handleListClients)
	protected.POST("/clients", s.handleCreateClient)
	protected.GET("/clients/:id", s.handleGetClient)
	protected.PUT("/clients/:id", s.handleUpdateClient)
	protected.DELETE("/clients/:id", s.handleDeleteClient)
	protected.POST("/clients/:id/suggestions", s.handleSuggestions)
	protected.GET("/clients/:id/saved-grants", s.handleListSavedGrants)
	protected.POST("/clients/:id/saved-grants", s.handleSaveGrant)
	protected.DELETE("/clients/:id/saved-grants/:grantID", s.handleDeleteSavedGrant)
	protected.GET("/clients/:id/applications", s.handleListApplications)

	protected.POST("/applications", s.handleCreateApplication)
	protected.GET("/applications/:id", s.handleGetApplication)
	protected.PATCH("/applications/:id/status", s.handleUpdateApplicationStatus)
	protected.PUT("/applications/:id/sections/:section", s.handleSaveSection)
	protected.POST("/applications/:id/sections/:section/generate", s.handleGenerateSection)
	protected.POST("/applications/:id/sections/:section/regenerate", s.handleRegenerateSection)
	protected.POST("/applications/:id/rfp", s.handleUploadRFP)
	protected.GET("/applications/:id/export", s.handleExportApplication)

	// Admin Routes
	admin := api.Group("/admin")
	admin.Use(s.adminMiddleware)
	admin.GET("/search-runs", s.handleAdminSearchRuns)
	admin.POST("/verify-saved-links", s.handleVerifySavedLinks)
	admin.GET("/job/:id", s.handleJobStatus)
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.jobMu.Lock()
	if s.runningJob != nil && s.runningJob.Status == "running" {
		s.runningJob.Cancel()
	}
	s.jobMu.Unlock()
	return s.Echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func jsonError(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}

// errorHandler renders every echo error, including ones raised by
// middleware, as {"error": "..."}.
func errorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status := http.StatusInternalServerError
		msg := "Internal server error"
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			if m, ok := he.Message.(string); ok {
				msg = m
			} else {
				msg = http.StatusText(he.Code)
			}
		} else {
			logger.Error("unhandled error", zap.Error(err))
		}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = jsonError(c, status, msg)
	}
}

// storeError maps store failures onto responses. what names the missing
// resource in the 404 message.
func (s *Server) storeError(c echo.Context, err error, what string) error {
	if errors.Is(err, db.ErrNotFound) {
		return jsonError(c, http.StatusNotFound, what+" not found")
	}
	s.logger.Error("store error", zap.String("path", c.Path()), zap.Error(err))
	return jsonError(c, http.StatusInternalServerError, "Internal server error")
}

func userID(c echo.Context) (uuid.UUID, error) {
	id, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}
	return id, nil
}

func pathUUID(c echo.Context, name, label string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "Invalid "+label+" ID")
	}
	return id, nil
}

func (s *Server) adminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if len(s.adminSecret) == 0 {
			return jsonError(c, http.StatusInternalServerError, "Server admin configuration error")
		}

		// Check X-Admin-Secret header or Bearer token
		candidate := c.Request().Header.Get("X-Admin-Secret")
		if candidate == "" {
			authHeader := c.Request().Header.Get("Authorization")
			if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
				candidate = authHeader[7:]
			}
		}
		if candidate != "" && subtle.ConstantTimeCompare([]byte(candidate), s.adminSecret) == 1 {
			return next(c)
		}
		return jsonError(c, http.StatusUnauthorized, "Unauthorized admin access")
	}
}

// embed returns nil when no embedder is configured or the call fails; a
// missing embedding only affects ordering.
func (s *Server) embed(ctx context.Context, text string) []float32 {
	text = strings.TrimSpace(text)
	if s.embedder == nil || text == "" {
		return nil
	}
	v, err := s.embedder.GenerateEmbedding(ctx, text)
	if err != nil {
		s.logger.Warn("embedding failed", zap.Error(err))
		return nil
	}
	return v
}
