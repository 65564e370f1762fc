package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/plextask/keygate"
	"github.com/plextask/keygate/middleware"
)

// Service is the part of *keygate.Engine the HTTP surface drives.
type Service interface {
	Register(ctx context.Context, req keygate.RegistrationRequest) (keygate.PendingCode, error)
	ConfirmRegistration(ctx context.Context, code int) (keygate.AccountIdentity, error)
	Authenticate(ctx context.Context, identifier, password string) (keygate.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (keygate.AccessToken, error)
	ValidateAccess(accessToken string) (keygate.Principal, error)
	RequestRecovery(ctx context.Context, email string) (keygate.PendingCode, error)
	RedeemRecovery(ctx context.Context, code int, newPassword, confirm string) (keygate.AccountIdentity, error)
	RefreshTTL() time.Duration
}

// Options tunes the HTTP surface. The zero value is usable.
type Options struct {
	Logger *zap.Logger

	// AllowedOrigins lists origins that may call the API with credentials.
	// A "*" entry reflects any origin together with
	// Access-Control-Allow-Credentials, so every site can make calls that
	// carry the refresh cookie. Use it for local development only.
	AllowedOrigins []string

	// MaskCredentialErrors answers both unknown identity and wrong password
	// with one 401 instead of per-field 404 errors.
	MaskCredentialErrors bool

	// InsecureCookies drops the Secure attribute from the refresh cookie.
	// Only meant for plain-HTTP local development.
	InsecureCookies bool

	// Metrics is mounted at GET /metrics when set.
	Metrics http.Handler

	// Health is called by GET /healthz when set.
	Health func(ctx context.Context) error
}

// Server exposes a Service over HTTP.
type Server struct {
	svc    Service
	log    *zap.Logger
	opts   Options
	router *gin.Engine
}

// New builds the router with every route registered.
func New(svc Service, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	s := &Server{
		svc:    svc,
		log:    log,
		opts:   opts,
		router: gin.New(),
	}

	s.router.Use(recoverer(log), requestLogger(log), cors(opts.AllowedOrigins))
	s.routes()
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	auth := r.Group("/auth")
	{
		auth.POST("/register", s.register)
		auth.POST("/register-confirm", s.registerConfirm)
		auth.POST("/login", s.login)
		auth.POST("/logout", s.logout)
		auth.POST("/token/refresh", s.refresh)
		auth.POST("/request-password-recovery", s.requestRecovery)
		auth.POST("/password-recovery", s.passwordRecovery)
		auth.GET("/session", middleware.Gin(s.svc), s.session)
	}

	r.GET("/healthz", s.healthz)
	if s.opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.opts.Metrics))
	}
}

// requestContext carries the caller's address and agent into audit events.
func requestContext(c *gin.Context) context.Context {
	ctx := keygate.WithClientIP(c.Request.Context(), c.ClientIP())
	return keygate.WithUserAgent(ctx, c.Request.UserAgent())
}
