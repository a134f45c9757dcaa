// Package httpapi exposes the portal's HTTP surface: primary-account auth,
// identity management, the PIN challenge, acting-identity selection, and the
// enriched activity feed. Route gating mirrors the page gating rules: most
// resources require an acting identity, identity management does not.
package httpapi

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"supportdesk/account"
	"supportdesk/audit"
	"supportdesk/identity"
	"supportdesk/session"
)

// Server bundles the services behind the HTTP handlers.
type Server struct {
	accounts   *account.Service
	identities *identity.Service
	hub        *identity.Hub
	sessions   *session.Manager
	activity   *audit.Reader
	logger     *zap.Logger
}

// NewServer wires the handler dependencies.
func NewServer(
	accounts *account.Service,
	identities *identity.Service,
	hub *identity.Hub,
	sessions *session.Manager,
	activity *audit.Reader,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		accounts:   accounts,
		identities: identities,
		hub:        hub,
		sessions:   sessions,
		activity:   activity,
		logger:     logger,
	}
}

// Router builds the gin engine with all routes mounted.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.EnsureSession())

	api := r.Group("/api")
	{
		api.POST("/register", s.handleRegister)
		api.POST("/login", s.handleLogin)
	}

	authed := api.Group("")
	authed.Use(s.RequireAccount())
	{
		authed.GET("/me", s.handleMe)
		authed.POST("/logout", s.handleLogout)
		authed.GET("/session", s.handleSessionState)
		authed.POST("/session/current", s.handleSetCurrent)
		authed.POST("/identities/:id/authenticate", s.handleAuthenticate)
	}

	// Identity management stays reachable without an acting identity.
	management := authed.Group("/identities")
	management.Use(s.SuppressGate(identity.KindAgent), s.SuppressGate(identity.KindUser))
	{
		management.GET("", s.handleListIdentities)
		management.POST("", s.handleCreateIdentity)
		management.PATCH("/:id", s.handleUpdateIdentity)
		management.DELETE("/:id", s.handleDeactivateIdentity)
	}

	// The activity review page requires an acting agent identity.
	protected := authed.Group("")
	protected.Use(s.RequireIdentity(identity.KindAgent))
	{
		protected.GET("/activity", s.handleActivity)
	}

	return r
}

// sessionFor resolves the per-request session object for one identity kind.
func (s *Server) sessionFor(c *gin.Context, kind identity.Kind) *session.Session {
	return s.sessions.Session(
		c.Request.Context(),
		c.GetString(ctxSessionID),
		c.GetString(ctxAccountID),
		kind,
	)
}
