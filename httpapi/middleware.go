package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"supportdesk/identity"
)

const (
	// SessionCookie carries the client session ID the selection state is
	// scoped to.
	SessionCookie = "sd_session"
	// IdentityWarningHeader flags a missing acting identity on routes that
	// stay usable without one.
	IdentityWarningHeader = "X-Identity-Warning"

	ctxAccountID   = "account_id"
	ctxAccountRole = "account_role"
	ctxSessionID   = "session_id"
	ctxIdentityID  = "identity_id"
)

// EnsureSession guarantees every request carries a client session ID,
// minting a cookie when none is present.
func (s *Server) EnsureSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		sid, err := c.Cookie(SessionCookie)
		if err != nil || sid == "" {
			sid = uuid.NewString()
			c.SetCookie(SessionCookie, sid, 0, "/", "", false, true)
		}
		c.Set(ctxSessionID, sid)
		c.Next()
	}
}

// RequireAccount authenticates the primary account from a bearer token. The
// failure response carries the intended destination so the client can return
// to it after login.
func (s *Server) RequireAccount() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":    "unauthorized",
				"redirect": c.Request.URL.RequestURI(),
			})
			return
		}

		accountID, role, err := s.accounts.VerifyToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":    "unauthorized",
				"redirect": c.Request.URL.RequestURI(),
			})
			return
		}

		c.Set(ctxAccountID, accountID)
		c.Set(ctxAccountRole, string(role))
		c.Next()
	}
}

// RequireIdentity is the full-page gate: when the session demands an acting
// identity and none is selected, the protected resource is replaced by the
// identity picker payload. Runs after RequireAccount and EnsureSession.
func (s *Server) RequireIdentity(kind identity.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := s.sessionFor(c, kind)
		if sess.IdentityRequired() && sess.Current() == "" {
			reg := s.hub.ForAccount(c.Request.Context(), c.GetString(ctxAccountID), kind)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":      "identity_required",
				"kind":       string(kind),
				"identities": pickerView(reg.Identities()),
			})
			return
		}

		c.Set(ctxIdentityID, sess.Current())
		c.Next()
	}
}

// IdentityBanner is the non-blocking gate variant: the request proceeds, with
// a warning header the client renders as a dismissible banner.
func (s *Server) IdentityBanner(kind identity.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := s.sessionFor(c, kind)
		if sess.IdentityRequired() && sess.Current() == "" {
			c.Header(IdentityWarningHeader, "identity_required")
		} else {
			c.Set(ctxIdentityID, sess.Current())
		}
		c.Next()
	}
}

// SuppressGate disables the identity requirement for the duration of the
// request and restores it afterwards. Identity-management routes mount it so
// administrators can reach them before any identity exists.
func (s *Server) SuppressGate(kind identity.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := s.sessionFor(c, kind)
		restore := sess.SuppressRequirement()
		defer restore()
		c.Next()
	}
}

func pickerView(idents []identity.Identity) []gin.H {
	out := make([]gin.H, 0, len(idents))
	for _, ident := range idents {
		out = append(out, gin.H{
			"id":       ident.ID,
			"ref_code": ident.RefCode,
			"name":     ident.Name,
		})
	}
	return out
}
