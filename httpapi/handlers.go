package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"supportdesk/account"
	"supportdesk/identity"
	"supportdesk/session"
)

func (s *Server) handleRegister(c *gin.Context) {
	var req account.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	acct, err := s.accounts.Register(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, account.ErrWeakPassword):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, account.ErrDuplicateEmail):
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
		default:
			s.logger.Error("register failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		}
		return
	}

	c.JSON(http.StatusCreated, accountView(acct))
}

func (s *Server) handleLogin(c *gin.Context) {
	var req account.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := s.accounts.Login(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, account.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		s.logger.Error("login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":   result.Token,
		"account": accountView(&result.Account),
	})
}

func (s *Server) handleLogout(c *gin.Context) {
	s.sessions.Logout(c.Request.Context(), c.GetString(ctxSessionID), c.GetString(ctxAccountID))
	c.SetCookie(SessionCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

func (s *Server) handleMe(c *gin.Context) {
	acct, err := s.accounts.GetByID(c.Request.Context(), c.GetString(ctxAccountID))
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
			return
		}
		s.logger.Error("fetch account failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, accountView(acct))
}

func (s *Server) handleSessionState(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}

	sess := s.sessionFor(c, kind)
	c.JSON(http.StatusOK, gin.H{
		"kind":              string(kind),
		"current_identity":  sess.Current(),
		"authenticated_ids": sess.AuthenticatedIDs(),
		"identity_required": sess.IdentityRequired(),
	})
}

// handleAuthenticate is the PIN challenge endpoint. A wrong PIN is an inline
// error for the dialog, never a lockout.
func (s *Server) handleAuthenticate(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}

	var req struct {
		PIN string `json:"pin"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := identity.ValidatePIN(req.PIN); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pin must be exactly 4 digits"})
		return
	}

	sess := s.sessionFor(c, kind)
	if !sess.Authenticate(c.Request.Context(), c.Param("id"), req.PIN) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_pin"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authenticated":    true,
		"current_identity": sess.Current(),
	})
}

func (s *Server) handleSetCurrent(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}

	var req struct {
		IdentityID string `json:"identity_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	sess := s.sessionFor(c, kind)
	if err := sess.SetCurrent(c.Request.Context(), req.IdentityID); err != nil {
		if errors.Is(err, session.ErrNotAuthenticated) {
			c.JSON(http.StatusConflict, gin.H{"error": "identity_not_authenticated"})
			return
		}
		s.logger.Error("set current identity failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "selection failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"current_identity": sess.Current()})
}

func (s *Server) handleListIdentities(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}

	reg := s.hub.ForAccount(c.Request.Context(), c.GetString(ctxAccountID), kind)
	idents := reg.Identities()

	out := make([]gin.H, 0, len(idents))
	for _, ident := range idents {
		out = append(out, identityView(ident))
	}
	c.JSON(http.StatusOK, gin.H{"identities": out, "loading": reg.Loading()})
}

func (s *Server) handleCreateIdentity(c *gin.Context) {
	var req struct {
		Kind  string  `json:"kind"`
		Name  string  `json:"name"`
		Phone *string `json:"phone"`
		Email *string `json:"email"`
		PIN   string  `json:"pin"`
		Role  string  `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	created, err := s.identities.Create(c.Request.Context(), identity.CreateParams{
		AccountID: c.GetString(ctxAccountID),
		Kind:      identity.Kind(req.Kind),
		Name:      req.Name,
		Phone:     req.Phone,
		Email:     req.Email,
		PIN:       req.PIN,
		Role:      identity.Role(req.Role),
	})
	if err != nil {
		if errors.Is(err, identity.ErrInvalidPIN) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "pin must be exactly 4 digits"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, identityView(created))
}

func (s *Server) handleUpdateIdentity(c *gin.Context) {
	var req struct {
		Name  *string `json:"name"`
		Phone *string `json:"phone"`
		Email *string `json:"email"`
		PIN   string  `json:"pin"`
		Role  *string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	var rolePtr *identity.Role
	if req.Role != nil {
		role := identity.Role(*req.Role)
		rolePtr = &role
	}

	updated, err := s.identities.Update(c.Request.Context(), c.GetString(ctxAccountID), c.Param("id"), identity.UpdateParams{
		Name:  req.Name,
		Phone: req.Phone,
		Email: req.Email,
		PIN:   req.PIN,
		Role:  rolePtr,
	})
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "identity not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, identityView(updated))
}

func (s *Server) handleDeactivateIdentity(c *gin.Context) {
	err := s.identities.Deactivate(c.Request.Context(), c.GetString(ctxAccountID), c.Param("id"))
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "identity not found"})
			return
		}
		s.logger.Error("deactivate identity failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "deactivate failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deactivated"})
}

func (s *Server) handleActivity(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	entries, err := s.activity.ListRecent(c.Request.Context(), c.GetString(ctxAccountID), limit)
	if err != nil {
		s.logger.Error("activity fetch failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "activity fetch failed"})
		return
	}

	out := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		view := gin.H{
			"id":         e.ID,
			"action":     e.Action,
			"detail":     e.Detail,
			"created_at": e.CreatedAt,
		}
		if e.IdentityID != nil {
			view["identity"] = gin.H{
				"id":       *e.IdentityID,
				"ref_code": e.RefCode,
				"name":     e.IdentityName,
			}
		}
		out = append(out, view)
	}
	c.JSON(http.StatusOK, gin.H{"entries": out})
}

func kindParam(c *gin.Context) (identity.Kind, bool) {
	kind := identity.Kind(c.DefaultQuery("kind", string(identity.KindAgent)))
	switch kind {
	case identity.KindAgent, identity.KindUser:
		return kind, true
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid kind"})
		return "", false
	}
}

func accountView(acct *account.Account) gin.H {
	return gin.H{
		"id":       acct.ID,
		"email":    acct.Email,
		"org_name": acct.OrgName,
		"role":     string(acct.Role),
	}
}

func identityView(ident identity.Identity) gin.H {
	view := gin.H{
		"id":         ident.ID,
		"kind":       string(ident.Kind),
		"ref_code":   ident.RefCode,
		"name":       ident.Name,
		"active":     ident.Active,
		"created_at": ident.CreatedAt,
	}
	if ident.Phone != nil {
		view["phone"] = *ident.Phone
	}
	if ident.Email != nil {
		view["email"] = *ident.Email
	}
	if ident.Role != "" {
		view["role"] = string(ident.Role)
	}
	return view
}
