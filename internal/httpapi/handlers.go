package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	auditrepo "donorhub/backend/internal/audit/repository"
	userdomain "donorhub/backend/internal/user/domain"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

type handlers struct {
	auth  Authenticator
	audit auditrepo.Repository
}

type userView struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Role        string     `json:"role"`
	Status      string     `json:"status"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func viewUser(u *userdomain.User) userView {
	return userView{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Role:        string(u.Role),
		Status:      string(u.Status),
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
	}
}

type registerRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name"`
}

func (h *handlers) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithCode(c, http.StatusBadRequest, codeBadRequest, "email and password are required")
		return
	}
	u, err := h.auth.Register(c.Request.Context(), req.Email, req.Password, req.Name, clientMeta(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": viewUser(u)})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *handlers) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithCode(c, http.StatusBadRequest, codeBadRequest, "email and password are required")
		return
	}
	res, err := h.auth.Login(c.Request.Context(), req.Email, req.Password, clientMeta(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":         viewUser(res.User),
		"accessToken":  res.AccessToken,
		"refreshToken": res.RefreshToken,
		"sessionId":    res.SessionID,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

func (h *handlers) refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithCode(c, http.StatusBadRequest, codeBadRequest, "refreshToken is required")
		return
	}
	access, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken, clientMeta(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accessToken": access})
}

func (h *handlers) logout(c *gin.Context) {
	h.auth.Logout(c.Request.Context(), bearerToken(c.Request), clientMeta(c))
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *handlers) logoutAll(c *gin.Context) {
	p := Caller(c)
	n := h.auth.LogoutAll(c.Request.Context(), p.User.ID, clientMeta(c))
	c.JSON(http.StatusOK, gin.H{"removedCount": n})
}

func (h *handlers) me(c *gin.Context) {
	p := Caller(c)
	c.JSON(http.StatusOK, gin.H{"user": viewUser(p.User), "sessionId": p.SessionID})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
}

func (h *handlers) changePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithCode(c, http.StatusBadRequest, codeBadRequest, "currentPassword and newPassword are required")
		return
	}
	p := Caller(c)
	if err := h.auth.ChangePassword(c.Request.Context(), p.User.ID, req.CurrentPassword, req.NewPassword, clientMeta(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *handlers) clearSessions(c *gin.Context) {
	p := Caller(c)
	n := h.auth.ClearAllSessions(c.Request.Context(), p.User.ID, clientMeta(c))
	c.JSON(http.StatusOK, gin.H{"removedCount": n})
}

type auditView struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
	Action    string    `json:"action"`
	Outcome   string    `json:"outcome"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (h *handlers) listAudit(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		abortWithCode(c, http.StatusBadRequest, codeBadRequest, "user_id is required")
		return
	}
	limit := defaultAuditLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			abortWithCode(c, http.StatusBadRequest, codeBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxAuditLimit)
	}
	entries, err := h.audit.ListByUser(c.Request.Context(), userID, limit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	out := make([]auditView, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditView{
			ID:        e.ID,
			UserID:    e.UserID,
			SessionID: e.SessionID,
			Action:    string(e.Action),
			Outcome:   string(e.Outcome),
			IP:        e.IP,
			UserAgent: e.UserAgent,
			Error:     e.Error,
			CreatedAt: e.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"entries": out})
}
