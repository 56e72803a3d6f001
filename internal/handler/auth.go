package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"qrattend/internal/auth"
	"qrattend/internal/directory"
)

// ---------- Login / Refresh ----------

type loginRequest struct {
	InstitutionCode string `json:"institution_code" binding:"required"`
	Role            string `json:"role" binding:"required,oneof=teacher student"`
	ID              string `json:"id" binding:"required"`
	Password        string `json:"password" binding:"required"`
}

// Login exchanges credentials for an access/refresh token pair.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := directory.Authenticate(c.Request.Context(), h.dir, req.InstitutionCode, req.Role, req.ID, req.Password)
	if err != nil {
		if errors.Is(err, directory.ErrInvalidCredentials) {
			log.Info().Str("institution", req.InstitutionCode).Str("role", req.Role).Str("id", req.ID).Msg("login rejected")
		}
		writeError(c, err)
		return
	}
	h.issuePair(c, http.StatusOK, p.ID, p.Role, p.InstitutionCode)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh rotates a refresh token. Each refresh token works once.
func (h *Handler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	claims, err := h.issuer.Parse(req.RefreshToken, auth.TypeRefresh)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token", "code": "invalid_token"})
		return
	}
	live, err := h.refresh.Consume(c.Request.Context(), claims.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	if !live {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "refresh token already used", "code": "invalid_token"})
		return
	}
	h.issuePair(c, http.StatusOK, claims.Subject, claims.Role, claims.Institution)
}

func (h *Handler) issuePair(c *gin.Context, status int, subject, role, institution string) {
	pair, err := h.issuer.Issue(subject, role, institution, h.now())
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.refresh.Save(c.Request.Context(), pair.RefreshID, subject, pair.RefreshExp); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(status, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"expires_at":    pair.AccessExp.Unix(),
		"role":          role,
	})
}
