// Package handler exposes the attendance service over HTTP with gin.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/directory"
	"qrattend/internal/report"
	"qrattend/internal/token"
)

// Checker reports whether a dependency is reachable.
type Checker func(ctx context.Context) bool

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Service   *attendance.Service
	Directory directory.Store
	Issuer    auth.Issuer
	Refresh   auth.RefreshStore
	Counters  report.Counters

	// Health checks keyed by dependency name, reported on /healthz.
	Health map[string]Checker

	// Now defaults to time.Now.
	Now func() time.Time
}

// Handler serves the v1 API.
type Handler struct {
	svc      *attendance.Service
	dir      directory.Store
	issuer   auth.Issuer
	refresh  auth.RefreshStore
	counters report.Counters
	health   map[string]Checker
	now      func() time.Time
}

// New builds a Handler from d.
func New(d Deps) *Handler {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Handler{
		svc:      d.Service,
		dir:      d.Directory,
		issuer:   d.Issuer,
		refresh:  d.Refresh,
		counters: d.Counters,
		health:   d.Health,
		now:      now,
	}
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range h.health {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// writeError maps domain errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	var invalid *attendance.InvalidTokenError
	switch {
	case errors.As(err, &invalid) && errors.Is(err, token.ErrExpired):
		c.JSON(http.StatusGone, gin.H{"error": "token expired", "code": "expired"})
	case errors.As(err, &invalid) && errors.Is(err, token.ErrInvalidSignature):
		c.JSON(http.StatusBadRequest, gin.H{"error": "token signature invalid", "code": "invalid_signature"})
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": "token malformed", "code": "malformed"})
	case errors.Is(err, attendance.ErrWrongTokenKind):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "wrong_token_kind"})
	case errors.Is(err, attendance.ErrForeignToken):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error(), "code": "forbidden"})
	case errors.Is(err, attendance.ErrAlreadyCompleted):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "already_completed"})
	case errors.Is(err, directory.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found", "code": "not_found"})
	case errors.Is(err, directory.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": "invalid_credentials"})
	default:
		_ = c.Error(err)
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": "internal"})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "bad_request"})
}
