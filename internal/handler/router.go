package handler

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"qrattend/internal/auth"
	"qrattend/internal/directory"
	"qrattend/internal/httpmiddleware"
	"qrattend/internal/logging"
)

// RouterOptions configures the middleware stack.
type RouterOptions struct {
	AllowedOrigins []string
	AdminKey       string

	// Limiter throttles every /v1 route when set.
	Limiter httpmiddleware.Limiter

	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// Router builds the gin engine with every v1 route.
func Router(h *Handler, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logging.Requests("/healthz", "/metrics"))
	r.Use(cors.New(corsConfig(opts.AllowedOrigins)))
	r.Use(securityHeaders())

	r.GET("/healthz", h.Healthz)
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	v1 := r.Group("/v1")
	if opts.Limiter != nil {
		v1.Use(httpmiddleware.RateLimit(opts.Limiter, httpmiddleware.ClientIP))
	}

	v1.POST("/auth/login", h.Login)
	v1.POST("/auth/refresh", h.Refresh)

	admin := v1.Group("", auth.AdminKey(opts.AdminKey))
	admin.POST("/institutions", h.UpsertInstitution)
	admin.POST("/institutions/:code/teachers", h.UpsertTeacher)
	admin.POST("/institutions/:code/students", h.UpsertStudent)

	teacher := v1.Group("", auth.Bearer(h.issuer, directory.RoleTeacher))
	teacher.POST("/sessions/class", h.IssueClassSession)
	teacher.POST("/sessions/teacher-self", h.IssueTeacherSelf)
	teacher.POST("/attendance/teacher-scan", h.ScanTeacherSelf)
	teacher.GET("/reports/sessions/:id", h.SessionReport)
	teacher.GET("/reports/students/:id", h.StudentReport())
	teacher.GET("/reports/subjects/:subject", h.SubjectReport())
	teacher.GET("/reports/institution", h.InstitutionReport())
	teacher.GET("/reports/teacher/me", h.MyWorkdays())
	teacher.GET("/reports/live", h.Live)

	student := v1.Group("", auth.Bearer(h.issuer, directory.RoleStudent))
	student.POST("/attendance/scan", h.ScanClass)
	student.GET("/reports/me", h.MyAttendance())

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Key"},
		ExposeHeaders: []string{"X-Session-Id"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Cache-Control", "no-store")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
