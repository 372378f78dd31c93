// Package api exposes the services over HTTP with gin.
package api

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"attendease/internal/alert"
	"attendease/internal/apperr"
	"attendease/internal/attendance"
	"attendease/internal/auth"
	"attendease/internal/calendar"
	"attendease/internal/httpmiddleware"
	"attendease/internal/logging"
	"attendease/internal/metrics"
	"attendease/internal/subject"
	"attendease/internal/ticket"
	"attendease/internal/user"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Server holds the services behind the routes.
type Server struct {
	Users      *user.Service
	Subjects   *subject.Service
	Attendance *attendance.Service
	Tickets    *ticket.Service
	Alerts     *alert.Service
	Calendar   *calendar.Service
	Issuer     *auth.Issuer

	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Limiter  *httpmiddleware.TokenBucket
	Checks   map[string]HealthCheck

	CORSOrigins    []string
	MaxUploadBytes int64
	Log            zerolog.Logger
}

// Router builds the gin engine with every route mounted.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logging.GinLogger(s.Log, "/healthz", "/metrics"))
	r.Use(s.Metrics.GinMiddleware())
	if len(s.CORSOrigins) > 0 {
		cfg := cors.Config{
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}
		if slices.Contains(s.CORSOrigins, "*") {
			cfg.AllowAllOrigins = true
			cfg.AllowCredentials = false
		} else {
			cfg.AllowOrigins = s.CORSOrigins
		}
		r.Use(cors.New(cfg))
	}
	r.Use(securityHeaders())

	r.GET("/healthz", s.healthz)
	if s.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{})))
	}

	public := r.Group("/api")
	if s.Limiter != nil {
		public.Use(s.Limiter.GinMiddleware(nil))
	}
	public.POST("/register", s.register)
	public.POST("/login", s.login)
	public.POST("/refresh", s.refresh)

	api := r.Group("/api", auth.Authenticate(s.Issuer))
	if s.Limiter != nil {
		api.Use(s.Limiter.GinMiddleware(nil))
	}
	teacher := auth.RequireRole(auth.RoleTeacher)

	api.GET("/me", s.me)
	api.GET("/users", s.listUsers)
	api.GET("/users/:id", s.getUser)
	api.PUT("/users/:id", s.updateUser)

	api.POST("/subjects", teacher, s.createSubject)
	api.GET("/subjects", s.listSubjects)

	api.POST("/attendance", teacher, s.recordAttendance)
	api.GET("/attendance", s.listAttendance)
	api.GET("/attendance/overview", teacher, s.overview)
	api.GET("/overview", teacher, s.overview)
	api.GET("/attendance/details", s.studentDetail)

	api.POST("/tickets", s.createTicket)
	api.GET("/tickets", s.listTickets)
	api.PUT("/tickets/:id/approve", teacher, s.approveTicket)
	api.PUT("/tickets/:id/reject", teacher, s.rejectTicket)
	api.GET("/tickets/:id/file", s.ticketFile)

	api.POST("/alerts", teacher, s.createAlert)
	api.GET("/alerts", s.listAlerts)

	api.POST("/calendar", teacher, s.createEvent)
	api.GET("/calendar", s.listEvents)

	return r
}

func (s *Server) healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range s.Checks {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// fail writes err as {"message"} with the status of its kind.
func (s *Server) fail(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.Log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"message": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": msg})
}

func principal(c *gin.Context) auth.Principal {
	p, _ := auth.FromContext(c)
	return p
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
