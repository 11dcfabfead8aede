// Package api exposes the moderation engine over HTTP with gin. Handlers
// resolve the calling user once per request, run the Access Gate for the
// route group, and pass the resulting Actor into the components.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/mindstash/internal/access"
	"github.com/dharsanguruparan/mindstash/internal/auth"
	"github.com/dharsanguruparan/mindstash/internal/ban"
	"github.com/dharsanguruparan/mindstash/internal/config"
	"github.com/dharsanguruparan/mindstash/internal/material"
	"github.com/dharsanguruparan/mindstash/internal/metrics"
	"github.com/dharsanguruparan/mindstash/internal/model"
	"github.com/dharsanguruparan/mindstash/internal/moderation"
	"github.com/dharsanguruparan/mindstash/internal/notify"
	"github.com/dharsanguruparan/mindstash/internal/report"
)

// UserLoader reads the acting user on every request. Nothing caches it, so a
// ban is visible on the very next request.
type UserLoader interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
}

// Deps are the components the HTTP surface drives.
type Deps struct {
	Users         UserLoader
	Tokens        *auth.Tokens
	Materials     *material.Manager
	Reports       *report.Engine
	Moderation    *moderation.Processor
	Bans          *ban.Controller
	Notifications *notify.Service
}

// Server exposes HTTP endpoints for the moderation engine.
type Server struct {
	cfg    *config.Config
	deps   Deps
	engine *gin.Engine
	server *http.Server
	once   sync.Once
}

// New constructs a Server and registers its routes.
func New(cfg *config.Config, deps Deps) *Server {
	s := &Server{cfg: cfg, deps: deps}
	s.engine = s.routes()
	return s
}

// Handler returns the gin engine.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	if s.cfg.Metrics {
		r.Use(metrics.GinMiddleware())
		r.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	r.GET("/healthz", s.handleHealth)

	api := r.Group("/api")
	api.GET("/rules", s.handleRules)

	authed := api.Group("", s.authenticate())
	authed.GET("/reports/mine", s.handleMyReports)
	authed.GET("/notifications", s.handleNotifications)
	authed.PATCH("/notifications/mark-all-seen", s.handleMarkSeen)

	member := authed.Group("", gate(access.Member))
	member.POST("/materials", s.handleUpload)
	member.DELETE("/materials/:id", s.handleDeleteMaterial)
	member.POST("/materials/:id/upvote", s.handleUpvote)
	member.POST("/reports", s.handleSubmitReport)

	mod := authed.Group("/moderation", gate(access.Moderator))
	mod.GET("/reports", s.handleQueue)
	mod.PATCH("/reports/:id", s.handleResolve)
	mod.DELETE("/materials/:id", s.handleRemoveDirect)
	mod.GET("/users", s.handleListUsers)
	mod.POST("/users/:id/ban", s.handleBan)
	mod.POST("/users/:id/unban", s.handleUnban)
	return r
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:              s.cfg.Address,
			Handler:           s.engine,
			ReadHeaderTimeout: 10 * time.Second,
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	log.WithField("addr", s.cfg.Address).Info("api listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request")
			return
		}
		entry.Debug("request")
	}
}
