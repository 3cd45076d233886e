package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"guildstats/internal/metrics"
	"guildstats/internal/models"
	"guildstats/internal/stats"
)

// SessionLister exposes currently open voice sessions.
type SessionLister interface {
	ListOpenSessions(ctx context.Context, guildID string) ([]models.VoiceSession, error)
}

// Server exposes activity queries over HTTP for rendering and command
// collaborators.
type Server struct {
	stats    *stats.Service
	sessions SessionLister

	router *gin.Engine
	server *http.Server
	logger zerolog.Logger
}

// NewServer creates a new API server
func NewServer(addr string, statsService *stats.Service, sessions SessionLister, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		stats:    statsService,
		sessions: sessions,
		router:   router,
		server: &http.Server{
			Addr:    addr,
			Handler: router,
		},
		logger: logger.With().Str("component", "api").Logger(),
	}

	v1 := router.Group("/api/v1")
	v1.GET("/guilds/:guild_id/users/:user_id/activity", s.handleUserActivity)
	v1.GET("/guilds/:guild_id/channels/:channel_id/activity", s.handleChannelActivity)
	v1.GET("/guilds/:guild_id/voice-sessions", s.handleVoiceSessions)

	return s
}

// Router returns the underlying router, for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start starts the API server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting API server")
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()
	return nil
}

// Stop gracefully stops the API server
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return s.server.Close()
	}
	s.logger.Info().Msg("API server stopped")
	return nil
}

func periodQuery(c *gin.Context) stats.PeriodQuery {
	return stats.PeriodQuery{
		Period: c.Query("period"),
		From:   c.Query("from"),
		To:     c.Query("to"),
	}
}

func (s *Server) handleUserActivity(c *gin.Context) {
	activity, err := s.stats.GetUserActivity(
		c.Request.Context(),
		c.Param("guild_id"),
		c.Param("user_id"),
		periodQuery(c),
	)
	if err != nil {
		s.renderError(c, err)
		return
	}

	metrics.ActivityQueries.WithLabelValues(string(models.ScopeUser), "api").Inc()
	c.JSON(http.StatusOK, activity)
}

func (s *Server) handleChannelActivity(c *gin.Context) {
	activity, err := s.stats.GetChannelActivity(
		c.Request.Context(),
		c.Param("guild_id"),
		c.Param("channel_id"),
		periodQuery(c),
	)
	if err != nil {
		s.renderError(c, err)
		return
	}

	metrics.ActivityQueries.WithLabelValues(string(models.ScopeChannel), "api").Inc()
	c.JSON(http.StatusOK, activity)
}

func (s *Server) handleVoiceSessions(c *gin.Context) {
	sessions, err := s.sessions.ListOpenSessions(c.Request.Context(), c.Param("guild_id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	if sessions == nil {
		sessions = []models.VoiceSession{}
	}

	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (s *Server) renderError(c *gin.Context, err error) {
	if errors.Is(err, stats.ErrPartialCustomRange) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.logger.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
