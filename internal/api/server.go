package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/stackdraft/internal/orchestrator"
)

// Orchestrator is the workflow surface the webhook dispatcher drives.
type Orchestrator interface {
	HandlePullRequestOpened(ctx context.Context, ev orchestrator.PullRequestOpened) (orchestrator.Result, error)
	HandleCommentEdited(ctx context.Context, ev orchestrator.CommentEdited) (orchestrator.Result, error)
}

// Server represents the webhook API server
type Server struct {
	echo          *echo.Echo
	host          string
	port          int
	webhookSecret string
	orchestrator  Orchestrator
	log           zerolog.Logger
}

// NewServer creates a new webhook API server
func NewServer(host string, port int, webhookSecret string, orch Orchestrator, log zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())

	server := &Server{
		echo:          e,
		host:          host,
		port:          port,
		webhookSecret: webhookSecret,
		orchestrator:  orch,
		log:           log.With().Str("component", "api").Logger(),
	}

	server.setupRoutes()

	return server
}

// setupRoutes configures all endpoints
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthHandler)
	s.echo.POST("/", s.webhookHandler)
}

func (s *Server) healthHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Handler exposes the underlying handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start begins serving and blocks until interrupted, then drains for up
// to ten seconds.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)

	go func() {
		s.log.Info().Str("addr", addr).Msg("webhook server listening")
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			s.log.Fatal().Err(err).Msg("shutting down the server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(ctx)
}
