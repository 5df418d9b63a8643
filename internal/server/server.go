package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mixelka/unibox/internal/account"
	"github.com/mixelka/unibox/internal/config"
	"github.com/mixelka/unibox/internal/database"
	"github.com/mixelka/unibox/internal/inbox"
	"github.com/mixelka/unibox/internal/provider"
	"github.com/mixelka/unibox/internal/webhook"
)

// Server is the HTTP surface: the consolidated inbox API, integration
// management and the webhook receiver.
type Server struct {
	echo     *echo.Echo
	inbox    *inbox.Service
	accounts *account.Service
	ingestor *webhook.Ingestor
	cfg      *config.Config
	logger   *slog.Logger
}

// Deps are the collaborators the server routes to
type Deps struct {
	Inbox    *inbox.Service
	Accounts *account.Service
	Ingestor *webhook.Ingestor
	Config   *config.Config
	Logger   *slog.Logger
}

// New creates the HTTP server and registers all routes
func New(deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:     e,
		inbox:    deps.Inbox,
		accounts: deps.Accounts,
		ingestor: deps.Ingestor,
		cfg:      deps.Config,
		logger:   deps.Logger.With("component", "server"),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	api := s.echo.Group("/api/users/:userID")

	api.GET("/messages", s.getMessages)
	api.GET("/messages/:externalID", s.getMessage)
	api.POST("/messages/read", s.markRead)
	api.POST("/messages/send", s.sendMessage)
	api.GET("/messages/:externalID/attachments/:attachmentID", s.getAttachment)

	api.GET("/integrations", s.listIntegrations)
	api.GET("/integrations/:platform/url", s.getAuthorizationURL)
	api.POST("/integrations/:platform/exchange", s.exchangeCode)
	api.POST("/integrations/:platform/activate", s.activateAccount)
	api.DELETE("/integrations/:platform/:accountID", s.disconnectAccount)

	api.POST("/whatsapp/connect", s.connectWhatsApp)
	api.POST("/whatsapp/disconnect", s.disconnectWhatsApp)

	s.echo.GET("/webhooks/whatsapp", s.verifyWhatsAppWebhook)
	s.echo.POST("/webhooks/whatsapp", s.receiveWhatsAppWebhook)
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(s.cfg.ListenAddr)
	}()
	s.logger.Info("http server listening", "addr", s.cfg.ListenAddr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func ok(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"data": data})
}

func fail(c echo.Context, status int, message string) error {
	return c.JSON(status, map[string]interface{}{"error": message})
}

// statusFor maps domain errors to HTTP statuses
func statusFor(err error) int {
	switch {
	case errors.Is(err, database.ErrNotFound), errors.Is(err, provider.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, provider.ErrReauthRequired):
		return http.StatusUnauthorized
	case errors.Is(err, provider.ErrUnsupported):
		return http.StatusBadRequest
	case errors.Is(err, provider.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, provider.ErrUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
