package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	stripego "github.com/stripe/stripe-go/v79"
	"go.uber.org/zap"

	handlers "github.com/companionlab/billing-service/internal/adapter/handler/http"
	"github.com/companionlab/billing-service/internal/config"
	"github.com/companionlab/billing-service/internal/infrastructure/database"
	"github.com/companionlab/billing-service/internal/middleware/auth"
	"github.com/companionlab/billing-service/internal/usecase"
	"github.com/companionlab/billing-service/pkg/logger"
)

type Server struct {
	config     *config.Config
	logger     *zap.Logger
	echo       *echo.Echo
	repos      *database.Repositories
	reconciler *usecase.Reconciler
	users      *usecase.UserService
}

func NewServer(
	cfg *config.Config,
	log *zap.Logger,
	repos *database.Repositories,
	reconciler *usecase.Reconciler,
	users *usecase.UserService,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Validator = NewValidator()

	// Initialize Stripe
	stripego.Key = cfg.Service.StripeSecretKey

	// Middleware
	e.Use(logger.NewEchoRequestLogger(log))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{cfg.Service.ClientURL},
		AllowMethods: []string{echo.GET, echo.POST, echo.PUT, echo.DELETE},
	}))

	return &Server{
		config:     cfg,
		logger:     log,
		echo:       e,
		repos:      repos,
		reconciler: reconciler,
		users:      users,
	}
}

func (s *Server) Start() error {
	if err := s.setupRoutes(); err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", s.config.Server.HTTP.Host, s.config.Server.HTTP.Port)
	s.logger.Info("Starting HTTP server", zap.String("address", addr))

	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) setupRoutes() error {
	// Health check
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": "billing",
		})
	})

	// Initialize handlers
	checkoutHandler := handlers.NewCheckoutHandler(s.logger, s.config.Service.ClientURL, s.repos.Users)
	subscriptionHandler := handlers.NewSubscriptionHandler(s.logger, s.repos.Users)
	stripeWebhookHandler := handlers.NewStripeWebhookHandler(s.logger, s.config.Service.StripeWebhookSecret, s.repos.WebhookEvents, s.reconciler)
	clerkWebhookHandler, err := handlers.NewClerkWebhookHandler(s.logger, s.config.Service.ClerkWebhookSecret, s.users)
	if err != nil {
		return fmt.Errorf("clerk webhook handler: %w", err)
	}

	// JWT middleware configuration
	jwtConfig := auth.JWTConfig{
		Secret: s.config.Service.SessionJWTSecret,
		Logger: s.logger,
		SkipPaths: []string{
			"/health",
			"/webhook",
		},
	}

	// API v1 routes (all require JWT authentication)
	v1 := s.echo.Group("/api/v1", auth.JWTMiddleware(jwtConfig))

	subscriptions := v1.Group("/subscriptions")
	subscriptions.POST("", checkoutHandler.CreateSubscription)
	subscriptions.GET("/current", subscriptionHandler.GetCurrentSubscription)
	subscriptions.DELETE("/current", subscriptionHandler.CancelSubscription)
	subscriptions.POST("/portal", checkoutHandler.CreatePortalSession)

	v1.GET("/checkout/session/:sessionId", checkoutHandler.CheckSessionStatus)

	// Webhook routes (outside API versioning, verified by signature)
	s.echo.POST("/webhook/stripe", stripeWebhookHandler.HandleWebhook)
	s.echo.POST("/webhook/clerk", clerkWebhookHandler.HandleWebhook)

	return nil
}
