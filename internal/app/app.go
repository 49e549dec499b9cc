package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/akozyrev/fitcoach-service/internal/config"
	"github.com/akozyrev/fitcoach-service/internal/handler"
	"github.com/akozyrev/fitcoach-service/internal/repository"
	"github.com/akozyrev/fitcoach-service/internal/service"
	"github.com/akozyrev/fitcoach-service/pkg/ai"
	"github.com/akozyrev/fitcoach-service/pkg/observability"
	"github.com/akozyrev/fitcoach-service/pkg/telegram"
	"github.com/akozyrev/fitcoach-service/pkg/whoop"
)

const (
	serviceName     = "fitcoach-service"
	shutdownTimeout = 5 * time.Second

	// updateDedupTTL keeps claimed update ids long past Telegram's redelivery
	// window.
	updateDedupTTL = 24 * time.Hour
)

type App struct {
	infra      Infrastructure
	config     *config.Config
	router     *gin.Engine
	server     *http.Server
	telegram   *telegram.Client
	engagement service.Engagement
}

func NewApp(infra Infrastructure, cfg *config.Config) (*App, error) {
	repos := repository.NewRepositories(infra.Firestore())
	logger := infra.Logger()

	metrics, err := observability.NewMetrics(serviceName)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	whoopClient := whoop.NewClient(whoop.Config{
		ClientID:     cfg.Whoop.ClientID,
		ClientSecret: cfg.Whoop.ClientSecret,
		AuthURL:      cfg.Whoop.AuthURL,
		TokenURL:     cfg.Whoop.TokenURL,
		APIBaseURL:   cfg.Whoop.APIBaseURL,
		RedirectURL:  strings.TrimRight(cfg.PublicURL, "/") + "/whoop/callback",
		Scopes:       cfg.Whoop.Scopes,
		Timeout:      cfg.Whoop.Timeout.Duration,
		PageLimit:    cfg.Whoop.PageLimit,
	})

	telegramClient := telegram.NewClient(cfg.Telegram.Token, cfg.Telegram.SendTimeout.Duration,
		telegram.WithBaseURL(cfg.Telegram.APIBaseURL))

	aiClient := ai.NewClient(ai.Config{
		APIKey:  cfg.AI.APIKey,
		BaseURL: cfg.AI.BaseURL,
		Model:   cfg.AI.Model,
		Timeout: cfg.AI.Timeout.Duration,
	})

	vault := service.NewTokenVault(repos.Token, whoopClient, cfg.Whoop.RefreshMargin.Duration, logger)
	healthSync := service.NewHealthSync(vault, whoopClient, repos.Cursor, repos.Health, cfg.Trigger.SyncLookback.Duration, metrics, logger)
	generator := service.NewGenerator(aiClient, logger)
	dispatcher := service.NewDispatcher(repos.Dispatch, telegramClient, metrics, logger)

	engagement := service.NewEngagement(service.EngagementDeps{
		Users:      repos.User,
		Health:     repos.Health,
		States:     repos.OAuthState,
		Vault:      vault,
		Sync:       healthSync,
		Generator:  generator,
		Dispatcher: dispatcher,
		OAuth:      whoopClient,
		Sender:     telegramClient,
		Dedup:      service.NewUpdateDeduper(infra.Redis(), updateDedupTTL),
		Logger:     logger,
	})

	rateLimiter := service.NewRateLimiter(infra.Redis())
	healthChecker := NewHealthChecker(infra)

	router := gin.Default()
	router.Use(otelgin.Middleware(serviceName))
	router.Use(handler.LoggerMiddleware(logger))

	setupRoutes(router, cfg, engagement, metrics, rateLimiter, healthChecker, infra.MetricsHandler(), logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	return &App{
		infra:      infra,
		config:     cfg,
		router:     router,
		server:     srv,
		telegram:   telegramClient,
		engagement: engagement,
	}, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func setupRoutes(
	router *gin.Engine,
	cfg *config.Config,
	engagement service.Engagement,
	metrics *observability.Metrics,
	rateLimiter *service.RateLimiter,
	healthChecker *HealthChecker,
	metricsHandler http.Handler,
	logger *zap.Logger,
) {
	triggerHandler := handler.NewTriggerHandler(engagement, metrics, logger)
	webhookHandler := handler.NewWebhookHandler(engagement, logger)
	whoopHandler := handler.NewWhoopHandler(engagement, logger)
	verifier := handler.NewIdentityVerifier(cfg.IdentityAudience())

	router.GET("/metrics", observability.PrometheusHandler(metricsHandler))
	router.GET("/health", healthChecker.Handler)

	scheduled := router.Group("/",
		handler.SchedulerAuthMiddleware(verifier),
		handler.BudgetMiddleware(cfg.Trigger.Budget.Duration),
	)
	{
		scheduled.GET("/morning_motivation", triggerHandler.MorningMotivation)
		scheduled.POST("/scheduled/check-in", triggerHandler.CheckIn)
		scheduled.POST("/scheduled/update-health-data", triggerHandler.UpdateHealthData)
	}

	router.POST("/webhook",
		handler.RateLimitMiddleware(rateLimiter, cfg.Security.RateLimitRequests, cfg.Security.RateLimitWindow.Duration, handler.IPBasedKey, logger),
		handler.TelegramSecretMiddleware(cfg.Telegram.WebhookSecret),
		webhookHandler.Handle,
	)

	router.GET("/whoop/callback", whoopHandler.Callback)
}

func (a *App) Run(ctx context.Context) error {
	logger := a.infra.Logger()

	if err := a.setupIngress(ctx); err != nil {
		return err
	}

	if a.config.Mode == config.ModePolling {
		p := newPoller(a.telegram, a.engagement, a.config.Telegram.PollTimeout.Duration, logger)
		go p.run(ctx)
	}

	errChan := make(chan error, 1)

	go func() {
		logger.Info("Application starting",
			zap.String("host", a.config.Server.Host),
			zap.String("port", a.config.Server.Port),
			zap.String("mode", a.config.Mode),
		)

		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", zap.Error(err))
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case err := <-errChan:
		logger.Error("Application failed to start", zap.Error(err))
		serverErr = err
	case <-ctx.Done():
		logger.Info("Application stopped by context")
	}

	if err := a.Shutdown(); err != nil {
		logger.Error("Shutdown error", zap.Error(err))
		if serverErr != nil {
			return errors.Join(serverErr, err)
		}
		return err
	}

	return serverErr
}

// setupIngress points Telegram at the right update path for the mode: the
// webhook URL in webhook mode, long polling otherwise.
func (a *App) setupIngress(ctx context.Context) error {
	if a.config.Mode == config.ModeWebhook {
		url := strings.TrimRight(a.config.PublicURL, "/") + "/webhook"
		if err := a.telegram.SetWebhook(ctx, url, a.config.Telegram.WebhookSecret); err != nil {
			return fmt.Errorf("failed to register webhook: %w", err)
		}
		a.infra.Logger().Info("webhook registered", zap.String("url", url))
		return nil
	}

	// Polling fails while a webhook is registered.
	if err := a.telegram.DeleteWebhook(ctx); err != nil {
		return fmt.Errorf("failed to remove webhook before polling: %w", err)
	}
	return nil
}

func (a *App) Shutdown() error {
	a.infra.Logger().Info("Application shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	errs := make(chan error, 2)

	go func() {
		errs <- a.server.Shutdown(ctx)
	}()

	go func() {
		errs <- a.infra.Shutdown(ctx)
	}()

	err := errors.Join(<-errs, <-errs)
	if err != nil {
		a.infra.Logger().Error("Shutdown failed", zap.Error(err))
		return err
	}

	a.infra.Logger().Info("Application exited successfully")
	return nil
}
