package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"ticket-checkout/config"
	"ticket-checkout/internal/handlers"
	"ticket-checkout/internal/realtime"
	"ticket-checkout/internal/services"
	"ticket-checkout/internal/store"
	"ticket-checkout/internal/tasks"
	"ticket-checkout/logger"
	"ticket-checkout/monitoring"
	"ticket-checkout/security"
	"ticket-checkout/utils"

	"github.com/hibiken/asynq"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func Start() error {
	cfg := config.LoadConfig()
	logger.New(cfg.LogLevel, os.Stdout)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(ctx, cfg.StoreDriver, cfg.StoreDSN)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	redisClient, err := utils.NewRedisClient(ctx, cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	rt := realtime.New(realtime.Config{
		PublishKey:   cfg.PubNubPublishKey,
		SubscribeKey: cfg.PubNubSubscribeKey,
		SecretKey:    cfg.PubNubSecretKey,
		UserID:       cfg.PubNubUserID,
	})

	// Queued side effects: notifications and organizer earnings
	redisOpt := asynqRedisOpt(cfg)
	taskClient := asynq.NewClient(redisOpt)
	defer taskClient.Close()

	taskServer := tasks.NewServer(redisOpt, cfg.AsynqConcurrency)
	taskHandlers := tasks.NewHandlers(st, rt)

	monitor := monitoring.NewMonitor(st.Queries(), 30*time.Second)

	// Initialize services
	seatService := services.NewSeatService(st)
	reservationService := services.NewReservationService(st, seatService, monitor, cfg.ReservationTTL)
	cartService := services.NewCartService(st, reservationService)
	checkoutService := services.NewCheckoutService(
		st,
		reservationService,
		services.NewFulfillmentService(reservationService),
		services.NewRegionalTaxPolicy(cfg.TaxRates),
		tasks.NewDispatcher(taskClient),
		monitor,
		services.CheckoutConfig{
			TTL:            cfg.CheckoutTTL,
			TaxRegion:      cfg.TaxRegion,
			GuestTaxRegion: cfg.GuestTaxRegion,
		},
	)
	fraudService := services.NewFraudService(st, services.FraudConfig{
		MethodBands:     cfg.FraudMethodBands,
		HighValue:       cfg.FraudHighValue,
		FrequencyLimit:  cfg.FraudFrequencyLimit,
		FrequencyWindow: cfg.FraudFrequencyWindow,
	}, monitor)
	paymentService := services.NewPaymentService(st, fraudService, checkoutService, services.PaymentConfig{
		FeeRates: cfg.PaymentFeeRates,
		Timeout:  cfg.PaymentTimeout,
	})
	reaper := services.NewReaper(st, seatService, redisClient, monitor, services.ReaperConfig{
		Interval:        cfg.ReaperInterval,
		BatchSize:       cfg.ReaperBatchSize,
		CartIdleTTL:     cfg.CartIdleTTL,
		OrderArchiveAge: cfg.OrderArchiveAge,
	})

	// Initialize handlers
	routes := &handlers.Routes{
		Seats:        handlers.NewSeatHandler(seatService, reservationService),
		Carts:        handlers.NewCartHandler(cartService),
		Checkout:     handlers.NewCheckoutHandler(checkoutService),
		Payments:     handlers.NewPaymentHandler(paymentService, checkoutService, reservationService),
		Admin:        handlers.NewAdminHandler(seatService, reaper),
		WebhookGuard: security.NewWebhookGuard(redisClient, cfg.WebhookRateLimit, cfg.WebhookSecret).Middleware,
		DevRoutes:    cfg.Environment == "development",
	}

	// Start background tasks
	go monitor.Run(ctx)
	go reaper.Run(ctx)
	if err := taskServer.Start(taskHandlers.Mux()); err != nil {
		return fmt.Errorf("start task server: %w", err)
	}
	if cfg.PubNubSubscribeKey != "" {
		go paymentService.SubscribeToPaymentNotifications(ctx, rt, cfg.PaymentNotificationChannel)
	}

	app := pocketbase.New()

	app.OnServe().BindFunc(func(se *core.ServeEvent) error {
		routes.Register(se)

		se.Router.GET("/metrics", apis.WrapStdHandler(promhttp.Handler()))
		se.Router.GET("/health", healthCheck(st, redisClient))

		slog.Info("server routes registered", "environment", cfg.Environment)
		return se.Next()
	})

	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		slog.Info("shutdown signal received, cleaning up")
		cancel()
		taskServer.Shutdown()
		return e.Next()
	})

	if len(os.Args) < 2 {
		app.RootCmd.SetArgs([]string{"serve", "--http=0.0.0.0:" + cfg.Port})
	}
	return app.Start()
}

func healthCheck(st *store.Store, redisClient redis.Cmdable) func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		ctx := e.Request.Context()
		err := errors.Join(st.HealthCheck(ctx), utils.RedisHealthCheck(ctx, redisClient))
		if err != nil {
			slog.Warn("health check failed", "error", err)
			return e.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		}
		return e.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	}
}

// asynqRedisOpt accepts the same REDIS_URL forms as the main client.
func asynqRedisOpt(cfg *config.Config) asynq.RedisConnOpt {
	if opt, err := asynq.ParseRedisURI(cfg.RedisURL); err == nil {
		return opt
	}
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}
