// Package app wires configuration, storage, domain services, and the HTTP
// server into a runnable application.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/orderflow/internal/domain/coupon"
	"github.com/xenking/orderflow/internal/domain/order"
	"github.com/xenking/orderflow/internal/domain/payment"
	"github.com/xenking/orderflow/internal/handler"
	"github.com/xenking/orderflow/internal/notify"
	"github.com/xenking/orderflow/internal/repository"
	"github.com/xenking/orderflow/pkg/health"
	"github.com/xenking/orderflow/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Redis client for cart storage.
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return errors.Wrap(err, "parse redis URL")
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() { _ = redisClient.Close() }()

	// Health probes.
	probes := health.NewRegistry()
	probes.AddLiveness("goroutines", time.Second, health.GoroutineCountCheck(10000))
	probes.AddReadiness("postgres", 5*time.Second, health.PingCheck(pool))
	probes.AddReadiness("redis", 5*time.Second, func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})

	// Repositories.
	productRepo := repository.NewProductRepository(pool)
	couponRepo := repository.NewCouponRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	cartStore := repository.NewRedisCartStore(redisClient)

	// Warm the coupon code filter so lookups for codes that were never
	// issued skip the database entirely.
	filter := coupon.NewCodeFilter(1_000_000, 0.001)
	codes, err := couponRepo.ListCodes(ctx)
	if err != nil {
		return errors.Wrap(err, "load coupon codes")
	}
	for _, code := range codes {
		filter.Add(code)
	}
	lg.Info("Coupon code filter warmed", zap.Int("codes", len(codes)))

	// Domain services.
	couponValidator := coupon.NewRepoValidator(couponRepo, filter)
	dispatcher := notify.NewAsync(notify.NewLogDispatcher(lg), cfg.Notify.Timeout, lg)
	defer dispatcher.Close()

	gatewayClient := payment.NewClient(payment.ClientConfig{
		BaseURL:  cfg.Gateway.BaseURL,
		KeyID:    cfg.Gateway.KeyID,
		Secret:   cfg.Gateway.Secret,
		Currency: cfg.Gateway.Currency,
		Timeout:  cfg.Gateway.Timeout,
	})

	orderService := order.NewService(
		productRepo, couponRepo, couponValidator, orderRepo, cartStore,
		gatewayClient, dispatcher,
	)
	reconciler := payment.NewReconciler(
		orderRepo, couponRepo, cartStore, dispatcher, []byte(cfg.Gateway.Secret),
	)

	// HTTP surface.
	h := handler.NewHandler(orderService, reconciler, couponRepo, couponValidator, filter)
	auth := handler.NewAuthenticator([]byte(cfg.JWTSecret))

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", probes.LivenessHandler())
	mux.HandleFunc("/readyz", probes.ReadinessHandler())
	mux.Handle("/api/", http.StripPrefix("/api", h.Routes(auth)))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(
			otelhttp.NewHandler(mux, "orderflow-api",
				otelhttp.WithTracerProvider(m.TracerProvider()),
				otelhttp.WithMeterProvider(m.MeterProvider()),
			),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		lg.Info("Draining before shutdown", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
