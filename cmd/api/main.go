package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterstdlib "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/kedaipet/storefront/internal/account"
	"github.com/kedaipet/storefront/internal/app"
	"github.com/kedaipet/storefront/internal/cart"
	"github.com/kedaipet/storefront/internal/catalog"
	"github.com/kedaipet/storefront/internal/checkout"
	"github.com/kedaipet/storefront/internal/common"
	"github.com/kedaipet/storefront/internal/config"
	"github.com/kedaipet/storefront/internal/health"
	"github.com/kedaipet/storefront/internal/lock"
	"github.com/kedaipet/storefront/internal/obs"
	"github.com/kedaipet/storefront/internal/order"
	"github.com/kedaipet/storefront/internal/payment"
	"github.com/kedaipet/storefront/internal/ratelimit"
	"github.com/kedaipet/storefront/internal/security"
	"github.com/kedaipet/storefront/internal/session"
	"github.com/kedaipet/storefront/internal/upstream"
	"github.com/kedaipet/storefront/internal/voucher"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "storefront")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "storefront-bff",
			Endpoint:      cfg.OTLPEndpoint,
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	commerce := upstream.New(cfg.UpstreamBaseURL, httpClient, logger)

	sessions := &session.Store{R: redisClient, TTL: cfg.SessionTTL}
	locks := lock.Locker{R: redisClient}
	validate := validator.New()

	limiterStore, err := app.NewLimiterStore(redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise limiter store")
	}
	globalLimit := limiter.New(limiterStore, limiter.Rate{
		Period: time.Minute,
		Limit:  int64(envInt("RATE_LIMIT_GLOBAL_PER_MIN", 300)),
	})

	var paymentProvider payment.Provider
	switch cfg.PaymentMode {
	case config.PaymentModeGateway:
		paymentProvider = payment.Gateway{
			MerchantCode: cfg.GatewayMerchant,
			APIKey:       cfg.GatewayAPIKey,
			CheckoutURL:  cfg.GatewayCheckoutURL,
			ReturnURL:    cfg.GatewayReturnURL,
		}
	default:
		paymentProvider = payment.Mock{SimulatorURL: "/api/v1/payment/mock"}
	}

	catalogSvc := &catalog.Service{
		API:    commerce,
		Cache:  &catalog.Cache{R: redisClient, TTL: cfg.CatalogCacheTTL},
		Logger: logger,
	}
	catalogHandler := catalog.Handlers{Svc: catalogSvc}

	cartSvc := &cart.Service{API: commerce, Logger: logger}
	cartHandler := cart.Handlers{Svc: cartSvc}

	checkoutSvc := &checkout.Service{
		API:      commerce,
		Sessions: sessions,
		Validate: validate,
		Payments: paymentProvider,
		R:        redisClient,
		Logger:   logger,
	}
	checkoutHandler := checkout.Handlers{Svc: checkoutSvc}

	voucherSvc := &voucher.Service{
		Upstream: commerce,
		Lines:    checkoutSvc,
		Sessions: sessions,
		R:        redisClient,
		Locks:    locks,
		Logger:   logger,
	}
	voucherHandler := voucher.Handlers{Svc: voucherSvc}

	paymentHandler := payment.Handlers{Provider: paymentProvider, Sessions: sessions, Logger: logger}

	orderSvc := &order.Service{API: commerce, Logger: logger}
	orderHandler := order.Handlers{Svc: orderSvc}

	accountSvc := &account.Service{API: commerce, Validate: validate, Logger: logger}
	accountHandler := account.Handlers{Svc: accountSvc}

	idem := common.Idem{R: redisClient, TTL: envDurationMillis("IDEMPOTENCY_TTL_MS", 600000)}
	slidingLimiter := ratelimit.Limiter{Client: redisClient, Prefix: "rl:"}
	voucherLimit := ratelimit.Handler{
		Limiter: slidingLimiter,
		Config: ratelimit.Config{
			Key:    sessionKey("voucher"),
			Window: time.Minute,
			Max:    cfg.RateLimitVoucher,
		},
		OnError: func(err error) { logger.Error().Err(err).Msg("voucher rate limit") },
	}
	submitLimit := ratelimit.Handler{
		Limiter: slidingLimiter,
		Config: ratelimit.Config{
			Key:    sessionKey("submit"),
			Window: time.Minute,
			Max:    cfg.RateLimitSubmit,
		},
		OnError: func(err error) { logger.Error().Err(err).Msg("submit rate limit") },
	}

	sessionMW := session.Middleware{CookieTTL: cfg.SessionTTL, Secure: cfg.CookieSecure}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(cfg.MetricsBucketsCSV)
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: envBool("SECURE_HEADERS_ENABLED", true), EnableHSTS: cfg.CookieSecure}.Middleware)
	r.Use(security.BodyLimit{Max: int64(envInt("SECURE_BODY_LIMIT_BYTES", 1<<20))}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(sessionMW.Attach)
	r.Use(limiterstdlib.NewMiddleware(globalLimit).Handler)
	if envBool("SECURE_CSRF_ENABLED", false) {
		r.Use(security.CSRF{}.Middleware)
	}

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", true) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:         readinessChecker{redis: redisClient, commerce: commerce},
		RedisTimeout:    envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
		UpstreamTimeout: envDurationMillis("HEALTH_READY_UPSTREAM_TIMEOUT_MS", 1000),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/products", catalogHandler.List)
		v.Get("/products/{productID}", catalogHandler.Detail)
		v.Get("/categories", catalogHandler.Categories)

		v.Route("/cart", func(c chi.Router) {
			c.Get("/", cartHandler.Get)
			// The cart page prices with the same quote path checkout uses.
			c.Get("/summary", checkoutHandler.Summary)
			c.With(idem.Middleware).Post("/items", cartHandler.Add)
			c.Patch("/items/{itemID}", cartHandler.Update)
			c.Delete("/items/{itemID}", cartHandler.Remove)
			c.Delete("/", cartHandler.Clear)
		})

		v.Route("/checkout", func(c chi.Router) {
			c.Get("/summary", checkoutHandler.Summary)
			c.Post("/selection", checkoutHandler.SetSelection)
			c.Post("/buy-now", checkoutHandler.BuyNow)
			c.Post("/guest-email", checkoutHandler.SetGuestEmail)
			c.Post("/cancel", checkoutHandler.Cancel)

			c.Get("/vouchers", voucherHandler.List)
			c.With(voucherLimit.Middleware).Post("/vouchers", voucherHandler.Apply)
			c.Delete("/vouchers/{code}", voucherHandler.Remove)
			c.Delete("/vouchers", voucherHandler.Clear)

			c.With(submitLimit.Middleware, idem.Middleware).Post("/submit", checkoutHandler.Submit)
		})

		v.Route("/payment", func(p chi.Router) {
			p.Get("/mock", paymentHandler.Simulator)
			p.Post("/mock/complete", paymentHandler.Complete)
			p.Get("/return", paymentHandler.Return)
			p.Post("/return", paymentHandler.Return)
		})

		v.Get("/orders/guest/{orderID}", orderHandler.GuestLookup)
		v.Group(func(authed chi.Router) {
			authed.Use(session.RequireAuth)
			authed.Get("/orders", orderHandler.List)
			authed.Get("/orders/{orderID}", orderHandler.Detail)
		})

		v.Route("/users/me", func(me chi.Router) {
			me.Use(session.RequireAuth)
			me.Get("/addresses", accountHandler.Addresses)
			me.Post("/addresses", accountHandler.CreateAddress)
			me.Patch("/addresses/{addressID}", accountHandler.UpdateAddress)
			me.Delete("/addresses/{addressID}", accountHandler.DeleteAddress)
			me.Get("/wishlist", accountHandler.Wishlist)
			me.Post("/wishlist", accountHandler.ToggleWishlist)
			me.Delete("/wishlist/{productID}", accountHandler.RemoveWishlist)
		})
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("paymentMode", cfg.PaymentMode).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown failed")
		}
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

// sessionKey limits per session where one exists, falling back to the client
// address for requests that arrive before the cookie is set.
func sessionKey(scope string) func(*http.Request) string {
	return func(r *http.Request) string {
		if sid, ok := session.SessionID(r.Context()); ok {
			return scope + ":" + sid
		}
		return scope + ":" + r.RemoteAddr
	}
}

type readinessChecker struct {
	redis    *redis.Client
	commerce *upstream.Client
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}

func (c readinessChecker) PingUpstream(ctx context.Context, timeout time.Duration) error {
	if c.commerce == nil {
		return errors.New("commerce api not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.commerce.Ping(ctx)
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/block", pprof.Handler("block"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
	mux.Handle("/threadcreate", pprof.Handler("threadcreate"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
