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
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterstdlib "github.com/ulule/limiter/v3/drivers/middleware/stdlib"

	"github.com/ImAdityaa12/storex-backend/internal/address"
	"github.com/ImAdityaa12/storex-backend/internal/app"
	"github.com/ImAdityaa12/storex-backend/internal/auth"
	"github.com/ImAdityaa12/storex-backend/internal/cart"
	"github.com/ImAdityaa12/storex-backend/internal/catalog"
	"github.com/ImAdityaa12/storex-backend/internal/checkout"
	"github.com/ImAdityaa12/storex-backend/internal/common"
	"github.com/ImAdityaa12/storex-backend/internal/config"
	"github.com/ImAdityaa12/storex-backend/internal/db"
	"github.com/ImAdityaa12/storex-backend/internal/events"
	"github.com/ImAdityaa12/storex-backend/internal/favorites"
	"github.com/ImAdityaa12/storex-backend/internal/health"
	"github.com/ImAdityaa12/storex-backend/internal/lock"
	"github.com/ImAdityaa12/storex-backend/internal/media"
	"github.com/ImAdityaa12/storex-backend/internal/notify"
	"github.com/ImAdityaa12/storex-backend/internal/obs"
	"github.com/ImAdityaa12/storex-backend/internal/order"
	"github.com/ImAdityaa12/storex-backend/internal/ratelimit"
	"github.com/ImAdityaa12/storex-backend/internal/resilience"
	"github.com/ImAdityaa12/storex-backend/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "storex")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "storex-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				ctx := context.Background()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	deps, err := app.New(ctx, cfg, app.Options{AppName: "storex-api", InstrumentRedis: true})
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("connect dependencies")
	}
	defer deps.Close(logger)

	queries := deps.Queries

	enqueuer := notify.Enqueuer{Client: deps.TaskClient}

	authService, err := auth.NewService(auth.Config{
		Queries:         queries,
		Sessions:        auth.SessionStore{R: deps.Redis, TTL: cfg.RefreshTokenTTL},
		Codes:           auth.OTPStore{R: deps.Redis, TTL: cfg.OTPTTL, MaxAttempts: cfg.OTPMaxAttempts},
		Mailer:          enqueuer,
		Secret:          cfg.JWTSecret,
		AccessTokenTTL:  cfg.AccessTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise auth service")
	}
	authHandler := &auth.Handler{
		Service:           authService,
		RefreshCookieName: "refresh_token",
		CookieDomain:      cfg.CookieDomain,
		CookieSecure:      cfg.CookieSecure,
		CookieSameSite:    cfg.CookieSameSite,
	}
	authMW := auth.Middleware{Service: authService}
	authAdmin := &auth.AdminHandler{Service: authService}

	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Queries: queries,
		Cache:   catalog.NewCache(deps.Redis, cfg.CatalogCacheTTL),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog service")
	}
	catalogHandler := &catalog.Handler{Service: catalogService}

	cartService, err := cart.NewService(cart.ServiceConfig{Queries: queries, TaxBps: cfg.TaxRateBps})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise cart service")
	}
	cartHandler := &cart.Handler{Service: cartService}

	favoritesService, err := favorites.NewService(queries)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise favorites service")
	}
	favoritesHandler := &favorites.Handler{Service: favoritesService}

	addressService, err := address.NewService(queries)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise address service")
	}
	addressHandler := &address.Handler{Service: addressService}

	bus := &events.Bus{Notifiers: []events.Notifier{enqueuer}}

	orderService, err := order.NewService(queries, bus)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise order service")
	}
	orderHandler := &order.Handler{Service: orderService}
	orderAdmin := &order.AdminHandler{Service: orderService}

	checkoutService := &checkout.Service{
		Pool:    deps.DB,
		Queries: queries,
		TaxBps:  cfg.TaxRateBps,
		Events:  bus,
		Locker:  lock.Locker{R: deps.Redis},
		LockTTL: cfg.CheckoutLockTTL,
	}
	checkoutHandler := &checkout.Handler{Service: checkoutService}

	var mediaHandler *media.Handler
	if cfg.S3Endpoint != "" {
		mediaCtx, mediaCancel := context.WithTimeout(context.Background(), 10*time.Second)
		storage, err := media.NewStorage(mediaCtx, media.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
			PublicURL: cfg.S3PublicURL,
			Transport: &resilience.Transport{
				Breaker:     resilience.NewBreaker(10, 0.5, 30*time.Second).WithTarget("object-storage"),
				MaxAttempts: 3,
				BaseBackoff: 200 * time.Millisecond,
				Jitter:      0.2,
			},
		})
		mediaCancel()
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise media storage")
		}
		mediaHandler = &media.Handler{Storage: storage}
	} else {
		logger.Warn().Msg("object storage not configured, image upload disabled")
	}

	idem := common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL}

	limiterStore, err := deps.NewLimiterStore("rl:global")
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limiter store")
	}
	globalRate, err := limiter.NewRateFromFormatted(cfg.GlobalRate)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse global rate limit")
	}
	globalLimiter := limiterstdlib.NewMiddleware(limiter.New(limiterStore, globalRate))

	byIP := func(r *http.Request) string { return common.ClientIP(r) }
	rateLogger := func(err error) { logger.Error().Err(err).Msg("rate limiter") }
	loginLimit := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: deps.Redis, Prefix: "rl:login"},
		Config:  ratelimit.Config{Key: byIP, Window: cfg.LoginRateWindow, Max: cfg.LoginRateMax},
		OnError: rateLogger,
	}
	otpLimit := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: deps.Redis, Prefix: "rl:otp"},
		Config:  ratelimit.Config{Key: byIP, Window: cfg.OTPRateWindow, Max: cfg.OTPRateMax},
		OnError: rateLogger,
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
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
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: true, EnableHSTS: cfg.CookieSecure}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.MaxBodyBytes}.Middleware)
	r.Use(globalLimiter.Handler)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:      readinessChecker{db: deps.DB, redis: deps.Redis},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/products", catalogHandler.Products)
		v.Get("/products/{productID}", catalogHandler.ProductDetail)
		v.Get("/products/{productID}/quote", catalogHandler.QuoteQuantity)

		v.Route("/auth", func(a chi.Router) {
			a.Post("/register", authHandler.Register)
			a.With(loginLimit.Middleware).Post("/login", authHandler.Login)
			a.Post("/refresh", authHandler.Refresh)
			a.Post("/logout", authHandler.Logout)
			a.With(otpLimit.Middleware).Post("/password/forgot", authHandler.ForgotPassword)
			a.Post("/password/reset", authHandler.ResetPassword)

			a.Group(func(protected chi.Router) {
				protected.Use(authMW.RequireAuth)
				protected.Get("/me", authHandler.Me)
				protected.Patch("/me", authHandler.UpdateProfile)
			})
		})

		v.Route("/me", func(me chi.Router) {
			me.Use(authMW.RequireAuth)

			me.Get("/cart", cartHandler.Get)
			me.Post("/cart/items", cartHandler.AddItem)
			me.Post("/cart/items/{productID}/increment", cartHandler.Increment)
			me.Post("/cart/items/{productID}/decrement", cartHandler.Decrement)
			me.Put("/cart/items/{productID}", cartHandler.SetQuantity)
			me.Delete("/cart/items/{productID}", cartHandler.RemoveItem)

			me.Get("/addresses", addressHandler.List)
			me.Post("/addresses", addressHandler.Create)
			me.Get("/addresses/{addressID}", addressHandler.Get)
			me.Put("/addresses/{addressID}", addressHandler.Update)
			me.Delete("/addresses/{addressID}", addressHandler.Delete)

			me.Get("/saved-products", favoritesHandler.List)
			me.Post("/saved-products/toggle", favoritesHandler.Toggle)
			me.Get("/saved-products/{productID}", favoritesHandler.Check)

			me.Get("/orders", orderHandler.List)
			me.Get("/orders/{orderID}", orderHandler.Get)

			me.With(idem.Middleware).Post("/checkout", checkoutHandler.Create)
		})

		v.Route("/admin", func(admin chi.Router) {
			admin.Use(authMW.RequireAuth)
			admin.Use(auth.RequireRole("admin"))
			admin.Post("/products", catalogHandler.CreateProduct)
			admin.Put("/products/{productID}", catalogHandler.UpdateProduct)
			admin.Delete("/products/{productID}", catalogHandler.DeleteProduct)
			admin.Get("/users", authAdmin.ListUsers)
			admin.Patch("/users/{userID}/role", authAdmin.UpdateRole)
			admin.Get("/orders", orderAdmin.List)
			admin.Patch("/orders/{orderID}/status", orderAdmin.UpdateStatus)
			if mediaHandler != nil {
				admin.Post("/media", mediaHandler.Upload)
			}
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
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
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown")
		}
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type readinessChecker struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
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
