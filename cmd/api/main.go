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
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/customsway/backend-cargo/internal/audit"
	"github.com/customsway/backend-cargo/internal/auth"
	"github.com/customsway/backend-cargo/internal/common"
	"github.com/customsway/backend-cargo/internal/config"
	"github.com/customsway/backend-cargo/internal/dashboard"
	"github.com/customsway/backend-cargo/internal/expense"
	"github.com/customsway/backend-cargo/internal/export"
	"github.com/customsway/backend-cargo/internal/health"
	"github.com/customsway/backend-cargo/internal/lock"
	"github.com/customsway/backend-cargo/internal/obs"
	"github.com/customsway/backend-cargo/internal/ratelimit"
	"github.com/customsway/backend-cargo/internal/record"
	"github.com/customsway/backend-cargo/internal/security"
	"github.com/customsway/backend-cargo/internal/tariff"
	"github.com/customsway/backend-cargo/internal/user"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "cargo")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "cargo-api",
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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "cargo-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

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

	validate := validator.New()

	userStore := &user.Store{Pool: pool}
	userService := &user.Service{Store: userStore}
	userHandler := &user.Handler{Service: userService}

	authService, err := auth.NewService(auth.Config{
		Users:      userStore,
		Redis:      redisClient,
		Secret:     cfg.SessionSecret,
		SessionTTL: cfg.SessionTTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise auth service")
	}
	authHandler := &auth.Handler{
		Service:        authService,
		CookieName:     cfg.SessionCookieName,
		CookieDomain:   cfg.CookieDomain,
		CookieSecure:   cfg.CookieSecure,
		CookieSameSite: cfg.CookieSameSite,
	}
	authMiddleware := auth.Middleware{Service: authService, CookieName: cfg.SessionCookieName}

	recordStore := &record.Store{Pool: pool}
	recordHandler := &record.Handler{Store: recordStore, Validate: validate}

	tariffStore := &tariff.Store{Pool: pool}
	tariffService := &tariff.Service{Store: tariffStore, Validate: validate}
	tariffHandler := &tariff.Handler{Service: tariffService, MaxUploadBytes: cfg.MaxUploadBytes}

	expenseStore := &expense.Store{Pool: pool}
	expenseService := &expense.Service{
		Store:   expenseStore,
		Tariffs: tariffStore,
		Config:  expense.DefaultConfig(),
		Log:     logger,
		Locker:  &lock.Locker{R: redisClient},
		LockTTL: 15 * time.Second,
	}
	expenseHandler := &expense.Handler{Service: expenseService}

	exportHandler := &export.Handler{Records: recordStore, Expenses: expenseStore}

	dashboardService := &dashboard.Service{
		Source: &dashboard.PGSource{Pool: pool},
		R:      redisClient,
		TTL:    cfg.DashboardCacheTTL,
	}
	dashboardHandler := &dashboard.Handler{Service: dashboardService, AlertStaleDays: cfg.AlertStaleDays}

	auditService := &audit.Service{
		Store:   &audit.PGStore{Pool: pool},
		Enabled: envBool("AUDIT_ENABLED", true),
	}
	auditRecorder := audit.HTTPRecorder{
		Service: auditService,
		OnError: func(err error) { logger.Error().Err(err).Msg("record audit entry") },
	}
	auditHandler := audit.Handler{Store: auditService.Store}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}
	loginLimiter := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "ratelimit:"},
		Config: ratelimit.Config{
			Key:    ratelimit.LoginKey,
			Window: cfg.LoginRateWindow,
			Max:    cfg.LoginRateMax,
		},
		OnError: func(err error) { logger.Error().Err(err).Msg("login rate limiter") },
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
	r.Use(security.Headers{
		Enable:     cfg.SecurityHeaders,
		EnableHSTS: cfg.EnableHSTS,
	}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	pprofEnabled := envBool("OBS_ENABLE_PPROF", false)
	if pprofEnabled {
		pprofUser := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pprofPass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), pprofUser, pprofPass))
	}

	healthHandler := health.Handler{
		Checker:      readinessChecker{db: pool, redis: redisClient},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	bodyLimit := security.BodyLimit{Max: cfg.MaxBodyBytes}
	uploadLimit := security.BodyLimit{Max: cfg.MaxUploadBytes + 64*1024}

	r.Route("/api/v1", func(v chi.Router) {
		if cfg.CSRFEnable {
			v.Use(security.CSRF{}.Middleware)
		}

		v.Route("/auth", func(a chi.Router) {
			a.Use(bodyLimit.Middleware)
			a.With(loginLimiter.Middleware).Post("/login", authHandler.Login)
			a.Post("/logout", authHandler.Logout)
			a.With(authMiddleware.RequireAuth).Get("/me", authHandler.Me)
		})

		v.Route("/records", func(rec chi.Router) {
			rec.Use(bodyLimit.Middleware)
			rec.Use(authMiddleware.RequireAuth)
			rec.Get("/", recordHandler.List)
			rec.Post("/", recordHandler.Create)
			rec.Route("/{recordID}", func(child chi.Router) {
				child.Get("/", recordHandler.Get)
				child.Put("/", recordHandler.Update)
				child.Delete("/", recordHandler.Delete)
				child.Get("/expenses", expenseHandler.List)
				child.With(idem.Middleware).Post("/expenses", expenseHandler.Calculate)
				child.Get("/expenses/export", exportHandler.Statement)
			})
		})

		v.Route("/tariffs", func(tf chi.Router) {
			tf.Use(authMiddleware.RequireAuth)
			tf.With(bodyLimit.Middleware).Get("/", tariffHandler.List)
			tf.With(bodyLimit.Middleware).Post("/extract", tariffHandler.ExtractConfig)

			tf.Group(func(admin chi.Router) {
				admin.Use(authMiddleware.RequireRole(user.RoleAdmin))
				admin.Use(auditRecorder.Middleware(audit.HTTPConfig{ResourceType: "tariffs", ResourceIDParam: "tariffID"}))
				admin.With(bodyLimit.Middleware).Post("/", tariffHandler.Create)
				admin.With(bodyLimit.Middleware).Put("/{tariffID}", tariffHandler.Update)
				admin.With(bodyLimit.Middleware).Delete("/{tariffID}", tariffHandler.Delete)
				admin.With(uploadLimit.Middleware).Post("/import", tariffHandler.Import)
				admin.With(uploadLimit.Middleware).Post("/upload", tariffHandler.Upload)
			})
		})

		v.Route("/users", func(u chi.Router) {
			u.Use(bodyLimit.Middleware)
			u.Use(authMiddleware.RequireRole(user.RoleAdmin))
			u.Use(auditRecorder.Middleware(audit.HTTPConfig{ResourceType: "users", ResourceIDParam: "userID"}))
			u.Get("/", userHandler.List)
			u.Post("/", userHandler.Create)
			u.Patch("/{userID}", userHandler.Patch)
			u.Delete("/{userID}", userHandler.Delete)
		})

		v.With(bodyLimit.Middleware, authMiddleware.RequireRole(user.RoleAdmin)).Get("/audit", auditHandler.List)

		v.Route("/dashboard", func(d chi.Router) {
			d.Use(bodyLimit.Middleware)
			d.Use(authMiddleware.RequireAuth)
			d.Get("/stats", dashboardHandler.Stats)
			d.Get("/trends", dashboardHandler.Trends)
			d.Get("/comparisons", dashboardHandler.Comparisons)
			d.Get("/expenses", dashboardHandler.Expenses)
			d.Get("/top-consignatarios", dashboardHandler.TopConsignatarios)
			d.Get("/cost-per-kg", dashboardHandler.CostPerKg)
			d.Get("/alerts", dashboardHandler.Alerts)
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	stop, stopCancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopCancel()
	<-stop.Done()

	logger.Info().Msg("shutdown requested, draining")
	health.SetReady(false)
	drainGrace := envDurationMillis("SHUTDOWN_DRAIN_MS", 2000)
	time.Sleep(drainGrace)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
	logger.Info().Msg("server stopped")
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
