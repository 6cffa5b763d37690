package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/benvon/finance-advisor/internal/config"
	"github.com/benvon/finance-advisor/internal/database"
	"github.com/benvon/finance-advisor/internal/handlers"
	"github.com/benvon/finance-advisor/internal/logger"
	"github.com/benvon/finance-advisor/internal/middleware"
	"github.com/benvon/finance-advisor/internal/queue"
	"github.com/benvon/finance-advisor/internal/services/ai"
	"github.com/benvon/finance-advisor/internal/services/chat"
	"github.com/benvon/finance-advisor/internal/services/goals"
	"github.com/benvon/finance-advisor/internal/services/insights"
	"github.com/benvon/finance-advisor/internal/services/oidc"
	"github.com/benvon/finance-advisor/internal/services/summary"
	"github.com/benvon/finance-advisor/internal/services/usage"
	"github.com/benvon/finance-advisor/internal/telemetry"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"
)

const serviceName = "finance-advisor-api"

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug mode for model API logging")
	envFile := flag.String("env-file", ".env", "Optional .env file to load before reading the environment")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		log.Fatalf("Failed to load env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.New(logger.Options{Service: serviceName, Debug: debugMode})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync(zapLogger)

	zapLogger.Info("starting_server",
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("frontend_url", cfg.FrontendURL),
		zap.String("ai_provider", cfg.AIProvider),
		zap.String("ai_model", cfg.AIModel),
		zap.String("ai_api_key", ai.SanitizeAPIKey(cfg.ModelAPIKey())),
		zap.Int("chat_daily_quota", cfg.ChatDailyQuota),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	tracingEnabled := false
	if cfg.OTELEnabled {
		if cfg.OTELEndpoint == "" {
			zapLogger.Warn("otel_enabled_but_endpoint_not_configured")
		} else {
			tp, err := telemetry.InitTracer(context.Background(), serviceName, cfg.OTELEndpoint, true)
			if err != nil {
				zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
			} else {
				tracingEnabled = true
				zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
				defer func() {
					shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer shutdownCancel()
					if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
						zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
					}
				}()
			}
		}
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_database")

	// Redis backs both the daily chat quota and the per-route request rate limit
	redisClient, err := usage.Connect(context.Background(), cfg.RedisURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_redis", zap.Error(err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_redis")

	// The queue is optional for the API; without it async regeneration answers 503
	var jobQueue *queue.RabbitMQQueue
	if cfg.RabbitMQURL != "" {
		jobQueue, err = queue.Connect(context.Background(), cfg.RabbitMQURL, queue.DefaultConnectAttempts, zapLogger)
		if err != nil {
			zapLogger.Fatal("failed_to_connect_to_rabbitmq_after_retries", zap.Error(err))
		}
		defer func() {
			if err := jobQueue.Close(); err != nil {
				zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
			}
		}()
	} else {
		zapLogger.Warn("rabbitmq_not_configured_async_regeneration_disabled")
	}

	// Repositories
	userRepo := database.NewUserRepository(db)
	chatRepo := database.NewChatRepository(db)
	financeRepo := database.NewFinanceRepository(db)
	insightRepo := database.NewInsightRepository(db)
	activityRepo := database.NewUserActivityRepository(db)
	oidcConfigRepo := database.NewOIDCConfigRepository(db)
	corsConfigRepo := database.NewCorsConfigRepository(db)
	ratelimitConfigRepo := database.NewRatelimitConfigRepository(db)

	provider, err := ai.DefaultRegistry().GetProvider(cfg.AIProvider, ai.ProviderConfig{
		APIKey:   cfg.ModelAPIKey(),
		Model:    cfg.AIModel,
		BaseURL:  cfg.AIBaseURL,
		Project:  cfg.GCPProject,
		Location: cfg.GCPLocation,
		Logger:   zapLogger,
		Debug:    debugMode,
	})
	if err != nil {
		zapLogger.Fatal("failed_to_create_ai_provider", zap.String("provider", cfg.AIProvider), zap.Error(err))
	}

	// Services
	limiter := usage.NewLimiter(redisClient, zapLogger,
		usage.WithQuota(cfg.ChatDailyQuota),
		usage.WithFailOpen(cfg.UsageFailOpen),
	)
	builder := summary.NewBuilder(financeRepo)
	insightManager := insights.NewManager(financeRepo, insightRepo, builder, provider, zapLogger)
	goalService := goals.NewService(goals.NewExtractor(provider, zapLogger), chatRepo, financeRepo, zapLogger)
	chatService := chat.NewService(chatRepo, limiter, builder, provider, zapLogger, chat.Config{
		HistoryLimit:  cfg.ChatHistoryLimit,
		StreamTimeout: cfg.ChatStreamTimeout,
	})

	oidcProvider := oidc.NewProvider(oidcConfigRepo)
	verifier := buildVerifier(cfg, oidcProvider, zapLogger)

	var jobs queue.Enqueuer
	if jobQueue != nil {
		jobs = jobQueue
	}

	authHandler := handlers.NewAuthHandler(oidcProvider, cfg.OIDCProvider, zapLogger)
	chatHandler := handlers.NewChatHandler(chatService, zapLogger)
	insightsHandler := handlers.NewInsightsHandler(insightManager, jobs, zapLogger)
	goalsHandler := handlers.NewGoalsHandler(goalService, zapLogger)

	var queuePinger handlers.Pinger
	if jobQueue != nil {
		queuePinger = jobQueue
	}
	healthChecker := handlers.NewHealthChecker(
		handlers.PingFunc(db.PingContext),
		handlers.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }),
		queuePinger,
	)

	r := mux.NewRouter()

	// gorilla/mux wraps the first registered middleware outermost; root middleware runs
	// before any subrouter middleware
	if tracingEnabled {
		r.Use(otelmux.Middleware(serviceName))
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	corsReloader := middleware.NewCORSReloader(corsConfigRepo, cfg.FrontendURL, zapLogger, time.Minute)
	r.Use(corsReloader.Middleware())
	r.Use(middleware.ErrorHandler(zapLogger))
	r.Use(middleware.Logging(zapLogger))
	r.Use(middleware.Audit(zapLogger))
	r.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize))
	r.Use(middleware.ContentType)

	// Rate limit is applied per route group; health checks stay unthrottled
	rateLimitReloader, err := middleware.NewRateLimitReloader(redisClient, ratelimitConfigRepo, middleware.DefaultRequestRate, zapLogger, time.Minute)
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limit_reloader", zap.Error(err))
	}
	rateLimitMW := rateLimitReloader.Middleware()
	authMW := middleware.Auth(verifier, userRepo, zapLogger)
	activityMW := middleware.ActivityTracking(activityRepo, zapLogger)

	r.HandleFunc("/healthz", healthChecker.HealthCheck).Methods("GET")
	r.HandleFunc("/version", versionInfo).Methods("GET")

	openAPIHandler := handlers.NewOpenAPIHandler(filepath.Join("api", "openapi", "openapi.yaml"))
	openAPIHandler.RegisterRoutes(r)

	apiRouter := r.PathPrefix("/api/v1").Subrouter()

	loginRouter := apiRouter.PathPrefix("/auth").Subrouter()
	loginRouter.Use(rateLimitMW)
	authHandler.RegisterPublicRoutes(loginRouter)

	// The stream route is registered without the request timeout; its lifetime is
	// bounded by CHAT_STREAM_TIMEOUT inside the chat service
	streamRouter := apiRouter.NewRoute().Subrouter()
	streamRouter.Use(rateLimitMW, authMW, activityMW)
	chatHandler.RegisterStreamRoutes(streamRouter)

	protectedRouter := apiRouter.NewRoute().Subrouter()
	protectedRouter.Use(middleware.Timeout(middleware.DefaultRequestTimeout), rateLimitMW, authMW, activityMW)
	authHandler.RegisterRoutes(protectedRouter.PathPrefix("/auth").Subrouter())
	chatHandler.RegisterRoutes(protectedRouter)
	insightsHandler.RegisterRoutes(protectedRouter)
	goalsHandler.RegisterRoutes(protectedRouter)

	// CORS middleware has already answered preflight headers by the time this runs
	r.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		// No write deadline: streamed replies run up to CHAT_STREAM_TIMEOUT and other
		// routes are bounded by the Timeout middleware
		WriteTimeout:   0,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	go corsReloader.Start(bgCtx)
	go rateLimitReloader.Start(bgCtx)

	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")
	bgCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}

	zapLogger.Info("server_exited")
}

// buildVerifier chains the configured token verifiers: the OIDC provider's JWKS first,
// then the shared HMAC secret when one is set
func buildVerifier(cfg *config.Config, provider *oidc.Provider, zapLogger *zap.Logger) oidc.TokenVerifier {
	var chain oidc.Chain
	if cfg.OIDCProvider != "" {
		chain = append(chain, oidc.NewJWKSVerifier(cfg.OIDCProvider, provider, oidc.NewJWKSManager()))
	}
	if cfg.AuthHMACSecret != "" {
		chain = append(chain, oidc.NewHMACVerifier(cfg.AuthHMACSecret, cfg.AuthHMACIssuer))
	}
	if len(chain) == 0 {
		zapLogger.Fatal("no_token_verifier_configured")
	}
	zapLogger.Info("token_verifiers_configured",
		zap.String("oidc_provider", cfg.OIDCProvider),
		zap.Bool("hmac_enabled", cfg.AuthHMACSecret != ""),
	)
	return chain
}

func versionInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, `{"version":"1.0.0","timestamp":"%s"}`, time.Now().UTC().Format(time.RFC3339))
}
