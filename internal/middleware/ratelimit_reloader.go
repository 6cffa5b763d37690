package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/benvon/finance-advisor/internal/models"
	"github.com/benvon/finance-advisor/internal/request"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	stdlibmw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
)

// DefaultRequestRate is the per-IP request rate used until one is stored
const DefaultRequestRate = "5-S"

// RatelimitConfigStore persists the request rate. A nil config means none is stored.
type RatelimitConfigStore interface {
	Get(ctx context.Context) (*models.RatelimitConfig, error)
	Set(ctx context.Context, c *models.RatelimitConfig) error
}

// RateLimitReloader limits requests per client IP with ulule/limiter on Redis and
// refreshes the rate from the database periodically. It is independent of the daily chat
// quota.
type RateLimitReloader struct {
	store       limiter.Store
	source      RatelimitConfigStore
	defaultRate limiter.Rate
	log         *zap.Logger
	interval    time.Duration
	current     atomic.Pointer[stdlibmw.Middleware]
}

// NewRateLimitReloader creates a reloader enforcing defaultRate until the first load
func NewRateLimitReloader(redisClient *redis.Client, source RatelimitConfigStore, defaultRate string, log *zap.Logger, reloadInterval time.Duration) (*RateLimitReloader, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if defaultRate == "" {
		defaultRate = DefaultRequestRate
	}
	rate, err := limiter.NewRateFromFormatted(defaultRate)
	if err != nil {
		return nil, fmt.Errorf("invalid default rate %q: %w", defaultRate, err)
	}
	store, err := redisstore.NewStoreWithOptions(redisClient, limiter.StoreOptions{Prefix: "advisor_ratelimit"})
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit store: %w", err)
	}

	r := &RateLimitReloader{
		store:       store,
		source:      source,
		defaultRate: rate,
		log:         log,
		interval:    reloadInterval,
	}
	r.apply(rate)
	return r, nil
}

// Middleware applies whichever rate is current when the request arrives
func (r *RateLimitReloader) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			r.current.Load().Handler(next).ServeHTTP(w, req)
		})
	}
}

// Start loads the rate now and then every reload interval until ctx is cancelled
func (r *RateLimitReloader) Start(ctx context.Context) {
	reloadEvery(ctx, r.interval, r.Load)
}

// Load fetches the stored rate. When none is stored the default is saved so operators
// can see it. An unreadable or unparsable rate keeps the current one.
func (r *RateLimitReloader) Load(ctx context.Context) {
	cfg, err := r.source.Get(ctx)
	if err != nil {
		r.log.Warn("ratelimit_config_load_failed_keeping_current", zap.Error(err))
		return
	}
	if cfg == nil || cfg.Rate == "" {
		if err := r.source.Set(ctx, &models.RatelimitConfig{Rate: r.defaultRate.Formatted}); err != nil {
			r.log.Warn("failed_to_save_default_ratelimit_config", zap.Error(err))
		}
		r.apply(r.defaultRate)
		return
	}

	rate, err := limiter.NewRateFromFormatted(cfg.Rate)
	if err != nil {
		r.log.Error("invalid_ratelimit_config_keeping_current",
			zap.String("rate", cfg.Rate),
			zap.Error(err),
		)
		return
	}
	r.apply(rate)
}

func (r *RateLimitReloader) apply(rate limiter.Rate) {
	r.current.Store(stdlibmw.NewMiddleware(
		limiter.New(r.store, rate),
		stdlibmw.WithKeyGetter(request.ClientIP),
		stdlibmw.WithLimitReachedHandler(r.limitReached),
		stdlibmw.WithErrorHandler(r.storeError),
	))
}

func (r *RateLimitReloader) limitReached(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusTooManyRequests, codeRateLimited, "Too many requests", r.log)
}

func (r *RateLimitReloader) storeError(w http.ResponseWriter, req *http.Request, err error) {
	r.log.Error("ratelimit_store_failed",
		zap.String("path", req.URL.Path),
		zap.Error(err),
	)
	writeError(w, http.StatusServiceUnavailable, codeUnavailable, "Rate limiting is temporarily unavailable", r.log)
}
