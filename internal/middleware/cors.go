package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/benvon/finance-advisor/internal/database"
	"github.com/benvon/finance-advisor/internal/models"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// CorsConfigSource provides the stored CORS settings. A nil config means none is stored.
type CorsConfigSource interface {
	Get(ctx context.Context) (*models.CorsConfig, error)
}

// CORSReloader applies CORS settings stored in the database and refreshes them
// periodically. Until a config is stored, the fallback origins (FRONTEND_URL) apply.
type CORSReloader struct {
	source   CorsConfigSource
	fallback string
	log      *zap.Logger
	interval time.Duration
	current  atomic.Pointer[cors.Cors]
}

// NewCORSReloader creates a reloader serving the fallback origins until the first load
func NewCORSReloader(source CorsConfigSource, frontendURLFallback string, log *zap.Logger, reloadInterval time.Duration) *CORSReloader {
	if log == nil {
		log = zap.NewNop()
	}
	r := &CORSReloader{
		source:   source,
		fallback: strings.TrimSpace(frontendURLFallback),
		log:      log,
		interval: reloadInterval,
	}
	r.current.Store(cors.New(r.options(nil)))
	return r
}

// Middleware applies whichever CORS settings are current when the request arrives
func (r *CORSReloader) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			r.current.Load().ServeHTTP(w, req, next.ServeHTTP)
		})
	}
}

// Start loads the settings now and then every reload interval until ctx is cancelled
func (r *CORSReloader) Start(ctx context.Context) {
	reloadEvery(ctx, r.interval, r.Load)
}

// Load fetches the stored settings. A failed fetch keeps the current settings.
func (r *CORSReloader) Load(ctx context.Context) {
	cfg, err := r.source.Get(ctx)
	if err != nil {
		r.log.Warn("cors_config_load_failed_keeping_current", zap.Error(err))
		return
	}
	r.current.Store(cors.New(r.options(cfg)))
}

func (r *CORSReloader) options(cfg *models.CorsConfig) cors.Options {
	origins := database.AllowedOriginsSlice(r.fallback)
	allowCreds, maxAge := true, 86400
	if cfg != nil {
		origins = database.AllowedOriginsSlice(cfg.AllowedOrigins)
		allowCreds, maxAge = cfg.AllowCredentials, cfg.MaxAge
	}
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	return cors.Options{
		AllowedOrigins:   origins,
		AllowCredentials: allowCreds,
		MaxAge:           maxAge,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", RequestIDHeader},
		ExposedHeaders:   []string{"Retry-After", RequestIDHeader},
	}
}
