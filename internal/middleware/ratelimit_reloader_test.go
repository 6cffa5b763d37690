package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/benvon/finance-advisor/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type fakeRatelimitStore struct {
	mu    sync.Mutex
	cfg   *models.RatelimitConfig
	err   error
	saved []string
}

func (f *fakeRatelimitStore) Get(_ context.Context) (*models.RatelimitConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg, f.err
}

func (f *fakeRatelimitStore) Set(_ context.Context, c *models.RatelimitConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, c.Rate)
	f.cfg = c
	return nil
}

func newTestRateLimiter(t *testing.T, store *fakeRatelimitStore, defaultRate string) *RateLimitReloader {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	reloader, err := NewRateLimitReloader(client, store, defaultRate, zap.NewNop(), 0)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return reloader
}

// hits sends n requests from one client and returns the last status
func hits(handler http.Handler, n int) *httptest.ResponseRecorder {
	var w *httptest.ResponseRecorder
	for i := 0; i < n; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/insights", nil)
		req.RemoteAddr = "198.51.100.4:40000"
		w = httptest.NewRecorder()
		handler.ServeHTTP(w, req)
	}
	return w
}

func TestRateLimitReloader_DefaultRate(t *testing.T) {
	t.Parallel()

	reloader := newTestRateLimiter(t, &fakeRatelimitStore{}, "2-M")
	handler := reloader.Middleware()(http.HandlerFunc(okHandler))

	if w := hits(handler, 2); w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 within rate, got %d", w.Code)
	}
	w := hits(handler, 1)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected status 429, got %d", w.Code)
	}
	if body := decodeError(t, w); body.Error != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("Expected RATE_LIMIT_EXCEEDED, got %s", body.Error)
	}
	if w.Header().Get("Retry-After") != "" {
		t.Error("Expected no Retry-After on request rate rejections")
	}
}

func TestRateLimitReloader_Load(t *testing.T) {
	t.Parallel()

	t.Run("saves default when none stored", func(t *testing.T) {
		t.Parallel()
		store := &fakeRatelimitStore{}
		reloader := newTestRateLimiter(t, store, "")

		reloader.Load(context.Background())

		if len(store.saved) != 1 || store.saved[0] != DefaultRequestRate {
			t.Errorf("Expected default rate saved, got %v", store.saved)
		}
	})

	t.Run("applies stored rate", func(t *testing.T) {
		t.Parallel()
		store := &fakeRatelimitStore{cfg: &models.RatelimitConfig{Rate: "1-M"}}
		reloader := newTestRateLimiter(t, store, "100-M")
		handler := reloader.Middleware()(http.HandlerFunc(okHandler))

		reloader.Load(context.Background())

		if w := hits(handler, 2); w.Code != http.StatusTooManyRequests {
			t.Errorf("Expected stored rate to apply, got status %d", w.Code)
		}
	})

	t.Run("keeps current rate when stored rate is invalid", func(t *testing.T) {
		t.Parallel()
		store := &fakeRatelimitStore{cfg: &models.RatelimitConfig{Rate: "lots"}}
		reloader := newTestRateLimiter(t, store, "100-M")
		handler := reloader.Middleware()(http.HandlerFunc(okHandler))

		reloader.Load(context.Background())

		if w := hits(handler, 5); w.Code != http.StatusOK {
			t.Errorf("Expected default rate kept, got status %d", w.Code)
		}
	})

	t.Run("keeps current rate when store fails", func(t *testing.T) {
		t.Parallel()
		store := &fakeRatelimitStore{err: errors.New("db down")}
		reloader := newTestRateLimiter(t, store, "100-M")

		reloader.Load(context.Background())

		if len(store.saved) != 0 {
			t.Errorf("Expected nothing saved on read failure, got %v", store.saved)
		}
	})
}

func TestNewRateLimitReloader_InvalidDefault(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	if _, err := NewRateLimitReloader(client, &fakeRatelimitStore{}, "often", zap.NewNop(), 0); err == nil {
		t.Error("Expected error for malformed default rate")
	}
}

func TestRateLimitReloader_StoreDown(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()
	reloader, err := NewRateLimitReloader(client, &fakeRatelimitStore{}, "5-S", zap.NewNop(), 0)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	mr.Close()

	w := hits(reloader.Middleware()(http.HandlerFunc(okHandler)), 1)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503 when Redis is down, got %d", w.Code)
	}
}
