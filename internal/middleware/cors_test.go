package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/benvon/finance-advisor/internal/models"
	"go.uber.org/zap"
)

type fakeCorsSource struct {
	mu  sync.Mutex
	cfg *models.CorsConfig
	err error
}

func (f *fakeCorsSource) Get(_ context.Context) (*models.CorsConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg, f.err
}

func (f *fakeCorsSource) set(cfg *models.CorsConfig, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg, f.err = cfg, err
}

func allowedOrigin(t *testing.T, handler http.Handler, origin string) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/insights", nil)
	req.Header.Set("Origin", origin)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w.Header().Get("Access-Control-Allow-Origin")
}

func TestCORSReloader(t *testing.T) {
	t.Parallel()

	source := &fakeCorsSource{}
	reloader := NewCORSReloader(source, "https://app.example.com", zap.NewNop(), 0)
	handler := reloader.Middleware()(http.HandlerFunc(okHandler))

	if got := allowedOrigin(t, handler, "https://app.example.com"); got != "https://app.example.com" {
		t.Errorf("Expected fallback origin allowed before load, got %q", got)
	}

	source.set(&models.CorsConfig{AllowedOrigins: "https://budget.example.com, https://admin.example.com", MaxAge: 600}, nil)
	reloader.Load(context.Background())

	if got := allowedOrigin(t, handler, "https://admin.example.com"); got != "https://admin.example.com" {
		t.Errorf("Expected stored origin allowed after load, got %q", got)
	}
	if got := allowedOrigin(t, handler, "https://app.example.com"); got != "" {
		t.Errorf("Expected fallback origin rejected once a config is stored, got %q", got)
	}

	source.set(nil, errors.New("db down"))
	reloader.Load(context.Background())

	if got := allowedOrigin(t, handler, "https://budget.example.com"); got != "https://budget.example.com" {
		t.Errorf("Expected current origins kept after failed load, got %q", got)
	}
}

func TestCORSReloader_StartStopsOnCancel(t *testing.T) {
	t.Parallel()

	reloader := NewCORSReloader(&fakeCorsSource{}, "", zap.NewNop(), time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reloader.Start(ctx)
		close(done)
	}()
	cancel()
	<-done
}
