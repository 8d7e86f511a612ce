package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/jackzampolin/pagecap/internal/config"
	"github.com/jackzampolin/pagecap/internal/home"
	"github.com/jackzampolin/pagecap/internal/jobs"
	"github.com/jackzampolin/pagecap/internal/server/endpoints"
	"github.com/jackzampolin/pagecap/internal/testutil"
)

// testEnv is a started server backed by a fake browser.
type testEnv struct {
	cfg     testutil.ServerConfig
	srv     *Server
	browser *testutil.FakeBrowser
	turner  *testutil.FakeTurner
	stop    *testutil.StartServer
}

func fakeOpen(b *testutil.FakeBrowser, tr *testutil.FakeTurner) OpenFunc {
	return func(ctx context.Context, cfg *config.Config, h *home.Dir, logger *slog.Logger) (Browser, jobs.PageTurner, error) {
		return b, tr, nil
	}
}

func newTestServer(t *testing.T, cfg testutil.ServerConfig, open OpenFunc) *Server {
	t.Helper()

	h, err := home.New(cfg.HomeDir)
	if err != nil {
		t.Fatalf("home.New: %v", err)
	}
	if err := h.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists: %v", err)
	}
	mgr, err := config.NewManager(cfg.ConfigFile, h.Path())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	srv, err := New(Config{
		Host:          cfg.Host,
		Port:          cfg.Port,
		ConfigManager: mgr,
		Home:          h,
		OpenBrowser:   open,
		Logger:        cfg.Logger,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv
}

// startTestServer starts a server and stops it when the test ends.
func startTestServer(t *testing.T, extraConfig string) *testEnv {
	t.Helper()

	cfg := testutil.NewServerConfig(t)
	cfg.WriteConfig(t, extraConfig)

	env := &testEnv{
		cfg:     cfg,
		browser: testutil.NewFakeBrowser(64, 48),
		turner:  &testutil.FakeTurner{},
	}
	env.srv = newTestServer(t, cfg, fakeOpen(env.browser, env.turner))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- env.srv.Start(ctx)
	}()
	env.stop = &testutil.StartServer{Cancel: cancel, Done: done}
	t.Cleanup(func() { env.stop.Stop() })

	if err := testutil.WaitForServer(cfg.URL(), 10*time.Second); err != nil {
		t.Fatalf("server did not start: %v", err)
	}
	return env
}

func TestNew_Defaults(t *testing.T) {
	h, err := home.New(t.TempDir())
	if err != nil {
		t.Fatalf("home.New: %v", err)
	}
	srv, err := New(Config{Home: h})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if srv.Addr() != "127.0.0.1:8080" {
		t.Errorf("Addr() = %q, want %q", srv.Addr(), "127.0.0.1:8080")
	}
	if srv.IsRunning() {
		t.Error("IsRunning() = true before Start")
	}
	if srv.Runtime() != nil {
		t.Error("Runtime() != nil before Start")
	}
}

func TestNew_NeedsOutputLocation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() without home or output.dir should fail")
	}
}

func TestServer_RequireInit(t *testing.T) {
	h, err := home.New(t.TempDir())
	if err != nil {
		t.Fatalf("home.New: %v", err)
	}
	srv, err := New(Config{Home: h})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	handler := srv.Handler()

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{"GET", "/health", http.StatusOK},
		{"GET", "/ready", http.StatusServiceUnavailable},
		{"GET", "/api/job/status", http.StatusServiceUnavailable},
		{"POST", "/api/job/start", http.StatusServiceUnavailable},
		{"POST", "/api/capture/one", http.StatusServiceUnavailable},
		{"GET", "/api/settings", http.StatusOK},
		{"GET", "/swagger.json", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	t.Run("ready_reports_browser", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/ready", nil))
		var health endpoints.HealthResponse
		if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if health.Browser != "not_initialized" {
			t.Errorf("Browser = %q, want not_initialized", health.Browser)
		}
	})
}

func TestStartRuntime_OpenFailure(t *testing.T) {
	h, err := home.New(t.TempDir())
	if err != nil {
		t.Fatalf("home.New: %v", err)
	}
	openErr := errors.New("no chrome")
	_, err = StartRuntime(context.Background(), RuntimeConfig{
		Home: h,
		Open: func(context.Context, *config.Config, *home.Dir, *slog.Logger) (Browser, jobs.PageTurner, error) {
			return nil, nil, openErr
		},
	})
	if !errors.Is(err, openErr) {
		t.Errorf("StartRuntime() error = %v, want %v", err, openErr)
	}
}

func TestStartRuntime_CaptureRun(t *testing.T) {
	out := t.TempDir()
	browser := testutil.NewFakeBrowser(64, 48)
	turner := &testutil.FakeTurner{}

	rt, err := StartRuntime(context.Background(), RuntimeConfig{
		Home: mustHome(t, out),
		Open: fakeOpen(browser, turner),
	})
	if err != nil {
		t.Fatalf("StartRuntime() error = %v", err)
	}
	defer rt.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	settings := rt.Builder.Defaults(ctx)
	settings.Pages = 3
	settings.WaitMs = 0
	if _, err := rt.Controller.Start(ctx, settings); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	final, err := rt.Controller.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	if final.CapturedPages != 3 {
		t.Errorf("CapturedPages = %d, want 3", final.CapturedPages)
	}
	if len(final.Delivered) != 1 {
		t.Fatalf("Delivered = %v, want one document", final.Delivered)
	}
	if _, err := os.Stat(final.Delivered[0]); err != nil {
		t.Errorf("delivered file missing: %v", err)
	}
	if turner.Turns() != 2 {
		t.Errorf("Turns() = %d, want 2", turner.Turns())
	}

	if err := rt.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !browser.Closed() {
		t.Error("browser not closed")
	}
	// Close is idempotent.
	if err := rt.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func mustHome(t *testing.T, path string) *home.Dir {
	t.Helper()
	h, err := home.New(path)
	if err != nil {
		t.Fatalf("home.New: %v", err)
	}
	return h
}
