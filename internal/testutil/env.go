package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// TestFilePrefix is the output.file_prefix WriteConfig sets.
const TestFilePrefix = "test_book"

// ServerConfig holds the addresses and paths of one test server. The server
// package builds its Config from it, so testutil never imports server.
type ServerConfig struct {
	Host       string
	Port       string
	HomeDir    string
	OutputDir  string
	ConfigFile string
	Logger     *slog.Logger
}

// NewServerConfig creates configuration for a test server on a free port
// with its own home and output directories.
func NewServerConfig(t *testing.T) ServerConfig {
	t.Helper()

	level := slog.LevelWarn
	if testing.Verbose() {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	tempDir := t.TempDir()

	httpPort, err := FindFreePort()
	if err != nil {
		t.Fatalf("failed to find free port for HTTP: %v", err)
	}

	return ServerConfig{
		Host:       "127.0.0.1",
		Port:       httpPort,
		HomeDir:    filepath.Join(tempDir, "home"),
		OutputDir:  filepath.Join(tempDir, "downloads"),
		ConfigFile: filepath.Join(tempDir, "config.yaml"),
		Logger:     logger,
	}
}

// WriteConfig writes ConfigFile so documents land in OutputDir under the
// TestFilePrefix with no pause between pages. extra is appended right
// after the capture section, so indented lines add capture keys.
func (c ServerConfig) WriteConfig(t *testing.T, extra string) {
	t.Helper()
	content := fmt.Sprintf("output:\n  dir: %s\n  file_prefix: %s\ncapture:\n  wait_ms: 0\n%s",
		c.OutputDir, TestFilePrefix, extra)
	if err := os.WriteFile(c.ConfigFile, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// URL returns the server URL for the given config.
func (c ServerConfig) URL() string {
	return fmt.Sprintf("http://%s:%s", c.Host, c.Port)
}

// WaitForServer polls /ready until the capture runtime is up.
func WaitForServer(url string, timeout time.Duration) error {
	client := &http.Client{Timeout: 2 * time.Second}
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		resp, err := client.Get(url + "/ready")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(50 * time.Millisecond)
	}

	return fmt.Errorf("server not ready after %v", timeout)
}

// WaitForShutdown waits for a channel to receive a value or timeout.
func WaitForShutdown(done <-chan error, timeout time.Duration) error {
	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for shutdown")
	}
}

// FindFreePort finds an available TCP port and returns it as a string.
func FindFreePort() (string, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	defer listener.Close()
	return fmt.Sprintf("%d", listener.Addr().(*net.TCPAddr).Port), nil
}

// StartServer manages a server started in a goroutine.
// Usage:
//
//	done := make(chan error, 1)
//	go func() { done <- srv.Start(ctx) }()
//	starter := &testutil.StartServer{Cancel: cancel, Done: done}
//	t.Cleanup(func() { starter.Stop() })
//
// Stop may be called from the test body and again from cleanup.
type StartServer struct {
	Cancel context.CancelFunc
	Done   <-chan error
	// Timeout bounds the wait for Done (default: 30s).
	Timeout time.Duration

	once sync.Once
	err  error
}

// Stop cancels the server context and waits for Start to return. The first
// call's result is cached and returned by every later call.
func (s *StartServer) Stop() error {
	s.once.Do(func() {
		if s.Cancel != nil {
			s.Cancel()
		}
		if s.Done == nil {
			return
		}
		timeout := s.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		s.err = WaitForShutdown(s.Done, timeout)
	})
	return s.err
}
