package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackzampolin/pagecap/internal/api"
	"github.com/jackzampolin/pagecap/internal/assembler"
	"github.com/jackzampolin/pagecap/internal/jobs"
	"github.com/jackzampolin/pagecap/internal/server/endpoints"
)

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

// waitIdle polls the status endpoint until the run is over.
func waitIdle(t *testing.T, url string) endpoints.JobStatusResponse {
	t.Helper()
	deadline := time.Now().Add(20 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/api/job/status")
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		st := decode[endpoints.JobStatusResponse](t, resp)
		if st.Session.RunID != "" && st.Session.State == jobs.StateIdle {
			return st
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("run did not finish")
	return endpoints.JobStatusResponse{}
}

// waitCaptured polls the status endpoint until at least n pages are in.
func waitCaptured(t *testing.T, url string, n int) {
	t.Helper()
	deadline := time.Now().Add(20 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/api/job/status")
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if st := decode[endpoints.JobStatusResponse](t, resp); st.Session.CapturedPages >= n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("fewer than %d pages captured", n)
}

func TestServer_CaptureRun(t *testing.T) {
	env := startTestServer(t, "")
	url := env.cfg.URL()

	resp := postJSON(t, url+"/api/job/start", `{"pages": 4, "capture_format": "PNG"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("start status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}
	started := decode[endpoints.StartJobResponse](t, resp)
	if started.Status != jobs.StatusLoopStarted {
		t.Errorf("Status = %q, want %q", started.Status, jobs.StatusLoopStarted)
	}
	if started.Settings.Pages != 4 {
		t.Errorf("Settings.Pages = %d, want 4", started.Settings.Pages)
	}
	if started.Settings.WaitMs != 0 {
		t.Errorf("Settings.WaitMs = %d, want configured 0", started.Settings.WaitMs)
	}

	st := waitIdle(t, url)
	if st.Session.CapturedPages != 4 {
		t.Errorf("CapturedPages = %d, want 4", st.Session.CapturedPages)
	}
	if st.Session.Config.Format != "png" {
		t.Errorf("Config.Format = %q, want png", st.Session.Config.Format)
	}
	if len(st.Session.Delivered) != 1 {
		t.Fatalf("Delivered = %v, want one document", st.Session.Delivered)
	}

	path := st.Session.Delivered[0]
	if filepath.Dir(path) != env.cfg.OutputDir {
		t.Errorf("document saved to %s, want under %s", path, env.cfg.OutputDir)
	}
	if !strings.HasPrefix(filepath.Base(path), "test_book_") || filepath.Ext(path) != ".pdf" {
		t.Errorf("document name = %q", filepath.Base(path))
	}
	pdf, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read document: %v", err)
	}
	pages, err := assembler.CountPages(pdf)
	if err != nil {
		t.Fatalf("CountPages: %v", err)
	}
	if pages != 4 {
		t.Errorf("document has %d pages, want 4", pages)
	}
	if got := env.turner.Turns(); got != 3 {
		t.Errorf("Turns() = %d, want 3", got)
	}
}

func TestServer_SplitRun(t *testing.T) {
	env := startTestServer(t, "  split_limit: 2\n")
	url := env.cfg.URL()

	resp := postJSON(t, url+"/api/job/start", `{"pages": 5}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("start status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}

	st := waitIdle(t, url)
	if len(st.Session.Delivered) != 3 {
		t.Fatalf("Delivered = %v, want 3 parts", st.Session.Delivered)
	}
	for i, path := range st.Session.Delivered {
		if want := fmt.Sprintf("_part%d.pdf", i+1); !strings.HasSuffix(path, want) {
			t.Errorf("part %d = %q, want suffix %q", i+1, filepath.Base(path), want)
		}
	}
}

func TestServer_StartConflictAndStop(t *testing.T) {
	env := startTestServer(t, "")
	env.browser.SetDelay(10 * time.Millisecond)
	url := env.cfg.URL()

	resp := postJSON(t, url+"/api/job/start", `{"pages": 10000, "wait_ms": 5}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("start status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}

	t.Run("second_start_conflicts", func(t *testing.T) {
		resp := postJSON(t, url+"/api/job/start", `{}`)
		if resp.StatusCode != http.StatusConflict {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusConflict)
		}
		body := decode[endpoints.ErrorResponse](t, resp)
		if body.Error != jobs.StatusAlreadyCapturing {
			t.Errorf("error = %q, want %q", body.Error, jobs.StatusAlreadyCapturing)
		}
	})

	t.Run("capture_one_conflicts", func(t *testing.T) {
		resp := postJSON(t, url+"/api/capture/one", "")
		resp.Body.Close()
		if resp.StatusCode != http.StatusConflict {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusConflict)
		}
	})

	t.Run("stop", func(t *testing.T) {
		waitCaptured(t, url, 2)
		resp := postJSON(t, url+"/api/job/stop", "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
		}
		body := decode[endpoints.StopJobResponse](t, resp)
		if body.Status != jobs.StatusStopFlagSet {
			t.Errorf("Status = %q, want %q", body.Status, jobs.StatusStopFlagSet)
		}
	})

	st := waitIdle(t, url)
	if st.Session.CapturedPages == 0 || st.Session.CapturedPages >= 10000 {
		t.Errorf("CapturedPages = %d, want a partial run", st.Session.CapturedPages)
	}
	if len(st.Session.Delivered) != 1 {
		t.Errorf("Delivered = %v, want the partial document", st.Session.Delivered)
	}

	t.Run("stop_when_idle", func(t *testing.T) {
		resp := postJSON(t, url+"/api/job/stop", "")
		if resp.StatusCode != http.StatusConflict {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusConflict)
		}
		body := decode[endpoints.ErrorResponse](t, resp)
		if body.Error != jobs.StatusNotCapturing {
			t.Errorf("error = %q, want %q", body.Error, jobs.StatusNotCapturing)
		}
	})
}

func TestServer_StartValidation(t *testing.T) {
	env := startTestServer(t, "")
	url := env.cfg.URL()

	tests := []struct {
		name string
		body string
		want int
	}{
		{"wrong type", `{"pages": "ten"}`, http.StatusBadRequest},
		{"unknown field", `{"pagez": 3}`, http.StatusBadRequest},
		{"not an object", `[1, 2]`, http.StatusBadRequest},
		{"malformed", `{"pages":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, url+"/api/job/start", tt.body)
			body := decode[endpoints.ErrorResponse](t, resp)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if body.Error == "" {
				t.Error("missing error message")
			}
		})
	}

	t.Run("out_of_range_values_are_clamped", func(t *testing.T) {
		resp := postJSON(t, url+"/api/job/start", `{"pages": 1, "jpeg_quality": 5, "max_long_edge": 100}`)
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusAccepted)
		}
		started := decode[endpoints.StartJobResponse](t, resp)
		if started.Settings.JPEGQuality != assembler.MinQuality {
			t.Errorf("JPEGQuality = %d, want %d", started.Settings.JPEGQuality, assembler.MinQuality)
		}
		if started.Settings.MaxLongEdge != assembler.MinMaxLongEdge {
			t.Errorf("MaxLongEdge = %d, want %d", started.Settings.MaxLongEdge, assembler.MinMaxLongEdge)
		}
		waitIdle(t, url)
	})
}

func TestServer_ManualCapture(t *testing.T) {
	env := startTestServer(t, "")
	url := env.cfg.URL()

	for i := 1; i <= 2; i++ {
		resp := postJSON(t, url+"/api/capture/one", "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("capture status = %d, want %d", resp.StatusCode, http.StatusOK)
		}
		got := decode[endpoints.CaptureOneResponse](t, resp)
		want := filepath.Join(env.cfg.OutputDir, fmt.Sprintf("test_book_capture_%03d.png", i))
		if got.Path != want {
			t.Errorf("Path = %q, want %q", got.Path, want)
		}
		if _, err := os.Stat(got.Path); err != nil {
			t.Errorf("capture missing: %v", err)
		}
	}

	resp := postJSON(t, url+"/api/capture/turn", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("turn status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	turned := decode[endpoints.TurnPageResponse](t, resp)
	if turned.Result != "key ArrowLeft" {
		t.Errorf("Result = %q", turned.Result)
	}
	if env.turner.Turns() != 1 {
		t.Errorf("Turns() = %d, want 1", env.turner.Turns())
	}
}

func TestServer_ManualCaptureBrowserError(t *testing.T) {
	env := startTestServer(t, "")
	env.browser.SetErr(errors.New("tab crashed"))

	resp := postJSON(t, env.cfg.URL()+"/api/capture/one", "")
	body := decode[endpoints.ErrorResponse](t, resp)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}
	if !strings.Contains(body.Error, "tab crashed") {
		t.Errorf("error = %q", body.Error)
	}
}

func TestServer_Settings(t *testing.T) {
	env := startTestServer(t, "  pages: 42\n")
	url := env.cfg.URL()

	t.Run("list_with_prefix", func(t *testing.T) {
		resp, err := http.Get(url + "/api/settings?prefix=capture.")
		if err != nil {
			t.Fatal(err)
		}
		got := decode[endpoints.SettingsResponse](t, resp)
		if got.File != env.cfg.ConfigFile {
			t.Errorf("File = %q, want %q", got.File, env.cfg.ConfigFile)
		}
		for _, e := range got.Settings {
			if !strings.HasPrefix(e.Key, "capture.") {
				t.Errorf("unexpected key %q", e.Key)
			}
		}
		if got.Defaults == nil || got.Defaults.Pages != 42 {
			t.Errorf("Defaults = %+v, want pages 42", got.Defaults)
		}
	})

	t.Run("get_one", func(t *testing.T) {
		resp, err := http.Get(url + "/api/settings/capture.pages")
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		got := decode[endpoints.SettingResponse](t, resp)
		if v, ok := got.Entry.Value.(float64); !ok || v != 42 {
			t.Errorf("Value = %v, want 42", got.Entry.Value)
		}
	})

	t.Run("unknown_key", func(t *testing.T) {
		resp, err := http.Get(url + "/api/settings/capture.nope")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
		}
	})
}

func TestServer_Events(t *testing.T) {
	env := startTestServer(t, "")
	url := env.cfg.URL()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	type event struct {
		kind   string
		update jobs.Update
	}
	events := make(chan event, 256)
	streamErr := make(chan error, 1)
	go func() {
		client := api.NewClient(url)
		streamErr <- client.Stream(ctx, "/api/job/events", func(kind string, data []byte) error {
			var u jobs.Update
			if err := json.Unmarshal(data, &u); err != nil {
				return err
			}
			events <- event{kind: kind, update: u}
			return nil
		})
	}()

	// The stream opens with the current status and metrics.
	for _, want := range []string{"status", "metrics"} {
		select {
		case e := <-events:
			if e.kind != want {
				t.Fatalf("first events: got %q, want %q", e.kind, want)
			}
		case <-ctx.Done():
			t.Fatalf("no %s event", want)
		}
	}

	resp := postJSON(t, url+"/api/job/start", `{"pages": 2}`)
	resp.Body.Close()

	var sawCapture, sawRunning bool
	for !(sawCapture && sawRunning) {
		select {
		case e := <-events:
			switch e.kind {
			case "status":
				if strings.HasPrefix(e.update.Status, "Capturing page") {
					sawCapture = true
				}
			case "metrics":
				if e.update.Metrics != nil && e.update.Metrics.State == jobs.StateRunning {
					sawRunning = true
				}
			}
		case err := <-streamErr:
			t.Fatalf("stream ended: %v", err)
		case <-ctx.Done():
			t.Fatalf("missing events: capture=%v running=%v", sawCapture, sawRunning)
		}
	}
	waitIdle(t, url)
}
