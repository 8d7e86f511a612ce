// Package capture drives the Chrome tab showing the reader: screenshots of
// the visible page and page turns.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/avast/retry-go/v4"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/go-rod/rod/lib/launcher"

	"github.com/jackzampolin/pagecap/internal/imageprep"
	"github.com/jackzampolin/pagecap/internal/jobs"
)

var (
	// ErrNoActiveTarget is returned when no capturable reader tab is available.
	ErrNoActiveTarget = errors.New("no active reader tab")
	// ErrClosed is returned when using a closed Browser.
	ErrClosed = errors.New("browser is closed")
)

// Browser owns a Chrome session and the tab being captured.
// It is safe for concurrent use, but callers normally serialize access
// through the job controller.
type Browser struct {
	cfg    browserConfig
	logger *slog.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	tabCtx        context.Context
	tabCancel     context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// Open launches Chrome or attaches to a running instance and selects the
// reader tab. The caller must call [Browser.Close].
func Open(ctx context.Context, opts ...Option) (*Browser, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "browser")

	b := &Browser{cfg: cfg, logger: logger}
	var err error
	if cfg.remoteURL != "" {
		err = b.attach(ctx)
	} else {
		err = b.launch(ctx)
	}
	if err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (b *Browser) launch(ctx context.Context) error {
	execPath := b.cfg.chromePath
	if execPath == "" && b.cfg.autoDownload {
		path, err := resolveBrowser()
		if err != nil {
			return err
		}
		execPath = path
	}

	allocOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("headless", b.cfg.headless),
		chromedp.WindowSize(b.cfg.windowWidth, b.cfg.windowHeight),
	)
	if execPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(execPath))
	}
	if b.cfg.noSandbox {
		allocOpts = append(allocOpts, chromedp.Flag("no-sandbox", true))
	}
	if b.cfg.userDataDir != "" {
		allocOpts = append(allocOpts, chromedp.UserDataDir(b.cfg.userDataDir))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	b.allocCancel = allocCancel
	b.browserCtx, b.browserCancel = chromedp.NewContext(allocCtx)

	// Start the browser eagerly so errors surface at creation time. The first
	// Run must use the chromedp context itself or the browser dies with ctx.
	if err := chromedp.Run(b.browserCtx); err != nil {
		return fmt.Errorf("starting browser: %w", err)
	}
	b.tabCtx, b.tabCancel = b.browserCtx, func() {}

	if b.cfg.startURL != "" {
		if err := b.Navigate(ctx, b.cfg.startURL); err != nil {
			return err
		}
	}
	b.logger.Info("browser launched", "exec", execPath, "headless", b.cfg.headless)
	return nil
}

func (b *Browser) attach(ctx context.Context) error {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), b.cfg.remoteURL)
	b.allocCancel = allocCancel
	b.browserCtx, b.browserCancel = chromedp.NewContext(allocCtx)

	if err := chromedp.Run(b.browserCtx); err != nil {
		return fmt.Errorf("connecting to %s: %w", b.cfg.remoteURL, err)
	}

	var picked *target.Info
	err := retry.Do(
		func() error {
			targets, err := chromedp.Targets(b.browserCtx)
			if err != nil {
				return err
			}
			picked = pickTarget(targets, b.cfg.targetMatch)
			if picked == nil {
				return ErrNoActiveTarget
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(b.cfg.connectAttempts),
		retry.Delay(b.cfg.connectDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			b.logger.Debug("waiting for reader tab", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoActiveTarget, err)
	}

	b.tabCtx, b.tabCancel = chromedp.NewContext(b.browserCtx, chromedp.WithTargetID(picked.TargetID))
	if err := chromedp.Run(b.tabCtx); err != nil {
		return fmt.Errorf("%w: attaching to %s: %v", ErrNoActiveTarget, picked.URL, err)
	}
	b.logger.Info("attached to tab", "url", picked.URL, "title", picked.Title)
	return nil
}

// pickTarget returns the first page target whose URL contains one of match,
// or the first page target when none does.
func pickTarget(targets []*target.Info, match []string) *target.Info {
	var first *target.Info
	for _, t := range targets {
		if t.Type != "page" || strings.HasPrefix(t.URL, "devtools://") {
			continue
		}
		for _, m := range match {
			if m != "" && strings.Contains(t.URL, m) {
				return t
			}
		}
		if first == nil {
			first = t
		}
	}
	return first
}

// run executes actions in chromedp context cctx, also stopping when ctx ends.
func (b *Browser) run(ctx, cctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(cctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// tab runs actions against the captured tab.
func (b *Browser) tab(ctx context.Context, actions ...chromedp.Action) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}

	err := b.run(ctx, b.tabCtx, actions...)
	if err != nil && b.tabCtx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrNoActiveTarget, err)
	}
	return err
}

// Navigate loads url in the captured tab and waits for the body.
func (b *Browser) Navigate(ctx context.Context, url string) error {
	if err := b.tab(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	return nil
}

// Screenshot returns a PNG of the tab's visible viewport.
func (b *Browser) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := b.tab(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			WithFromSurface(true).
			Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("capturing screenshot: %w", err)
	}
	return buf, nil
}

// CaptureFrame captures the visible page as a PNG data URI.
func (b *Browser) CaptureFrame(ctx context.Context) (jobs.Frame, error) {
	buf, err := b.Screenshot(ctx)
	if err != nil {
		return jobs.Frame{}, err
	}
	return jobs.Frame{
		DataURI: imageprep.EncodeDataURI(imageprep.FormatPNG.MimeType(), buf),
		Format:  imageprep.FormatPNG,
	}, nil
}

// Close releases the tab and, for launched browsers, the browser process.
// Close is idempotent.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	if b.tabCancel != nil {
		b.tabCancel()
	}
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	return nil
}

// resolveBrowser downloads a compatible Chromium binary if one is not
// already cached and returns the path to the executable.
func resolveBrowser() (string, error) {
	path, err := launcher.NewBrowser().Get()
	if err != nil {
		return "", fmt.Errorf("downloading browser: %w", err)
	}
	return path, nil
}
