package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackzampolin/pagecap/internal/assembler"
	"github.com/jackzampolin/pagecap/internal/capture"
	"github.com/jackzampolin/pagecap/internal/config"
	"github.com/jackzampolin/pagecap/internal/home"
	"github.com/jackzampolin/pagecap/internal/jobcfg"
	"github.com/jackzampolin/pagecap/internal/jobs"
	"github.com/jackzampolin/pagecap/internal/sink"
)

// Browser is the capture surface the runtime drives.
// *capture.Browser implements it.
type Browser interface {
	jobs.FrameSource
	capture.Screenshotter
	Close() error
}

// OpenFunc opens the browser session and returns it with its page turner.
type OpenFunc func(ctx context.Context, cfg *config.Config, h *home.Dir, logger *slog.Logger) (Browser, jobs.PageTurner, error)

// OpenChrome opens Chrome as configured under browser: and turn:.
func OpenChrome(ctx context.Context, cfg *config.Config, h *home.Dir, logger *slog.Logger) (Browser, jobs.PageTurner, error) {
	dir, err := capture.ParseDirection(cfg.Turn.Direction)
	if err != nil {
		return nil, nil, err
	}

	bc := cfg.Browser
	opts := []capture.Option{
		capture.WithRemoteURL(bc.RemoteURL),
		capture.WithStartURL(bc.StartURL),
		capture.WithChromePath(bc.ChromePath),
		capture.WithAutoDownload(bc.AutoDownload),
		capture.WithHeadless(bc.Headless),
		capture.WithWindowSize(bc.WindowWidth, bc.WindowHeight),
		capture.WithConnectAttempts(uint(max(bc.ConnectAttempts, 1))),
		capture.WithLogger(logger),
	}
	if bc.NoSandbox {
		opts = append(opts, capture.WithNoSandbox())
	}
	if h != nil {
		// Keep the reader login between runs.
		opts = append(opts, capture.WithUserDataDir(h.ProfilePath()))
	}

	b, err := capture.Open(ctx, opts...)
	if err != nil {
		return nil, nil, err
	}
	return b, capture.NewTurner(b, dir, cfg.Turn.Selectors), nil
}

// RuntimeConfig configures StartRuntime.
type RuntimeConfig struct {
	// ConfigManager provides configuration; nil uses defaults.
	ConfigManager *config.Manager
	Home          *home.Dir
	// Open defaults to OpenChrome.
	Open   OpenFunc
	Logger *slog.Logger
}

// Runtime is the running capture stack: the browser session, the assembler
// goroutine and the job controller.
type Runtime struct {
	Browser     Browser
	Turner      jobs.PageTurner
	Controller  *jobs.Controller
	Broadcaster *jobs.Broadcaster
	Builder     *jobcfg.Builder
	Capturer    *capture.Single
	Sink        *sink.Dir

	logger *slog.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// StartRuntime opens the browser and starts the assembler and controller
// goroutines. They run until ctx is cancelled or Close is called.
func StartRuntime(ctx context.Context, cfg RuntimeConfig) (*Runtime, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	open := cfg.Open
	if open == nil {
		open = OpenChrome
	}

	var source jobcfg.Source
	conf := config.DefaultConfig()
	if cfg.ConfigManager != nil {
		source = cfg.ConfigManager
		conf = cfg.ConfigManager.Get()
	}
	builder := jobcfg.NewBuilder(source, logger)

	outDir := conf.Output.Dir
	if outDir == "" {
		if cfg.Home == nil {
			return nil, errors.New("no output directory: set output.dir or a home directory")
		}
		outDir = cfg.Home.DownloadsPath()
	}
	downloads, err := sink.NewDir(outDir, logger)
	if err != nil {
		return nil, err
	}

	browser, turner, err := open(ctx, conf, cfg.Home, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open browser: %w", err)
	}

	workCtx, cancel := context.WithCancel(ctx)
	rt := &Runtime{
		Browser:     browser,
		Turner:      turner,
		Broadcaster: jobs.NewBroadcaster(logger),
		Builder:     builder,
		Sink:        downloads,
		Capturer:    &capture.Single{Source: browser, Sink: downloads, Prefix: builder.FilePrefix()},
		logger:      logger,
		cancel:      cancel,
	}

	host := assembler.NewHost(builder.HostConfig(logger))
	rt.Controller = jobs.NewController(jobs.ControllerConfig{
		Source:     browser,
		Turner:     turner,
		Sink:       downloads,
		Assembler:  host.Client(),
		Observer:   rt.Broadcaster,
		Events:     host.Events(),
		Logger:     logger,
		FilePrefix: builder.FilePrefix(),
	})

	rt.wg.Add(2)
	go func() {
		defer rt.wg.Done()
		host.Start(workCtx)
	}()
	go func() {
		defer rt.wg.Done()
		rt.Controller.Run(workCtx)
	}()

	if cfg.ConfigManager != nil {
		cfg.ConfigManager.OnChange(func(c *config.Config) {
			logger.Info("capture defaults reloaded, applied on next start",
				"pages", c.Capture.Pages, "split_limit", c.Capture.SplitLimit, "format", c.Capture.Format)
		})
	}

	logger.Info("capture runtime ready", "downloads", downloads.Path())
	return rt, nil
}

// Close stops the controller and assembler, then closes the browser.
// An active run is abandoned without delivering its pages.
func (rt *Runtime) Close() error {
	var err error
	rt.once.Do(func() {
		rt.cancel()
		rt.wg.Wait()
		err = rt.Browser.Close()
		rt.logger.Info("capture runtime stopped")
	})
	return err
}
