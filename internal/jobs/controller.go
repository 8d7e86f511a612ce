package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/pagecap/internal/assembler"
	"github.com/jackzampolin/pagecap/internal/imageprep"
	"github.com/jackzampolin/pagecap/internal/sink"
)

// Status strings returned to START and STOP callers.
const (
	StatusLoopStarted      = "Loop started"
	StatusAlreadyCapturing = "Already capturing"
	StatusStopFlagSet      = "Stop flag set"
	StatusNotCapturing     = "Not capturing"
)

// Frame is one captured screenshot.
type Frame struct {
	DataURI string
	Format  imageprep.Format
}

// FrameSource captures the visible reader page.
type FrameSource interface {
	CaptureFrame(ctx context.Context) (Frame, error)
}

// PageTurner advances the reader by one page and describes what it did.
type PageTurner interface {
	Turn(ctx context.Context) (string, error)
}

// Sink stores a finished document and returns where it went.
type Sink interface {
	SavePDF(ctx context.Context, name string, pdf []byte) (string, error)
}

// Assembler is the request/response surface of the document assembler.
type Assembler interface {
	InitJob(ctx context.Context, cfg assembler.Config) (assembler.Config, error)
	UpdateConfig(ctx context.Context, p assembler.Partial) (assembler.Config, error)
	AddPage(ctx context.Context, req assembler.AddPageRequest) (assembler.AddResult, error)
	Checkpoint(ctx context.Context) (assembler.CheckpointResult, error)
	Finalize(ctx context.Context, resetAfter bool) (*assembler.Payload, error)
}

// ControllerConfig configures a new Controller.
type ControllerConfig struct {
	Source    FrameSource
	Turner    PageTurner
	Sink      Sink
	Assembler Assembler
	Observer  Observer
	Logger    *slog.Logger

	// Events is the assembler's notification stream. Optional.
	Events <-chan assembler.Event

	FilePrefix string
	Now        func() time.Time
}

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStop
	cmdStatus
	cmdWait
	cmdExclusive
)

type command struct {
	kind     commandKind
	settings Settings
	fn       func(ctx context.Context) error
	reply    chan commandReply
}

type commandReply struct {
	status   string
	snapshot Session
	err      error
}

// Controller runs capture jobs one at a time. All session state lives on the
// goroutine running Run; other goroutines talk to it through Start, Stop,
// Status, Wait and Exclusive.
type Controller struct {
	source FrameSource
	turner PageTurner
	sink   Sink
	asm    Assembler
	obs    Observer
	events <-chan assembler.Event
	logger *slog.Logger
	prefix string
	now    func() time.Time

	cmds    chan command
	stopped chan struct{}

	session *Session
	waiters []chan commandReply
}

// NewController creates a Controller. Call Run to start serving commands.
func NewController(cfg ControllerConfig) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	obs := cfg.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	prefix := cfg.FilePrefix
	if prefix == "" {
		prefix = sink.DefaultPrefix
	}

	return &Controller{
		source:  cfg.Source,
		turner:  cfg.Turner,
		sink:    cfg.Sink,
		asm:     cfg.Assembler,
		obs:     obs,
		events:  cfg.Events,
		logger:  logger.With("component", "controller"),
		prefix:  prefix,
		now:     now,
		cmds:    make(chan command),
		stopped: make(chan struct{}),
		session: NewSession(),
	}
}

// Run serves commands and executes runs until ctx is cancelled.
// Blocks; run in a goroutine.
func (c *Controller) Run(ctx context.Context) {
	defer close(c.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-c.events:
			c.handleEvent(e)
		case cmd := <-c.cmds:
			c.serveIdle(ctx, cmd)
		}
	}
}

// Start begins a run with the given settings. It returns as soon as the run
// has been accepted; progress is reported to the Observer.
func (c *Controller) Start(ctx context.Context, settings Settings) (string, error) {
	r, err := c.send(ctx, command{kind: cmdStart, settings: settings})
	return r.status, err
}

// Stop asks the active run to finish after the current page.
func (c *Controller) Stop(ctx context.Context) (string, error) {
	r, err := c.send(ctx, command{kind: cmdStop})
	return r.status, err
}

// Status returns a snapshot of the session.
func (c *Controller) Status(ctx context.Context) (Session, error) {
	r, err := c.send(ctx, command{kind: cmdStatus})
	return r.snapshot, err
}

// Wait blocks until no run is active and returns the final session snapshot.
func (c *Controller) Wait(ctx context.Context) (Session, error) {
	r, err := c.send(ctx, command{kind: cmdWait})
	return r.snapshot, err
}

// Exclusive runs fn on the controller goroutine if no run is active, so that
// a run cannot start while fn uses the browser.
func (c *Controller) Exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := c.send(ctx, command{kind: cmdExclusive, fn: fn})
	return err
}

func (c *Controller) send(ctx context.Context, cmd command) (commandReply, error) {
	cmd.reply = make(chan commandReply, 1)
	select {
	case c.cmds <- cmd:
	case <-c.stopped:
		return commandReply{}, ErrControllerStopped
	case <-ctx.Done():
		return commandReply{}, ctx.Err()
	}
	select {
	case r := <-cmd.reply:
		return r, r.err
	case <-c.stopped:
		return commandReply{}, ErrControllerStopped
	case <-ctx.Done():
		return commandReply{}, ctx.Err()
	}
}

// serveIdle handles a command while no run is active.
func (c *Controller) serveIdle(ctx context.Context, cmd command) {
	switch cmd.kind {
	case cmdStart:
		if err := c.session.Begin(uuid.New().String(), cmd.settings, c.now()); err != nil {
			cmd.reply <- commandReply{status: StatusAlreadyCapturing, err: err}
			return
		}
		cmd.reply <- commandReply{status: StatusLoopStarted, snapshot: c.session.Snapshot()}
		c.execute(ctx)
	case cmdStop:
		cmd.reply <- commandReply{status: StatusNotCapturing, err: ErrNotRunning}
	case cmdStatus, cmdWait:
		cmd.reply <- commandReply{status: string(c.session.State), snapshot: c.session.Snapshot()}
	case cmdExclusive:
		cmd.reply <- commandReply{err: cmd.fn(ctx)}
	}
}

// serveBusy handles a command that arrives while a run is suspended.
func (c *Controller) serveBusy(cmd command) {
	switch cmd.kind {
	case cmdStart, cmdExclusive:
		cmd.reply <- commandReply{status: StatusAlreadyCapturing, err: ErrAlreadyRunning}
	case cmdStop:
		if err := c.session.RequestStop(); err != nil {
			cmd.reply <- commandReply{status: StatusNotCapturing, err: err}
			return
		}
		c.logger.Info("stop requested", "run_id", c.session.RunID, "captured", c.session.CapturedPages)
		cmd.reply <- commandReply{status: StatusStopFlagSet}
	case cmdStatus:
		cmd.reply <- commandReply{status: string(c.session.State), snapshot: c.session.Snapshot()}
	case cmdWait:
		c.waiters = append(c.waiters, cmd.reply)
	}
}

func (c *Controller) handleEvent(e assembler.Event) {
	if e.Kind == assembler.EventError {
		c.logger.Warn("assembler reported error", "stage", e.Stage, "error", e.Err)
		return
	}
	c.logger.Debug("assembler status", "stage", e.Stage, "processing_ms", e.ProcessingMs, "estimated_bytes", e.EstimatedBytes)
}

// await runs op off the controller goroutine and serves commands until it
// returns. op must not touch the session.
func (c *Controller) await(ctx context.Context, op func(ctx context.Context) error) error {
	done := make(chan error, 1)
	go func() { done <- op(ctx) }()
	for {
		select {
		case err := <-done:
			return err
		case cmd := <-c.cmds:
			c.serveBusy(cmd)
		case e := <-c.events:
			c.handleEvent(e)
		}
	}
}

func (c *Controller) pause(ctx context.Context, d time.Duration) error {
	return c.await(ctx, func(ctx context.Context) error {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func (c *Controller) status(text string) {
	c.obs.UpdateStatus(text)
}

func (c *Controller) metrics() {
	c.obs.UpdateMetrics(metricsFor(c.session))
}

// execute drives one run to completion. The session always ends idle.
func (c *Controller) execute(ctx context.Context) {
	s := c.session
	logger := c.logger.With("run_id", s.RunID)
	logger.Info("capture run started",
		"pages", s.TotalPages,
		"split_limit", s.Settings.SplitLimit,
		"format", s.Config.Format,
		"quality", s.Config.Quality,
		"max_long_edge", s.Config.MaxLongEdge)

	defer c.cleanup(logger)

	if err := c.loop(ctx, logger); err != nil {
		var fe *FatalError
		if !errors.As(err, &fe) {
			fe = fatal(err, "capture failed")
		}
		s.Err = fe
		s.LastError = fe.Error()
		if terr := s.Transition(StateError); terr != nil {
			logger.Error("state transition failed", "error", terr)
			s.State = StateError
		}
		logger.Error("capture run failed", "error", fe, "captured", s.CapturedPages)
		c.status("Error: " + fe.Error())
		c.metrics()
		return
	}

	if err := s.Transition(StateDone); err != nil {
		logger.Error("state transition failed", "error", err)
		s.State = StateDone
	}
	logger.Info("capture run finished", "captured", s.CapturedPages, "parts", len(s.Delivered), "stopped", s.StopRequested)
	c.metrics()
}

// cleanup forces the session back to idle and releases Wait callers.
func (c *Controller) cleanup(logger *slog.Logger) {
	c.session.Reset()
	snap := c.session.Snapshot()
	for _, w := range c.waiters {
		w <- commandReply{status: string(snap.State), snapshot: snap}
	}
	c.waiters = nil
	logger.Debug("session reset to idle")
}

func (c *Controller) loop(ctx context.Context, logger *slog.Logger) error {
	s := c.session

	c.status("Initializing PDF setup...")
	var cfg assembler.Config
	err := c.await(ctx, func(ctx context.Context) error {
		var err error
		cfg, err = c.asm.InitJob(ctx, s.Config)
		return err
	})
	if err != nil {
		return fatal(err, "could not initialize the document")
	}
	s.Config = cfg

	split := s.Settings.SplitLimit
	for i := 0; i < s.TotalPages; i++ {
		if s.StopRequested {
			logger.Info("stopping early", "page", i, "total", s.TotalPages)
			break
		}

		c.status(fmt.Sprintf("Capturing page %d/%d...", i+1, s.TotalPages))
		var frame Frame
		err := c.await(ctx, func(ctx context.Context) error {
			var err error
			frame, err = c.source.CaptureFrame(ctx)
			return err
		})
		if err != nil {
			return fatal(err, "could not capture page %d", i+1)
		}

		res, err := c.addPage(ctx, logger, frame, i)
		if err != nil {
			return err
		}
		s.CapturedPages++
		s.PagesInPart++
		s.PagesSinceCheckpoint++
		s.LastProcessingMs = res.ProcessingMs
		s.EstimatedBytes = res.EstimatedBytes
		s.CurrentWaitMs = s.Settings.NextWait(res.ProcessingMs)

		if s.PagesSinceCheckpoint >= s.Config.CheckpointPages {
			if err := c.checkpoint(ctx, logger); err != nil {
				return err
			}
		}

		if split > 0 && s.PagesInPart >= split {
			c.status(fmt.Sprintf("Saving part %d...", s.PartIndex))
			if err := c.deliver(ctx, logger, s.PartIndex); err != nil {
				return err
			}
			s.PartIndex++
			s.PagesInPart = 0
			s.PagesSinceCheckpoint = 0
		}
		c.metrics()

		if !s.StopRequested && i < s.TotalPages-1 {
			c.turn(ctx, logger, i)
			if err := c.pause(ctx, time.Duration(s.CurrentWaitMs)*time.Millisecond); err != nil {
				return fatal(err, "interrupted while waiting for page %d", i+2)
			}
		}
	}

	if s.CapturedPages == 0 {
		c.status("Nothing captured")
		logger.Info("nothing captured")
		return nil
	}
	if s.PagesInPart > 0 {
		part := 0
		if split > 0 {
			part = s.PartIndex
		}
		c.status("Generating PDF...")
		if err := c.deliver(ctx, logger, part); err != nil {
			return err
		}
		if split > 0 {
			s.PartIndex++
		}
		s.PagesInPart = 0
		s.PagesSinceCheckpoint = 0
	}
	return nil
}

// withRecovery runs op and, on a recoverable failure, applies one ladder
// step, pushes the new config and runs op exactly once more.
func (c *Controller) withRecovery(ctx context.Context, logger *slog.Logger, what string, op func(ctx context.Context) error) error {
	s := c.session
	err := c.await(ctx, op)
	if err == nil {
		return nil
	}
	if !recoverable(err) {
		return fatal(err, "%s failed", what)
	}

	logger.Warn("recoverable failure", "op", what, "error", err, "fallback_step", s.FallbackStep)
	cfg, lerr := s.Degrade()
	if lerr != nil {
		return lerr
	}

	c.status(fmt.Sprintf("Recovering (step %d): %s, quality %d, max edge %dpx", s.FallbackStep, cfg.Format, cfg.Quality, cfg.MaxLongEdge))
	err = c.await(ctx, func(ctx context.Context) error {
		var err error
		cfg, err = c.asm.UpdateConfig(ctx, assembler.PartialFrom(cfg))
		return err
	})
	if err != nil {
		return fatal(err, "could not apply recovery settings")
	}
	s.Config = cfg
	c.metrics()

	if err := c.await(ctx, op); err != nil {
		return fatal(err, "%s failed after recovery step %d", what, s.FallbackStep)
	}
	logger.Info("recovered", "op", what, "fallback_step", s.FallbackStep)
	return nil
}

func (c *Controller) addPage(ctx context.Context, logger *slog.Logger, frame Frame, seq int) (assembler.AddResult, error) {
	var res assembler.AddResult
	err := c.withRecovery(ctx, logger, fmt.Sprintf("page %d", seq+1), func(ctx context.Context) error {
		var err error
		res, err = c.asm.AddPage(ctx, assembler.AddPageRequest{Frame: frame.DataURI, FormatHint: frame.Format, Seq: seq})
		return err
	})
	if err == nil {
		logger.Debug("page added", "seq", seq, "processing_ms", res.ProcessingMs, "estimated_bytes", res.EstimatedBytes)
	}
	return res, err
}

func (c *Controller) checkpoint(ctx context.Context, logger *slog.Logger) error {
	s := c.session
	var res assembler.CheckpointResult
	err := c.await(ctx, func(ctx context.Context) error {
		var err error
		res, err = c.asm.Checkpoint(ctx)
		return err
	})
	if err != nil {
		return fatal(err, "checkpoint after page %d failed", s.CapturedPages)
	}
	s.CheckpointCount = res.CheckpointCount
	s.EstimatedBytes = res.EstimatedBytes
	s.PagesSinceCheckpoint = 0
	logger.Debug("checkpoint", "count", res.CheckpointCount, "estimated_bytes", res.EstimatedBytes)
	return nil
}

// deliver finalizes the current part and hands it to the sink. part 0 means
// an unsplit document. Sink failures are reported but do not end the run.
func (c *Controller) deliver(ctx context.Context, logger *slog.Logger, part int) error {
	s := c.session
	if err := s.Transition(StateFinalizing); err != nil {
		return fatal(err, "cannot finalize")
	}

	var payload *assembler.Payload
	err := c.withRecovery(ctx, logger, "finalize", func(ctx context.Context) error {
		var err error
		payload, err = c.asm.Finalize(ctx, true)
		return err
	})
	if err != nil {
		return err
	}
	s.CheckpointCount = 0
	s.EstimatedBytes = 0

	if !payload.Empty {
		pdf, err := payload.PDF()
		if err != nil {
			return fatal(err, "finalized document is unreadable")
		}
		name := sink.PDFName(c.prefix, c.now(), part)
		var path string
		err = c.await(ctx, func(ctx context.Context) error {
			var err error
			path, err = c.sink.SavePDF(ctx, name, pdf)
			return err
		})
		if err != nil {
			logger.Warn("download failed", "file", name, "error", err)
			c.status("Download Error: " + err.Error())
		} else {
			s.Delivered = append(s.Delivered, path)
			logger.Info("pdf delivered", "path", path, "part", part, "pages", payload.Pages, "bytes", payload.Bytes)
			c.status("PDF Downloaded!")
		}
	}

	if err := s.Transition(StateRunning); err != nil {
		return fatal(err, "cannot resume")
	}
	return nil
}

// turn triggers the next page. Failures are logged and never end the run.
func (c *Controller) turn(ctx context.Context, logger *slog.Logger, i int) {
	if c.turner == nil {
		return
	}
	c.status(fmt.Sprintf("Turning page %d...", i+1))
	var how string
	err := c.await(ctx, func(ctx context.Context) error {
		var err error
		how, err = c.turner.Turn(ctx)
		return err
	})
	if err != nil {
		logger.Warn("page turn failed", "page", i+1, "error", err)
		return
	}
	logger.Debug("page turned", "page", i+1, "via", how)
}
