package assembler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/jackzampolin/pagecap/internal/imageprep"
)

// DefaultCallTimeout bounds a single round-trip to the host.
const DefaultCallTimeout = 2 * time.Minute

var (
	// ErrTransport is returned when a round-trip is rejected or times out.
	ErrTransport = errors.New("assembler transport failed")
	// ErrMailboxBusy is returned when the host did not accept a request in time.
	ErrMailboxBusy = errors.New("assembler mailbox busy")
	// ErrFault is returned when an operation panicked inside the host.
	ErrFault = errors.New("assembler faulted")
)

// EventKind distinguishes status from error events.
type EventKind string

const (
	EventStatus EventKind = "status"
	EventError  EventKind = "error"
)

// Event is a fire-and-forget notification from the host.
type Event struct {
	Kind           EventKind `json:"kind"`
	Stage          string    `json:"stage"`
	ProcessingMs   int64     `json:"processing_ms,omitempty"`
	EstimatedBytes int       `json:"estimated_bytes,omitempty"`
	Err            string    `json:"error,omitempty"`
}

type op string

const (
	opInit       op = "init_job"
	opUpdate     op = "update_config"
	opAddPage    op = "add_page"
	opCheckpoint op = "checkpoint"
	opFinalize   op = "finalize"
)

// AddPageRequest is the payload of an add_page round-trip.
type AddPageRequest struct {
	Frame      string
	FormatHint imageprep.Format
	Seq        int
}

type request struct {
	op    op
	cfg   Config
	part  Partial
	page  AddPageRequest
	reset bool
	reply chan response
}

type response struct {
	cfg        Config
	add        AddResult
	checkpoint CheckpointResult
	payload    *Payload
	err        error
}

// Host runs an Assembler on its own goroutine.
type Host struct {
	name   string
	logger *slog.Logger
	asm    *Assembler

	queue   chan *request
	events  chan Event
	stopped chan struct{}

	callTimeout time.Duration
	sendWait    time.Duration
}

// HostConfig configures a new Host.
type HostConfig struct {
	Name        string
	Logger      *slog.Logger
	QueueSize   int           // Default 1
	EventBuffer int           // Default 64
	CallTimeout time.Duration // Default 2m
}

// NewHost creates a Host. Call Start to begin serving requests.
func NewHost(cfg HostConfig) *Host {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.Name
	if name == "" {
		name = "assembler"
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1
	}
	eventBuffer := cfg.EventBuffer
	if eventBuffer <= 0 {
		eventBuffer = 64
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}

	logger = logger.With("component", name)
	h := &Host{
		name:        name,
		logger:      logger,
		asm:         New(logger),
		queue:       make(chan *request, queueSize),
		events:      make(chan Event, eventBuffer),
		stopped:     make(chan struct{}),
		callTimeout: timeout,
		sendWait:    time.Second,
	}
	h.asm.emit = h.publish
	return h
}

// Events returns the host's notification channel. Events are dropped when it is full.
func (h *Host) Events() <-chan Event {
	return h.events
}

// Start serves requests until ctx is cancelled. Run in a goroutine.
func (h *Host) Start(ctx context.Context) {
	defer close(h.stopped)
	h.logger.Debug("assembler host started")
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("assembler host stopped")
			return
		case req := <-h.queue:
			req.reply <- h.process(req)
		}
	}
}

// process runs one request. A panic inside the assembler is reported as ErrFault.
func (h *Host) process(req *request) (resp response) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("assembler operation panicked", "op", req.op, "panic", r)
			resp = response{err: fmt.Errorf("%w: %s: %v", ErrFault, req.op, r)}
		}
	}()

	switch req.op {
	case opInit:
		h.asm.InitJob(req.cfg)
		return response{cfg: h.asm.Config()}
	case opUpdate:
		return response{cfg: h.asm.UpdateConfig(req.part)}
	case opAddPage:
		res, err := h.asm.AddPage(req.page.Frame, req.page.FormatHint, req.page.Seq)
		return response{add: res, err: err}
	case opCheckpoint:
		res, err := h.asm.Checkpoint()
		return response{checkpoint: res, err: err}
	case opFinalize:
		p, err := h.asm.Finalize(req.reset)
		return response{payload: p, err: err}
	}
	return response{err: fmt.Errorf("%w: unknown op %q", ErrTransport, req.op)}
}

func (h *Host) publish(e Event) {
	select {
	case h.events <- e:
	default:
		h.logger.Debug("assembler event dropped", "stage", e.Stage)
	}
}

// Client returns a Client bound to this host.
func (h *Host) Client() *Client {
	return &Client{host: h}
}

// Client issues request/response round-trips to a Host.
// Callers keep at most one call in flight.
type Client struct {
	host *Host
}

// InitJob resets the assembler and applies cfg. It returns the normalized config.
func (c *Client) InitJob(ctx context.Context, cfg Config) (Config, error) {
	resp, err := c.call(ctx, &request{op: opInit, cfg: cfg})
	return resp.cfg, err
}

// UpdateConfig merges p into the active config. It returns the resulting config.
func (c *Client) UpdateConfig(ctx context.Context, p Partial) (Config, error) {
	resp, err := c.call(ctx, &request{op: opUpdate, part: p})
	return resp.cfg, err
}

// AddPage appends a frame as the next page.
func (c *Client) AddPage(ctx context.Context, req AddPageRequest) (AddResult, error) {
	resp, err := c.call(ctx, &request{op: opAddPage, page: req})
	return resp.add, err
}

// Checkpoint seals the open document.
func (c *Client) Checkpoint(ctx context.Context) (CheckpointResult, error) {
	resp, err := c.call(ctx, &request{op: opCheckpoint})
	return resp.checkpoint, err
}

// Finalize produces the assembled document.
func (c *Client) Finalize(ctx context.Context, resetAfter bool) (*Payload, error) {
	resp, err := c.call(ctx, &request{op: opFinalize, reset: resetAfter})
	return resp.payload, err
}

func (c *Client) call(ctx context.Context, req *request) (response, error) {
	h := c.host
	req.reply = make(chan response, 1)

	err := retry.Do(
		func() error { return h.send(ctx, req) },
		retry.Context(ctx),
		retry.Attempts(2),
		retry.Delay(100*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return errors.Is(err, ErrMailboxBusy) }),
	)
	if err != nil {
		return response{}, fmt.Errorf("%w: %s: %v", ErrTransport, req.op, err)
	}

	timer := time.NewTimer(h.callTimeout)
	defer timer.Stop()

	select {
	case resp := <-req.reply:
		return resp, resp.err
	case <-timer.C:
		return response{}, fmt.Errorf("%w: %s timed out after %s", ErrTransport, req.op, h.callTimeout)
	case <-h.stopped:
		return response{}, fmt.Errorf("%w: %s: host stopped", ErrTransport, req.op)
	case <-ctx.Done():
		return response{}, fmt.Errorf("%w: %s: %v", ErrTransport, req.op, ctx.Err())
	}
}

func (h *Host) send(ctx context.Context, req *request) error {
	timer := time.NewTimer(h.sendWait)
	defer timer.Stop()

	select {
	case h.queue <- req:
		return nil
	case <-h.stopped:
		return retry.Unrecoverable(errors.New("host stopped"))
	case <-ctx.Done():
		return retry.Unrecoverable(ctx.Err())
	case <-timer.C:
		return ErrMailboxBusy
	}
}
