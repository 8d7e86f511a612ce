// Package assembler builds a PDF incrementally from captured frames.
//
// The Assembler type holds all document state and is not safe for concurrent
// use. Host wraps it in a single goroutine and Client talks to that goroutine
// with request/response round-trips.
package assembler

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackzampolin/pagecap/internal/imageprep"
)

// Config defaults and bounds.
const (
	DefaultQuality         = 82
	DefaultMaxLongEdge     = 2200
	DefaultCheckpointPages = 20

	MinQuality     = 10
	MaxQuality     = 100
	MinMaxLongEdge = 800

	PDFMimeType = "application/pdf"
)

var (
	// ErrEncode is returned when a frame cannot be preprocessed.
	ErrEncode = errors.New("page encode failed")
	// ErrEmbed is returned when an artifact cannot be embedded as a page.
	ErrEmbed = errors.New("page embed failed")
	// ErrFinalize is returned when sealed chunks cannot be serialized or merged.
	ErrFinalize = errors.New("finalize failed")
)

// Config is the per-job assembly configuration.
type Config struct {
	Format          imageprep.Format `json:"capture_format"`
	Quality         int              `json:"jpeg_quality"`
	MaxLongEdge     int              `json:"max_long_edge"`
	CheckpointPages int              `json:"checkpoint_pages"`
}

// DefaultConfig returns the configuration used when a job sets nothing.
func DefaultConfig() Config {
	return Config{
		Format:          imageprep.FormatJPEG,
		Quality:         DefaultQuality,
		MaxLongEdge:     DefaultMaxLongEdge,
		CheckpointPages: DefaultCheckpointPages,
	}
}

// Normalize fills zero fields with defaults, then clamps. It serves
// InitJob, where a zero Config means "use the defaults".
func (c Config) Normalize() Config {
	out := c
	if out.Quality == 0 {
		out.Quality = DefaultQuality
	}
	if out.MaxLongEdge == 0 {
		out.MaxLongEdge = DefaultMaxLongEdge
	}
	if out.CheckpointPages == 0 {
		out.CheckpointPages = DefaultCheckpointPages
	}
	return out.Clamp()
}

// Clamp forces every field into range without filling defaults, so an
// explicit 0 becomes the lower bound: quality 10, long edge 800px,
// checkpoint every page. An unknown format becomes JPEG.
func (c Config) Clamp() Config {
	out := c
	if f, ok := imageprep.ParseFormat(string(out.Format)); ok {
		out.Format = f
	} else {
		out.Format = imageprep.FormatJPEG
	}
	out.Quality = min(max(out.Quality, MinQuality), MaxQuality)
	out.MaxLongEdge = max(out.MaxLongEdge, MinMaxLongEdge)
	out.CheckpointPages = max(out.CheckpointPages, 1)
	return out
}

// Partial carries the subset of Config fields an update sets.
type Partial struct {
	Format          *imageprep.Format `json:"capture_format,omitempty"`
	Quality         *int              `json:"jpeg_quality,omitempty"`
	MaxLongEdge     *int              `json:"max_long_edge,omitempty"`
	CheckpointPages *int              `json:"checkpoint_pages,omitempty"`
}

// Apply merges the set fields of p over c and clamps the result. Fields p
// sets are explicit, so zeros are clamped rather than defaulted.
func (p Partial) Apply(c Config) Config {
	if p.Format != nil {
		c.Format = *p.Format
	}
	if p.Quality != nil {
		c.Quality = *p.Quality
	}
	if p.MaxLongEdge != nil {
		c.MaxLongEdge = *p.MaxLongEdge
	}
	if p.CheckpointPages != nil {
		c.CheckpointPages = *p.CheckpointPages
	}
	return c.Clamp()
}

// PartialFrom returns a Partial that sets every field of c.
func PartialFrom(c Config) Partial {
	return Partial{
		Format:          &c.Format,
		Quality:         &c.Quality,
		MaxLongEdge:     &c.MaxLongEdge,
		CheckpointPages: &c.CheckpointPages,
	}
}

// AddResult is returned from a successful AddPage.
type AddResult struct {
	Seq            int   `json:"seq"`
	ProcessingMs   int64 `json:"processing_ms"`
	EstimatedBytes int   `json:"estimated_bytes"`
	Width          int   `json:"width"`
	Height         int   `json:"height"`
}

// CheckpointResult is returned from Checkpoint.
type CheckpointResult struct {
	CheckpointCount int `json:"checkpoint_count"`
	EstimatedBytes  int `json:"estimated_bytes"`
}

// Payload is a finalized document in transportable form.
type Payload struct {
	// DataURI is a base64 data URI of the PDF. Empty when Empty is true.
	DataURI string `json:"data_uri,omitempty"`
	Bytes   int    `json:"bytes"`
	Pages   int    `json:"pages"`
	Empty   bool   `json:"empty"`
}

// PDF decodes the payload back to raw PDF bytes.
func (p *Payload) PDF() ([]byte, error) {
	if p.Empty {
		return nil, nil
	}
	_, data, err := imageprep.DecodeDataURI(p.DataURI)
	return data, err
}

// Assembler is the incremental document state machine.
type Assembler struct {
	cfg    Config
	logger *slog.Logger

	open           *Document
	chunks         [][]byte
	pages          int
	estimatedBytes int

	emit func(Event)
	now  func() time.Time
}

// New returns an Assembler with default configuration and an empty document.
func New(logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		cfg:    DefaultConfig(),
		logger: logger,
		open:   NewDocument(),
		emit:   func(Event) {},
		now:    time.Now,
	}
}

// Config returns the active configuration.
func (a *Assembler) Config() Config {
	return a.cfg
}

// Pages returns the number of pages added since the last reset.
func (a *Assembler) Pages() int {
	return a.pages
}

// Checkpoints returns the number of sealed chunks.
func (a *Assembler) Checkpoints() int {
	return len(a.chunks)
}

// EstimatedBytes returns the running output size estimate.
func (a *Assembler) EstimatedBytes() int {
	return a.estimatedBytes
}

// InitJob clears all state, opens a fresh document and applies cfg.
func (a *Assembler) InitJob(cfg Config) {
	a.reset()
	a.cfg = cfg.Normalize()
	a.logger.Debug("job initialized",
		"format", a.cfg.Format,
		"quality", a.cfg.Quality,
		"max_long_edge", a.cfg.MaxLongEdge,
		"checkpoint_pages", a.cfg.CheckpointPages)
	a.emit(Event{Kind: EventStatus, Stage: "init"})
}

// UpdateConfig merges the set fields of p into the active configuration.
// The change applies from the next AddPage.
func (a *Assembler) UpdateConfig(p Partial) Config {
	a.cfg = p.Apply(a.cfg)
	a.emit(Event{Kind: EventStatus, Stage: "config"})
	return a.cfg
}

// AddPage preprocesses frame and appends it as the last page of the open document.
// formatHint names the encoding of the captured frame. On failure the open
// document and counters are left unchanged.
func (a *Assembler) AddPage(frame string, formatHint imageprep.Format, seq int) (AddResult, error) {
	start := a.now()

	art, err := imageprep.Preprocess(frame, imageprep.Options{
		Format:      a.cfg.Format,
		Quality:     a.cfg.Quality,
		MaxLongEdge: a.cfg.MaxLongEdge,
	})
	if err != nil {
		err = fmt.Errorf("%w: page %d: %v", ErrEncode, seq, err)
		a.emit(Event{Kind: EventError, Stage: "add_page", Err: err.Error()})
		return AddResult{}, err
	}

	if err := a.open.AddImagePage(art); err != nil {
		err = fmt.Errorf("%w: page %d: %v", ErrEmbed, seq, err)
		a.emit(Event{Kind: EventError, Stage: "add_page", Err: err.Error()})
		return AddResult{}, err
	}

	a.pages++
	a.estimatedBytes += art.ApproxBytes

	res := AddResult{
		Seq:            seq,
		ProcessingMs:   a.now().Sub(start).Milliseconds(),
		EstimatedBytes: a.estimatedBytes,
		Width:          art.Width,
		Height:         art.Height,
	}
	a.logger.Debug("page added",
		"seq", seq,
		"source_format", formatHint,
		"format", art.Format,
		"width", art.Width,
		"height", art.Height,
		"processing_ms", res.ProcessingMs)
	a.emit(Event{Kind: EventStatus, Stage: "add_page", ProcessingMs: res.ProcessingMs, EstimatedBytes: res.EstimatedBytes})
	return res, nil
}

// Checkpoint seals the open document into a chunk and opens a fresh one.
// It is a no-op when the open document has no pages.
func (a *Assembler) Checkpoint() (CheckpointResult, error) {
	if a.open.PageCount() == 0 {
		return CheckpointResult{CheckpointCount: len(a.chunks), EstimatedBytes: a.estimatedBytes}, nil
	}

	data, err := a.open.Serialize()
	if err != nil {
		err = fmt.Errorf("%w: checkpoint: %v", ErrFinalize, err)
		a.emit(Event{Kind: EventError, Stage: "checkpoint", Err: err.Error()})
		return CheckpointResult{}, err
	}

	a.chunks = append(a.chunks, data)
	a.open = NewDocument()
	a.estimatedBytes = 0
	for _, c := range a.chunks {
		a.estimatedBytes += len(c)
	}

	a.logger.Debug("checkpoint sealed", "checkpoints", len(a.chunks), "estimated_bytes", a.estimatedBytes)
	a.emit(Event{Kind: EventStatus, Stage: "checkpoint", EstimatedBytes: a.estimatedBytes})
	return CheckpointResult{CheckpointCount: len(a.chunks), EstimatedBytes: a.estimatedBytes}, nil
}

// Finalize merges every sealed chunk and the open document, in order, into one
// PDF. When resetAfter is true all state is cleared for the next part; otherwise
// state is kept so Finalize may be called again.
func (a *Assembler) Finalize(resetAfter bool) (*Payload, error) {
	parts := make([][]byte, 0, len(a.chunks)+1)
	parts = append(parts, a.chunks...)
	if a.open.PageCount() > 0 {
		data, err := a.open.Serialize()
		if err != nil {
			err = fmt.Errorf("%w: %v", ErrFinalize, err)
			a.emit(Event{Kind: EventError, Stage: "finalize", Err: err.Error()})
			return nil, err
		}
		parts = append(parts, data)
	}

	var pdf []byte
	switch len(parts) {
	case 0:
		if resetAfter {
			a.reset()
		}
		return &Payload{Empty: true}, nil
	case 1:
		pdf = parts[0]
	default:
		merged, err := MergePDFs(parts)
		if err != nil {
			err = fmt.Errorf("%w: %v", ErrFinalize, err)
			a.emit(Event{Kind: EventError, Stage: "finalize", Err: err.Error()})
			return nil, err
		}
		pdf = merged
	}

	payload := &Payload{
		DataURI: "data:" + PDFMimeType + ";base64," + base64.StdEncoding.EncodeToString(pdf),
		Bytes:   len(pdf),
		Pages:   a.pages,
	}
	a.logger.Debug("document finalized", "pages", a.pages, "bytes", len(pdf), "chunks", len(a.chunks), "reset", resetAfter)

	if resetAfter {
		a.reset()
	}
	a.emit(Event{Kind: EventStatus, Stage: "finalize", EstimatedBytes: payload.Bytes})
	return payload, nil
}

func (a *Assembler) reset() {
	a.open = NewDocument()
	a.chunks = nil
	a.pages = 0
	a.estimatedBytes = 0
}
