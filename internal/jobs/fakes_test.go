package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackzampolin/pagecap/internal/assembler"
	"github.com/jackzampolin/pagecap/internal/imageprep"
)

// fakeSource returns a fixed frame and calls onCapture with the 0-based
// capture index before returning.
type fakeSource struct {
	mu        sync.Mutex
	calls     int
	err       error
	onCapture func(i int)
}

func (f *fakeSource) CaptureFrame(ctx context.Context) (Frame, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	hook := f.onCapture
	f.mu.Unlock()

	if hook != nil {
		hook(i)
	}
	if f.err != nil {
		return Frame{}, f.err
	}
	return Frame{DataURI: fmt.Sprintf("frame-%d", i), Format: imageprep.FormatPNG}, nil
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeTurner struct {
	mu    sync.Mutex
	turns int
	err   error
}

func (f *fakeTurner) Turn(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns++
	return "key ArrowLeft", f.err
}

func (f *fakeTurner) Turns() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.turns
}

type savedFile struct {
	name string
	pdf  string
}

type fakeSink struct {
	mu    sync.Mutex
	saved []savedFile
	err   error
}

func (f *fakeSink) SavePDF(ctx context.Context, name string, pdf []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.saved = append(f.saved, savedFile{name: name, pdf: string(pdf)})
	return "/downloads/" + name, nil
}

func (f *fakeSink) Saved() []savedFile {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]savedFile(nil), f.saved...)
}

// fakeAssembler counts pages per part without building real documents.
// failAdd maps a 1-based AddPage call number to the error that call returns.
type fakeAssembler struct {
	mu sync.Mutex

	cfg         assembler.Config
	pages       int
	checkpoints int

	addCalls      int
	finalizeCalls int
	failAdd       map[int]error
	failFinalize  map[int]error
	updates       []assembler.Config
	onInit        func()
	processingMs  int64
}

func (f *fakeAssembler) InitJob(ctx context.Context, cfg assembler.Config) (assembler.Config, error) {
	f.mu.Lock()
	f.cfg = cfg.Normalize()
	f.pages, f.checkpoints = 0, 0
	hook := f.onInit
	out := f.cfg
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return out, nil
}

func (f *fakeAssembler) UpdateConfig(ctx context.Context, p assembler.Partial) (assembler.Config, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg = p.Apply(f.cfg)
	f.updates = append(f.updates, f.cfg)
	return f.cfg, nil
}

func (f *fakeAssembler) AddPage(ctx context.Context, req assembler.AddPageRequest) (assembler.AddResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addCalls++
	if err := f.failAdd[f.addCalls]; err != nil {
		return assembler.AddResult{}, err
	}
	f.pages++
	return assembler.AddResult{Seq: req.Seq, ProcessingMs: f.processingMs, EstimatedBytes: f.pages * 100}, nil
}

func (f *fakeAssembler) Checkpoint(ctx context.Context) (assembler.CheckpointResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pages > 0 {
		f.checkpoints++
	}
	return assembler.CheckpointResult{CheckpointCount: f.checkpoints, EstimatedBytes: f.pages * 90}, nil
}

func (f *fakeAssembler) Finalize(ctx context.Context, resetAfter bool) (*assembler.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalizeCalls++
	if err := f.failFinalize[f.finalizeCalls]; err != nil {
		return nil, err
	}
	n := f.pages
	if resetAfter {
		f.pages, f.checkpoints = 0, 0
	}
	if n == 0 {
		return &assembler.Payload{Empty: true}, nil
	}
	body := []byte(fmt.Sprintf("pdf with %d pages", n))
	return &assembler.Payload{
		DataURI: imageprep.EncodeDataURI(assembler.PDFMimeType, body),
		Bytes:   len(body),
		Pages:   n,
	}, nil
}

func (f *fakeAssembler) snapshot() (adds, finalizes int, updates []assembler.Config) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addCalls, f.finalizeCalls, append([]assembler.Config(nil), f.updates...)
}

type recordingObserver struct {
	mu       sync.Mutex
	statuses []string
	metrics  []Metrics
}

func (r *recordingObserver) UpdateStatus(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, text)
}

func (r *recordingObserver) UpdateMetrics(m Metrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = append(r.metrics, m)
}

func (r *recordingObserver) Statuses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.statuses...)
}

func (r *recordingObserver) Metrics() []Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Metrics(nil), r.metrics...)
}

var errSimulatedEncode = fmt.Errorf("%w: simulated", assembler.ErrEncode)

var errSimulatedTransport = errors.Join(assembler.ErrTransport, errors.New("simulated hang"))
