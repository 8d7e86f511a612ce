package jobs

import (
	"log/slog"
	"sync"
	"time"
)

// Metrics is the structured progress report pushed after each page.
type Metrics struct {
	RunID            string `json:"run_id"`
	State            State  `json:"state"`
	CapturedPages    int    `json:"captured_pages"`
	TotalPages       int    `json:"total_pages"`
	PartIndex        int    `json:"part_index"`
	PagesInPart      int    `json:"pages_in_part"`
	CheckpointCount  int    `json:"checkpoint_count"`
	EstimatedBytes   int    `json:"estimated_bytes"`
	LastProcessingMs int64  `json:"last_processing_ms"`
	CurrentWaitMs    int    `json:"current_wait_ms"`
	FallbackStep     int    `json:"fallback_step"`
	Format           string `json:"format"`
	Quality          int    `json:"quality"`
	MaxLongEdge      int    `json:"max_long_edge"`
}

func metricsFor(s *Session) Metrics {
	return Metrics{
		RunID:            s.RunID,
		State:            s.State,
		CapturedPages:    s.CapturedPages,
		TotalPages:       s.TotalPages,
		PartIndex:        s.PartIndex,
		PagesInPart:      s.PagesInPart,
		CheckpointCount:  s.CheckpointCount,
		EstimatedBytes:   s.EstimatedBytes,
		LastProcessingMs: s.LastProcessingMs,
		CurrentWaitMs:    s.CurrentWaitMs,
		FallbackStep:     s.FallbackStep,
		Format:           string(s.Config.Format),
		Quality:          s.Config.Quality,
		MaxLongEdge:      s.Config.MaxLongEdge,
	}
}

// Observer receives best-effort progress notifications.
// Implementations must not block.
type Observer interface {
	UpdateStatus(text string)
	UpdateMetrics(m Metrics)
}

type nopObserver struct{}

func (nopObserver) UpdateStatus(string)   {}
func (nopObserver) UpdateMetrics(Metrics) {}

// Update is one notification fanned out by a Broadcaster.
type Update struct {
	Kind    string    `json:"kind"` // "status" or "metrics"
	Status  string    `json:"status,omitempty"`
	Metrics *Metrics  `json:"metrics,omitempty"`
	Time    time.Time `json:"time"`
}

// Broadcaster is an Observer that fans updates out to any number of
// subscribers. Slow subscribers miss updates.
type Broadcaster struct {
	logger *slog.Logger

	mu          sync.RWMutex
	subs        map[int]chan Update
	next        int
	lastStatus  string
	lastMetrics Metrics
}

// NewBroadcaster creates a Broadcaster with no subscribers.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		logger: logger,
		subs:   make(map[int]chan Update),
	}
}

// Subscribe registers a subscriber. Call the returned func to unsubscribe.
func (b *Broadcaster) Subscribe(buffer int) (<-chan Update, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Update, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Last returns the most recent status text and metrics.
func (b *Broadcaster) Last() (string, Metrics) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastStatus, b.lastMetrics
}

// UpdateStatus implements Observer.
func (b *Broadcaster) UpdateStatus(text string) {
	b.mu.Lock()
	b.lastStatus = text
	b.mu.Unlock()
	b.publish(Update{Kind: "status", Status: text, Time: time.Now()})
}

// UpdateMetrics implements Observer.
func (b *Broadcaster) UpdateMetrics(m Metrics) {
	b.mu.Lock()
	b.lastMetrics = m
	b.mu.Unlock()
	b.publish(Update{Kind: "metrics", Metrics: &m, Time: time.Now()})
}

func (b *Broadcaster) publish(u Update) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- u:
		default:
			b.logger.Debug("subscriber dropped update", "subscriber", id, "kind", u.Kind)
		}
	}
}
