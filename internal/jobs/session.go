package jobs

import (
	"fmt"
	"slices"
	"time"

	"github.com/jackzampolin/pagecap/internal/assembler"
)

// State is the controller's run state.
type State string

const (
	StateIdle       State = "idle"
	StateRunning    State = "running"
	StateFinalizing State = "finalizing"
	StateDone       State = "done"
	StateError      State = "error"
)

// Active reports whether a run owns the controller in this state.
func (s State) Active() bool {
	return s == StateRunning || s == StateFinalizing
}

var transitions = map[State][]State{
	StateIdle:       {StateRunning},
	StateRunning:    {StateFinalizing, StateDone, StateError},
	StateFinalizing: {StateRunning, StateDone, StateError},
	StateDone:       {StateIdle},
	StateError:      {StateIdle},
}

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to State) bool {
	return slices.Contains(transitions[from], to)
}

// Session is the state of one run. It is owned by the controller goroutine.
type Session struct {
	RunID         string    `json:"run_id,omitempty"`
	State         State     `json:"state"`
	StopRequested bool      `json:"stop_requested"`
	StartedAt     time.Time `json:"started_at,omitzero"`

	TotalPages           int `json:"total_pages"`
	CapturedPages        int `json:"captured_pages"`
	PartIndex            int `json:"part_index"`
	PagesInPart          int `json:"pages_in_part"`
	PagesSinceCheckpoint int `json:"pages_since_checkpoint"`
	CheckpointCount      int `json:"checkpoint_count"`
	FallbackStep         int `json:"fallback_step"`
	CurrentWaitMs        int `json:"current_wait_ms"`

	LastProcessingMs int64 `json:"last_processing_ms"`
	EstimatedBytes   int   `json:"estimated_bytes"`

	Settings Settings         `json:"settings"`
	Config   assembler.Config `json:"config"`

	Delivered []string `json:"delivered,omitempty"`
	LastError string   `json:"last_error,omitempty"`
	Err       error    `json:"-"`
}

// NewSession returns an idle session.
func NewSession() *Session {
	return &Session{State: StateIdle, PartIndex: 1}
}

// Begin moves an idle session to running with fresh counters.
func (s *Session) Begin(runID string, settings Settings, now time.Time) error {
	if s.State != StateIdle {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, s.State)
	}
	settings = settings.Normalize()
	*s = Session{
		RunID:         runID,
		State:         StateRunning,
		StartedAt:     now,
		TotalPages:    settings.Pages,
		PartIndex:     1,
		CurrentWaitMs: settings.WaitMs,
		Settings:      settings,
		Config:        settings.AssemblerConfig(),
	}
	return nil
}

// RequestStop sets the stop flag. It fails unless a run is active.
func (s *Session) RequestStop() error {
	if !s.State.Active() {
		return ErrNotRunning
	}
	s.StopRequested = true
	return nil
}

// Transition moves the session to the given state if the edge is allowed.
func (s *Session) Transition(to State) error {
	if !CanTransition(s.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.State, to)
	}
	s.State = to
	return nil
}

// Reset forces the session back to idle. Counters are kept for inspection
// until the next Begin.
func (s *Session) Reset() {
	s.State = StateIdle
	s.StopRequested = false
}

// Snapshot returns a copy safe to hand to other goroutines.
func (s *Session) Snapshot() Session {
	out := *s
	out.Delivered = slices.Clone(s.Delivered)
	return out
}
