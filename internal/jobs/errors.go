package jobs

import (
	"errors"
	"fmt"

	"github.com/jackzampolin/pagecap/internal/assembler"
)

var (
	// ErrAlreadyRunning is returned when START arrives while a run is active.
	ErrAlreadyRunning = errors.New("already capturing")
	// ErrNotRunning is returned when STOP arrives while idle.
	ErrNotRunning = errors.New("not capturing")
	// ErrInvalidTransition is returned for a state change the machine does not allow.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrControllerStopped is returned when the controller loop has exited.
	ErrControllerStopped = errors.New("controller stopped")

	// ErrRecoveryExhausted is returned when the recovery ladder has no steps left.
	ErrRecoveryExhausted = errors.New("recovery exhausted")
	// ErrSplitRecommended is the ladder's terminal error when split mode is off.
	ErrSplitRecommended = fmt.Errorf("%w: split mode recommended", ErrRecoveryExhausted)
	// ErrSplitInsufficient is the ladder's terminal error when split mode is already on.
	ErrSplitInsufficient = fmt.Errorf("%w: split mode already enabled", ErrRecoveryExhausted)
)

// FatalError ends a run. Err is the classified cause; Cause is the message
// shown to the user.
type FatalError struct {
	Err   error
	Cause string
}

func (e *FatalError) Error() string {
	if e.Err == nil {
		return e.Cause
	}
	return e.Cause + ": " + e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

func fatal(err error, format string, args ...any) *FatalError {
	return &FatalError{Err: err, Cause: fmt.Sprintf(format, args...)}
}

// recoverable reports whether err may be retried through the recovery ladder.
func recoverable(err error) bool {
	return errors.Is(err, assembler.ErrEncode) ||
		errors.Is(err, assembler.ErrEmbed) ||
		errors.Is(err, assembler.ErrFinalize) ||
		errors.Is(err, assembler.ErrFault)
}
