package upload

import (
	"sync"

	"github.com/helixa-health/scribe/pkg/domain/types"
)

// State is a snapshot of upload progress suitable for display. Progress and
// Message are derived from the phase table; ErrorMessage is set only while in
// the error phase.
type State struct {
	Phase        types.Phase
	Progress     int
	Message      string
	ErrorMessage string
	IsUploading  bool
}

// Tracker projects pipeline phase events into a displayable state. It is safe
// for concurrent use; the pipeline writes, the UI loop reads.
type Tracker struct {
	mu       sync.Mutex
	phase    types.Phase
	errorMsg string
}

// NewTracker returns a tracker in the idle state
func NewTracker() *Tracker {
	return &Tracker{phase: types.PhaseIdle}
}

// OnPhase records a phase transition. Once the tracker latched an error, only
// a reset or a fresh converting phase clears it; stray non-error events from a
// superseded attempt cannot mask the failure.
func (t *Tracker) OnPhase(phase types.Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.phase == types.PhaseError && phase != types.PhaseConverting {
		return
	}
	t.phase = phase
	if phase == types.PhaseConverting {
		t.errorMsg = ""
	}
}

// Fail moves the tracker into the error phase with a message
func (t *Tracker) Fail(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phase = types.PhaseError
	t.errorMsg = message
}

// Reset returns the tracker to idle. Cancellation and reset are the same
// operation: a cancelled upload leaves no residue.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phase = types.PhaseIdle
	t.errorMsg = ""
}

// Cancel is an alias of Reset kept for call-site clarity
func (t *Tracker) Cancel() {
	t.Reset()
}

// State returns the current projection
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := State{
		Phase:       t.phase,
		Progress:    t.phase.Progress(),
		Message:     t.phase.Label(),
		IsUploading: t.phase.InFlight(),
	}
	if t.phase == types.PhaseError {
		s.ErrorMessage = t.errorMsg
	}
	return s
}
