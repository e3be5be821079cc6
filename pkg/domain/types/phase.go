package types

// Phase represents a discrete stage of the dictation upload pipeline. The
// transcribing/generating boundary is assigned client-side around the single
// request-response; the server does not report sub-phase progress.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseConverting   Phase = "converting"
	PhaseTranscribing Phase = "transcribing"
	PhaseGenerating   Phase = "generating"
	PhaseComplete     Phase = "complete"
	PhaseError        Phase = "error"
)

// AllPhases returns all valid phases in pipeline order
func AllPhases() []Phase {
	return []Phase{
		PhaseIdle,
		PhaseConverting,
		PhaseTranscribing,
		PhaseGenerating,
		PhaseComplete,
		PhaseError,
	}
}

// IsValid checks if the phase is valid
func (p Phase) IsValid() bool {
	switch p {
	case PhaseIdle,
		PhaseConverting,
		PhaseTranscribing,
		PhaseGenerating,
		PhaseComplete,
		PhaseError:
		return true
	default:
		return false
	}
}

// InFlight reports whether an upload is in progress at this phase
func (p Phase) InFlight() bool {
	switch p {
	case PhaseIdle, PhaseComplete, PhaseError:
		return false
	default:
		return true
	}
}

// Progress returns the display progress percentage for the phase
func (p Phase) Progress() int {
	switch p {
	case PhaseConverting:
		return 10
	case PhaseTranscribing:
		return 30
	case PhaseGenerating:
		return 60
	case PhaseComplete:
		return 100
	default:
		return 0
	}
}

// Label returns the user-facing display text for the phase
func (p Phase) Label() string {
	switch p {
	case PhaseConverting:
		return "Preparing audio..."
	case PhaseTranscribing:
		return "Transcribing speech..."
	case PhaseGenerating:
		return "Generating note..."
	case PhaseComplete:
		return "Complete"
	case PhaseError:
		return "Error occurred"
	default:
		return ""
	}
}

// String returns the string representation of the phase
func (p Phase) String() string {
	return string(p)
}
