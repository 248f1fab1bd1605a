package loopdetect

import "fmt"

// InterventionKind is the action the executor takes when a loop fires.
type InterventionKind string

const (
	// InterventionNudge raises sampling temperature slightly.
	InterventionNudge InterventionKind = "nudge"

	// InterventionReflect raises temperature further and injects a
	// reflection instruction into the next prompt.
	InterventionReflect InterventionKind = "reflect"

	// InterventionAskUser escalates to a human.
	InterventionAskUser InterventionKind = "ask_user"
)

// Decision tells the step executor how to react to a detected loop.
type Decision struct {
	Kind        InterventionKind
	Temperature float64
	// Reflection is non-empty for reflect and ask_user decisions; it
	// is injected verbatim into the next oracle prompt.
	Reflection string
}

// skipWindow is how many subsequent loop detections are suppressed
// after a human has already intervened on this step.
const skipWindow = 5

// Manager tracks loop interventions within a single step and applies
// the escalation ladder: nudge, then reflect, then ask a human. State
// resets when a new step begins.
type Manager struct {
	loopCount  int
	skipsLeft  int
	userActive bool
}

// NewManager returns a manager with no intervention history.
func NewManager() *Manager {
	return &Manager{}
}

// Reset clears all state. Called at the start of every step.
func (m *Manager) Reset() {
	m.loopCount = 0
	m.skipsLeft = 0
	m.userActive = false
}

// ShouldSkip reports whether this detection falls inside the window
// after a user intervention and consumes one slot of the window.
func (m *Manager) ShouldSkip() bool {
	if m.skipsLeft > 0 {
		m.skipsLeft--
		if m.skipsLeft == 0 {
			m.userActive = false
		}
		return true
	}
	return false
}

// Decide registers a detected loop and returns the escalation action
// for it. The caller is expected to have consulted ShouldSkip first.
func (m *Manager) Decide(result Result) Decision {
	m.loopCount++

	reflection := fmt.Sprintf(
		"The previous commands appear stuck in a loop (%s, confidence %.2f): %s. "+
			"Stop repeating the same approach. Reconsider the situation and try a materially different strategy.",
		result.Type, result.Confidence, result.Evidence,
	)

	switch m.loopCount {
	case 1:
		return Decision{Kind: InterventionNudge, Temperature: 0.3}
	case 2:
		return Decision{Kind: InterventionReflect, Temperature: 0.5, Reflection: reflection}
	default:
		return Decision{Kind: InterventionAskUser, Temperature: 0.7, Reflection: reflection}
	}
}

// ActivateUserMode opens the skip window after a human has given
// guidance, so the detector does not immediately re-escalate while the
// guidance plays out.
func (m *Manager) ActivateUserMode() {
	m.userActive = true
	m.skipsLeft = skipWindow
}

// UserModeActive reports whether a human intervention window is open.
func (m *Manager) UserModeActive() bool {
	return m.userActive
}

// LoopCount returns the number of loops registered for this step.
func (m *Manager) LoopCount() int {
	return m.loopCount
}
