// Package interact routes questions from the agent to whoever is
// supervising the run. The executor does not care whether answers come
// from a terminal, a callback, or a policy that always picks the
// default; it only sees the Handler interface.
package interact

// Level grades a notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Request is one question for the supervisor. Options are optional;
// when present the handler should offer them as a numbered menu.
// Default is used when the supervisor declines to choose.
type Request struct {
	Question string
	Context  string

	// Category tags what prompted the question ("oracle", "loop",
	// "failure") so non-interactive handlers can route by kind.
	Category string

	Options []string
	Default string
}

// Response carries the supervisor's answer. Cancelled means no answer
// could be obtained (input closed, handler shut down); the caller
// should treat it as an abort signal, not as a choice.
type Response struct {
	Answer string

	// SelectedOption is the 1-based index into Request.Options when the
	// answer picked one, 0 otherwise.
	SelectedOption int

	// IsCustom marks free-form answers that match no offered option.
	IsCustom bool

	Cancelled bool
}

// Handler answers questions and surfaces notifications during a run.
type Handler interface {
	Ask(req Request) Response
	Notify(level Level, message string)
}
