package interact

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	questionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2196F3"))
	contextStyle  = lipgloss.NewStyle().Faint(true)
	optionStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A"))
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107"))
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935"))
)

// ConsoleHandler asks questions on a terminal. Options are shown as a
// numbered menu with 0 reserved for a free-form answer; an empty line
// takes the default.
type ConsoleHandler struct {
	in  *bufio.Reader
	out io.Writer
}

// NewConsoleHandler builds a handler reading answers from in and
// printing prompts to out.
func NewConsoleHandler(in io.Reader, out io.Writer) *ConsoleHandler {
	return &ConsoleHandler{in: bufio.NewReader(in), out: out}
}

// Ask prints the question and blocks until a line of input arrives.
// EOF on the input yields a cancelled response.
func (h *ConsoleHandler) Ask(req Request) Response {
	fmt.Fprintln(h.out)
	fmt.Fprintln(h.out, questionStyle.Render(req.Question))
	if req.Context != "" {
		fmt.Fprintln(h.out, contextStyle.Render(req.Context))
	}
	for i, opt := range req.Options {
		fmt.Fprintln(h.out, optionStyle.Render(fmt.Sprintf("  %d) %s", i+1, opt)))
	}
	if len(req.Options) > 0 {
		fmt.Fprintln(h.out, optionStyle.Render("  0) other (type your own answer)"))
	}
	if req.Default != "" {
		fmt.Fprintf(h.out, "> [%s] ", req.Default)
	} else {
		fmt.Fprint(h.out, "> ")
	}

	line, err := h.in.ReadString('\n')
	if err != nil && line == "" {
		return Response{Cancelled: true}
	}
	answer := strings.TrimSpace(line)

	if answer == "" {
		if req.Default != "" {
			return classify(req, req.Default)
		}
		return Response{Cancelled: true}
	}

	if len(req.Options) > 0 {
		if n, convErr := strconv.Atoi(answer); convErr == nil {
			if n >= 1 && n <= len(req.Options) {
				return Response{Answer: req.Options[n-1], SelectedOption: n}
			}
			if n == 0 {
				custom, customErr := h.in.ReadString('\n')
				custom = strings.TrimSpace(custom)
				if customErr != nil && custom == "" {
					return Response{Cancelled: true}
				}
				return Response{Answer: custom, IsCustom: true}
			}
		}
	}
	return classify(req, answer)
}

// classify matches a typed or defaulted answer against the offered
// options so callers can distinguish menu picks from free text.
func classify(req Request, answer string) Response {
	for i, opt := range req.Options {
		if strings.EqualFold(answer, opt) {
			return Response{Answer: opt, SelectedOption: i + 1}
		}
	}
	return Response{Answer: answer, IsCustom: len(req.Options) > 0}
}

// Notify prints a one-line status message styled by level.
func (h *ConsoleHandler) Notify(level Level, message string) {
	switch level {
	case LevelWarning:
		fmt.Fprintln(h.out, warnStyle.Render("! "+message))
	case LevelError:
		fmt.Fprintln(h.out, errStyle.Render("x "+message))
	default:
		fmt.Fprintln(h.out, message)
	}
}
