package extract

import (
	"fmt"
	"regexp"
	"strings"
)

// ErrorType labels a failed command so the oracle and the knowledge
// store can match prior fixes without reparsing raw output.
type ErrorType string

const (
	ErrPermission   ErrorType = "permission"
	ErrNotFound     ErrorType = "not_found"
	ErrTimeout      ErrorType = "timeout"
	ErrConnection   ErrorType = "connection"
	ErrSyntax       ErrorType = "syntax"
	ErrMemory       ErrorType = "memory"
	ErrDisk         ErrorType = "disk"
	ErrPortConflict ErrorType = "port_conflict"
	ErrUnknown      ErrorType = "unknown"
)

// errorTypeRules are checked in order; more specific patterns come
// first so "permission denied while connecting" reads as permission.
var errorTypeRules = []struct {
	errType ErrorType
	pattern *regexp.Regexp
}{
	{ErrPermission, regexp.MustCompile(`(?i)permission denied|EACCES|operation not permitted|EPERM|access is denied`)},
	{ErrNotFound, regexp.MustCompile(`(?i)command not found|no such file or directory|ENOENT|not recognized as|cannot find module|package .* not found|unable to locate package`)},
	{ErrPortConflict, regexp.MustCompile(`(?i)address already in use|EADDRINUSE|port is already|bind.*failed`)},
	{ErrTimeout, regexp.MustCompile(`(?i)timed? ?out|ETIMEDOUT|deadline exceeded|IDLE_TIMEOUT|TOTAL_TIMEOUT`)},
	{ErrConnection, regexp.MustCompile(`(?i)connection refused|ECONNREFUSED|connection reset|could not resolve host|network is unreachable|no route to host`)},
	{ErrSyntax, regexp.MustCompile(`(?i)syntax error|unexpected token|parse error|invalid syntax`)},
	{ErrMemory, regexp.MustCompile(`(?i)out of memory|cannot allocate memory|ENOMEM|killed.*oom|oom-?kill`)},
	{ErrDisk, regexp.MustCompile(`(?i)no space left on device|ENOSPC|disk quota exceeded|read-only file system`)},
}

// ClassifyError labels error text; unknown when nothing matches.
func ClassifyError(text string) ErrorType {
	for _, rule := range errorTypeRules {
		if rule.pattern.MatchString(text) {
			return rule.errType
		}
	}
	return ErrUnknown
}

// noiseLine matches lines that add nothing to an error report.
var noiseLine = regexp.MustCompile(`^\s*$|^[-=]{3,}\s*$|^\s*(DEBUG|TRACE)[:\s]`)

// extractError builds the failure view. Both ends of the error output
// survive compression: the first lines usually name the operation, the
// last ones carry the actual error.
func (e *Extractor) extractError(stdout, stderr string, exitCode int, command string, fullLength int) ExtractedOutput {
	source := strings.TrimSpace(stderr)
	if source == "" {
		source = strings.TrimSpace(stdout)
	}

	var lines []string
	for _, line := range strings.Split(source, "\n") {
		if !noiseLine.MatchString(line) {
			lines = append(lines, strings.TrimRight(line, " \t"))
		}
	}

	var context string
	if len(lines) <= e.errorHeadLines+e.errorTailLines {
		context = strings.Join(lines, "\n")
	} else {
		omitted := len(lines) - e.errorHeadLines - e.errorTailLines
		parts := append([]string{}, lines[:e.errorHeadLines]...)
		parts = append(parts, fmt.Sprintf("... (%d lines omitted) ...", omitted))
		parts = append(parts, lines[len(lines)-e.errorTailLines:]...)
		context = strings.Join(parts, "\n")
	}

	errType := ClassifyError(source)

	first := ""
	if len(lines) > 0 {
		first = lines[0]
		if len(first) > 200 {
			first = first[:200] + "..."
		}
	}
	summary := fmt.Sprintf("command failed (exit %d): %s | %s", exitCode, shortCommand(command), errType)
	if first != "" {
		summary += ": " + first
	}

	return ExtractedOutput{
		Summary:         summary,
		ErrorContext:    context,
		Class:           Classify(command),
		ErrorType:       errType,
		FullLength:      fullLength,
		ExtractedLength: len(context),
	}
}
