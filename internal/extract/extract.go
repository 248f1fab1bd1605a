// Package extract compresses raw command output into the compact,
// decision-ready form the oracle prompt consumes. Successful output is
// reduced according to the command's class; failed output keeps the
// head and tail of the error text plus a classified error type.
// Classification and extraction are ordered rule lists over the text -
// deterministic and debuggable, no semantic matching.
package extract

import (
	"fmt"
	"regexp"
	"strings"
)

// ExtractedOutput is the compressed view of one command's output.
// Derived once, never mutated.
type ExtractedOutput struct {
	Summary         string
	KeyInfo         []string
	ErrorContext    string
	Class           CommandClass
	ErrorType       ErrorType
	FullLength      int
	ExtractedLength int
}

// Extractor holds the tunable caps. The zero value is not useful; use
// NewExtractor.
type Extractor struct {
	maxNoiseInfo     int // key-info lines kept for noise commands
	maxOperationInfo int // key-info lines kept for operations
	maxInfoLines     int // pass-through cap for info commands
	maxListEntries   int // entries kept for directory listings
	errorHeadLines   int
	errorTailLines   int
}

// NewExtractor returns an extractor with the standard caps.
func NewExtractor() *Extractor {
	return &Extractor{
		maxNoiseInfo:     3,
		maxOperationInfo: 10,
		maxInfoLines:     1000,
		maxListEntries:   50,
		errorHeadLines:   5,
		errorTailLines:   10,
	}
}

// keyValuePatterns pull the handful of facts worth keeping from noisy
// success output.
var keyValuePatterns = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"port", regexp.MustCompile(`(?i)port[:\s]+(\d{2,5})`)},
	{"pid", regexp.MustCompile(`(?i)(?:pid|process id)[:\s]+(\d+)`)},
	{"url", regexp.MustCompile(`https?://[^\s"']+`)},
	{"path", regexp.MustCompile(`(?:^|\s)(/[\w\-./]{2,})`)},
	{"version", regexp.MustCompile(`\bv?\d+\.\d+\.\d+(?:[\w.-]*)\b`)},
	{"status", regexp.MustCompile(`(?i)status[:\s]+(running|stopped|active|inactive|exited|healthy)`)},
}

var successKeywords = []string{
	"successfully", "success", "completed", "done", "started", "running", "created", "listening",
}

// Extract reduces one command's captured output. It is a pure function
// of its inputs: identical inputs yield identical results.
func (e *Extractor) Extract(stdout, stderr string, success bool, exitCode int, command string) ExtractedOutput {
	fullLength := len(strings.TrimSpace(stdout + "\n" + stderr))

	if !success {
		return e.extractError(stdout, stderr, exitCode, command, fullLength)
	}

	class := Classify(command)
	var out ExtractedOutput
	switch class {
	case ClassNoise:
		out = e.extractNoise(stdout, stderr, command)
	case ClassDirListing:
		out = e.extractListing(stdout, command)
	case ClassInfo:
		out = e.extractInfo(stdout, command)
	default:
		out = e.extractOperation(stdout, stderr, command)
	}

	out.Class = class
	out.FullLength = fullLength
	out.ExtractedLength = len(strings.Join(out.KeyInfo, "\n"))
	return out
}

func (e *Extractor) extractNoise(stdout, stderr, command string) ExtractedOutput {
	info := scanKeyValues(stdout+"\n"+stderr, e.maxNoiseInfo)
	return ExtractedOutput{
		Summary: fmt.Sprintf("command succeeded: %s (verbose output suppressed)", shortCommand(command)),
		KeyInfo: info,
	}
}

func (e *Extractor) extractOperation(stdout, stderr, command string) ExtractedOutput {
	combined := stdout + "\n" + stderr
	info := scanKeyValues(combined, e.maxOperationInfo)

	// Nothing matched: fall back to the last few non-blank lines so
	// the oracle still sees what happened.
	if len(info) == 0 {
		lines := nonBlankLines(stdout)
		if len(lines) > 5 {
			lines = lines[len(lines)-5:]
		}
		info = lines
	}

	summary := fmt.Sprintf("command succeeded: %s", shortCommand(command))
	if len(info) > 0 {
		top := strings.Join(info[:min(3, len(info))], ", ")
		if len(top) > 100 {
			top = top[:100] + "..."
		}
		summary += " | " + top
	}
	return ExtractedOutput{Summary: summary, KeyInfo: info}
}

func (e *Extractor) extractInfo(stdout, command string) ExtractedOutput {
	lines := strings.Split(stdout, "\n")
	truncated := 0
	if len(lines) > e.maxInfoLines {
		truncated = len(lines) - e.maxInfoLines
		lines = lines[:e.maxInfoLines]
	}
	info := lines
	if truncated > 0 {
		info = append(info, fmt.Sprintf("... (%d more lines truncated)", truncated))
	}
	return ExtractedOutput{
		Summary: fmt.Sprintf("command succeeded: %s (%d lines)", shortCommand(command), len(lines)),
		KeyInfo: info,
	}
}

func scanKeyValues(text string, limit int) []string {
	var info []string
	seen := make(map[string]bool)

	for _, kv := range keyValuePatterns {
		matches := kv.pattern.FindAllStringSubmatch(text, 3)
		for _, m := range matches {
			value := m[0]
			if len(m) > 1 && m[1] != "" {
				value = m[1]
			}
			entry := kv.name + ": " + strings.TrimSpace(value)
			if seen[entry] || len(entry) > 200 {
				continue
			}
			seen[entry] = true
			info = append(info, entry)
			if len(info) >= limit {
				return info
			}
		}
	}

	for _, line := range nonBlankLines(text) {
		lower := strings.ToLower(line)
		for _, kw := range successKeywords {
			if strings.Contains(lower, kw) && len(line) < 200 && !seen[line] {
				seen[line] = true
				info = append(info, line)
				break
			}
		}
		if len(info) >= limit {
			break
		}
	}
	return info
}

func nonBlankLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines
}

func shortCommand(command string) string {
	command = strings.TrimSpace(command)
	if len(command) > 50 {
		return command[:50] + "..."
	}
	return command
}

