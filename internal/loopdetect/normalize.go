package loopdetect

import (
	"regexp"
	"strings"
)

const sampleHalf = 1000

var (
	timestampPattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:[.,]\d+)?(?:Z|[+-]\d{2}:?\d{2})?|\d{2}:\d{2}:\d{2}`)
	pidPattern       = regexp.MustCompile(`\b(?:pid|PID)[=:\s]\d+|\b\d{4,}\b`)
	tempPathPattern  = regexp.MustCompile(`/tmp/[\w\-./]+`)
)

// normalizeOutput strips the parts of command output that vary between
// otherwise-identical runs so repeated failures compare equal. Large
// outputs are sampled from both ends before normalizing.
func normalizeOutput(output string) string {
	if len(output) > 2*sampleHalf {
		output = output[:sampleHalf] + "\n...\n" + output[len(output)-sampleHalf:]
	}
	output = timestampPattern.ReplaceAllString(output, "[TS]")
	output = tempPathPattern.ReplaceAllString(output, "[TEMP]")
	output = pidPattern.ReplaceAllString(output, "[N]")
	return strings.TrimSpace(output)
}

// signaturePatterns identify the essence of an error message. Ordered:
// the first match becomes the signature.
var signaturePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^.*(?:Error|ERROR|error):\s*.*$`),
	regexp.MustCompile(`(?m)^.*Exception:\s*.*$`),
	regexp.MustCompile(`(?i)EACCES[^\n]*`),
	regexp.MustCompile(`(?i)ENOENT[^\n]*`),
	regexp.MustCompile(`(?i)EPERM[^\n]*`),
	regexp.MustCompile(`(?i)EADDRINUSE[^\n]*`),
	regexp.MustCompile(`(?i)ECONNREFUSED[^\n]*`),
	regexp.MustCompile(`(?i)permission denied[^\n]*`),
	regexp.MustCompile(`(?i)command not found[^\n]*`),
	regexp.MustCompile(`(?i)cannot find module[^\n]*`),
	regexp.MustCompile(`(?i)(?:address|port) already in use[^\n]*`),
	regexp.MustCompile(`(?i)(?:failed to|unable to|could not)[^\n]*`),
}

// errorSignature reduces error output to a short stable string used to
// compare failures across different commands.
func errorSignature(output string) string {
	normalized := normalizeOutput(output)
	for _, p := range signaturePatterns {
		if m := p.FindString(normalized); m != "" {
			return strings.TrimSpace(m)
		}
	}
	if len(normalized) > 100 {
		return normalized[:100]
	}
	return normalized
}
