package extract

import (
	"fmt"
	"strings"
)

const maxErrorContextChars = 800

// Format renders an extraction for interpolation into an oracle
// prompt. One block, plain text, no markup the model has to strip.
func Format(out ExtractedOutput) string {
	var b strings.Builder
	b.WriteString(out.Summary)

	if len(out.KeyInfo) > 0 {
		b.WriteString("\nKey info:")
		shown := out.KeyInfo
		if len(shown) > 10 {
			shown = shown[:10]
		}
		for _, line := range shown {
			b.WriteString("\n  ")
			b.WriteString(line)
		}
		if len(out.KeyInfo) > 10 {
			fmt.Fprintf(&b, "\n  ... (%d more)", len(out.KeyInfo)-10)
		}
	}

	if out.ErrorContext != "" {
		b.WriteString("\nError context:\n")
		ctx := out.ErrorContext
		if len(ctx) > maxErrorContextChars {
			remainder := len(ctx) - maxErrorContextChars
			ctx = ctx[:maxErrorContextChars]
			ctx += fmt.Sprintf("\n... (%d more chars)", remainder)
		}
		b.WriteString(ctx)
	}

	if out.FullLength > 0 && out.ExtractedLength < out.FullLength {
		fmt.Fprintf(&b, "\n(compressed: %d -> %d chars)", out.FullLength, out.ExtractedLength)
	}
	return b.String()
}
