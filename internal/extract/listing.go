package extract

import (
	"fmt"
	"regexp"
	"strings"
)

// unixListLine matches `ls -l` style rows: permissions first, name last.
var unixListLine = regexp.MustCompile(`^([dl-])[rwxst-]{9}[+.]?\s+\d+\s+\S+\s+\S+\s+(\d+)\s+\S+\s+\S+\s+\S+\s+(.+)$`)

// psListLine matches the PowerShell Get-ChildItem table: a Mode column
// like d----- or -a---- followed by date, time, length and name.
var psListLine = regexp.MustCompile(`^([d-])[a-z-]{4,6}\s+\S+\s+\S+\s+(\S*)\s+(.+)$`)

// extractListing parses directory listing output into tagged entries.
// It recognises ls -l and Get-ChildItem tables; anything else is
// treated as a bare name-per-line listing.
func (e *Extractor) extractListing(stdout, command string) ExtractedOutput {
	lines := nonBlankLines(stdout)

	var entries []string
	for _, line := range lines {
		if strings.HasPrefix(line, "total ") || strings.HasPrefix(line, "Directory:") ||
			strings.HasPrefix(line, "Mode ") || strings.HasPrefix(line, "----") {
			continue
		}
		if m := unixListLine.FindStringSubmatch(line); m != nil {
			entries = append(entries, formatEntry(m[1] == "d", m[3], m[2]))
			continue
		}
		if m := psListLine.FindStringSubmatch(line); m != nil {
			entries = append(entries, formatEntry(m[1] == "d", m[3], m[2]))
			continue
		}
		entries = append(entries, "[ITEM] "+line)
	}

	total := len(entries)
	if total > e.maxListEntries {
		entries = entries[:e.maxListEntries]
		entries = append(entries, fmt.Sprintf("... (%d more)", total-e.maxListEntries))
	}

	return ExtractedOutput{
		Summary: fmt.Sprintf("listing: %d entries (%s)", total, shortCommand(command)),
		KeyInfo: entries,
	}
}

func formatEntry(isDir bool, name, size string) string {
	name = strings.TrimSpace(name)
	if isDir {
		return "[DIR] " + name
	}
	if size != "" && size != "0" {
		return fmt.Sprintf("[FILE] %s (%s bytes)", name, size)
	}
	return "[FILE] " + name
}
