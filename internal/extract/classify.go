package extract

import "regexp"

// CommandClass buckets commands by how their output should be reduced.
type CommandClass string

const (
	// ClassNoise covers package-manager and build commands whose
	// output is voluminous but low-value.
	ClassNoise CommandClass = "noise"

	// ClassDirListing covers file and directory enumeration.
	ClassDirListing CommandClass = "dir_listing"

	// ClassInfo covers status/read/version/query commands whose
	// output is the answer and must not be compressed.
	ClassInfo CommandClass = "info"

	// ClassOperation is the default for everything else.
	ClassOperation CommandClass = "operation"
)

// classRule pairs a command pattern with its class. Rules are ordered;
// the first match wins, and commands matching nothing are operations.
type classRule struct {
	pattern *regexp.Regexp
	class   CommandClass
}

var classRules = []classRule{
	// Package manager / build noise.
	{regexp.MustCompile(`(?i)\b(?:apt-get|apt|yum|dnf)\s+(?:install|upgrade|update)\b`), ClassNoise},
	{regexp.MustCompile(`(?i)\bapk\s+add\b`), ClassNoise},
	{regexp.MustCompile(`(?i)\bnpm\s+(?:install|ci)\b`), ClassNoise},
	{regexp.MustCompile(`(?i)\b(?:pnpm|yarn)\s+(?:install|add)?\b`), ClassNoise},
	{regexp.MustCompile(`(?i)\bpip3?\s+install\b`), ClassNoise},
	{regexp.MustCompile(`(?i)\bdocker\s+(?:build|pull)\b`), ClassNoise},
	{regexp.MustCompile(`(?i)\bcargo\s+build\b`), ClassNoise},
	{regexp.MustCompile(`(?i)\b(?:mvn|gradle)\s+\S*(?:install|build|package)\b`), ClassNoise},

	// Directory enumeration.
	{regexp.MustCompile(`(?:^|[;&|]\s*)ls\b`), ClassDirListing},
	{regexp.MustCompile(`(?:^|[;&|]\s*)find\b`), ClassDirListing},
	{regexp.MustCompile(`(?:^|[;&|]\s*)tree\b`), ClassDirListing},
	{regexp.MustCompile(`(?i)Get-ChildItem\b`), ClassDirListing},

	// Reads and queries: output is the answer.
	{regexp.MustCompile(`(?:^|[;&|]\s*)(?:cat|head|tail|less|grep)\b`), ClassInfo},
	{regexp.MustCompile(`(?:^|[;&|]\s*)(?:ps|df|du|free|env|printenv|uname|whoami|which|hostname)\b`), ClassInfo},
	{regexp.MustCompile(`(?i)\bsystemctl\s+status\b`), ClassInfo},
	{regexp.MustCompile(`(?i)\bdocker\s+(?:ps|logs|images|inspect)\b`), ClassInfo},
	{regexp.MustCompile(`(?i)\bgit\s+(?:status|log|diff|show|branch|remote)\b`), ClassInfo},
	{regexp.MustCompile(`(?i)\b(?:netstat|ss|lsof)\b`), ClassInfo},
	{regexp.MustCompile(`--version\b|\s-V\b`), ClassInfo},
	{regexp.MustCompile(`(?i)\bcurl\s+.*(?:/health|/status|/version)\b`), ClassInfo},
}

// Classify assigns a command to exactly one class.
func Classify(command string) CommandClass {
	for _, rule := range classRules {
		if rule.pattern.MatchString(command) {
			return rule.class
		}
	}
	return ClassOperation
}
