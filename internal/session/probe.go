package session

import (
	"context"
	"strings"
	"time"
)

// HostInfo is a flat fact map about the target host, fed into oracle
// prompts so decisions match the actual platform.
type HostInfo map[string]string

// probeCommands are cheap read-only queries. A failing probe is simply
// omitted from the result.
var probeCommands = []struct {
	key     string
	command string
}{
	{"os", "uname -s"},
	{"arch", "uname -m"},
	{"hostname", "hostname"},
	{"distro", "grep -E '^PRETTY_NAME=' /etc/os-release | cut -d= -f2 | tr -d '\"'"},
	{"package_manager", "command -v apt-get || command -v dnf || command -v yum || command -v apk || command -v brew"},
	{"docker", "docker --version"},
	{"node", "node --version"},
	{"python", "python3 --version"},
	{"git", "git --version"},
}

// Probe gathers host facts through the session. Each probe runs with a
// short timeout so a broken host can't stall run startup.
func Probe(ctx context.Context, s Session) HostInfo {
	info := make(HostInfo, len(probeCommands))
	opts := RunOptions{TotalTimeout: 15 * time.Second, IdleTimeout: 10 * time.Second}

	for _, p := range probeCommands {
		res, err := s.Run(ctx, p.command, opts)
		if err != nil || !res.Ok() {
			continue
		}
		value := strings.TrimSpace(res.Stdout)
		if value == "" {
			continue
		}
		if i := strings.IndexByte(value, '\n'); i >= 0 {
			value = value[:i]
		}
		info[p.key] = value
	}
	return info
}
