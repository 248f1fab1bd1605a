package session

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// sleepPatterns cover explicit waits; the total budget stretches to
// the sleep duration plus slack so the wait itself can't time out.
var sleepPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bsleep\s+(\d+)`),
	regexp.MustCompile(`(?i)Start-Sleep\s+-Seconds\s+(\d+)`),
	regexp.MustCompile(`(?i)\btimeout\s+/t\s+(\d+)`),
}

// longRunningCommands get an extended budget: their output is bursty
// and the operations legitimately take many minutes.
var longRunningCommands = []string{
	"npm install",
	"npm ci",
	"pnpm install",
	"pnpm i",
	"yarn install",
	"pip install",
	"apt-get install",
	"apt install",
	"docker build",
	"docker compose up",
	"docker-compose up",
	"cargo build",
	"go build",
	"mvn install",
	"gradle build",
}

var followFlag = regexp.MustCompile(`(?:^|\s)(-f|--follow)\b`)

// SmartTimeouts picks per-command timeout values from the command
// text, starting from the configured defaults.
func SmartTimeouts(command string, defaultTotal, defaultIdle time.Duration) RunOptions {
	opts := RunOptions{TotalTimeout: defaultTotal, IdleTimeout: defaultIdle}
	if opts.TotalTimeout <= 0 {
		opts.TotalTimeout = 10 * time.Minute
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = time.Minute
	}

	for _, pat := range sleepPatterns {
		if m := pat.FindStringSubmatch(command); m != nil {
			if secs, err := strconv.Atoi(m[1]); err == nil {
				stretched := time.Duration(secs)*time.Second + 2*time.Minute
				if stretched > opts.TotalTimeout {
					opts.TotalTimeout = stretched
				}
				// Sleeps are silent on purpose; idle must outlast them.
				if stretched > opts.IdleTimeout {
					opts.IdleTimeout = stretched
				}
			}
			break
		}
	}

	lower := strings.ToLower(command)
	for _, prefix := range longRunningCommands {
		if strings.Contains(lower, prefix) {
			if opts.TotalTimeout < 30*time.Minute {
				opts.TotalTimeout = 30 * time.Minute
			}
			if opts.IdleTimeout < 3*time.Minute {
				opts.IdleTimeout = 3 * time.Minute
			}
			break
		}
	}

	if followFlag.MatchString(command) && opts.IdleTimeout < 5*time.Minute {
		opts.IdleTimeout = 5 * time.Minute
	}

	return opts
}
