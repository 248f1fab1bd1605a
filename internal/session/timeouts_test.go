package session

import (
	"testing"
	"time"
)

func TestSmartTimeouts(t *testing.T) {
	defTotal, defIdle := 10*time.Minute, time.Minute

	t.Run("defaults for plain commands", func(t *testing.T) {
		opts := SmartTimeouts("ls -la /opt", defTotal, defIdle)
		if opts.TotalTimeout != defTotal || opts.IdleTimeout != defIdle {
			t.Errorf("got %v/%v", opts.TotalTimeout, opts.IdleTimeout)
		}
	})

	t.Run("sleep stretches both clocks", func(t *testing.T) {
		opts := SmartTimeouts("sleep 900 && curl localhost:8080/health", defTotal, defIdle)
		want := 900*time.Second + 2*time.Minute
		if opts.TotalTimeout != want {
			t.Errorf("total = %v, want %v", opts.TotalTimeout, want)
		}
		if opts.IdleTimeout != want {
			t.Errorf("idle = %v, want %v", opts.IdleTimeout, want)
		}
	})

	t.Run("package installs get the long budget", func(t *testing.T) {
		opts := SmartTimeouts("cd /opt/app && npm install --production", defTotal, defIdle)
		if opts.TotalTimeout != 30*time.Minute {
			t.Errorf("total = %v", opts.TotalTimeout)
		}
		if opts.IdleTimeout != 3*time.Minute {
			t.Errorf("idle = %v", opts.IdleTimeout)
		}
	})

	t.Run("follow flags extend idle", func(t *testing.T) {
		opts := SmartTimeouts("journalctl -u app -f", defTotal, defIdle)
		if opts.IdleTimeout != 5*time.Minute {
			t.Errorf("idle = %v", opts.IdleTimeout)
		}
	})

	t.Run("follow flag must be a flag", func(t *testing.T) {
		opts := SmartTimeouts("echo --followup", defTotal, defIdle)
		if opts.IdleTimeout != defIdle {
			t.Errorf("idle = %v", opts.IdleTimeout)
		}
	})
}
