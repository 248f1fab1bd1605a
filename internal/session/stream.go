package session

import (
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

type killKind int

const (
	killNone killKind = iota
	killIdle
	killTotal
	killContext
)

// supervise drains both streams through dedicated reader goroutines
// into a shared, lock-protected buffer, watching the two clocks. The
// kill callback must forcibly terminate the process; readers then hit
// EOF and the supervisor can finish. The returned strings are the full
// captured stdout/stderr.
func supervise(ctx context.Context, opts RunOptions, stdout, stderr io.Reader, kill func()) (string, string, killKind) {
	var (
		mu     sync.Mutex
		outBuf strings.Builder
		errBuf strings.Builder
	)

	var lastActivity atomic.Int64
	lastActivity.Store(time.Now().UnixNano())

	reader := func(r io.Reader, buf *strings.Builder) func() error {
		return func() error {
			chunk := make([]byte, 4096)
			for {
				n, err := r.Read(chunk)
				if n > 0 {
					mu.Lock()
					buf.Write(chunk[:n])
					mu.Unlock()
					lastActivity.Store(time.Now().UnixNano())
					if opts.Mirror != nil {
						opts.Mirror.Write(chunk[:n])
					}
				}
				if err != nil {
					// EOF and kill-induced read errors both mean the
					// stream is done.
					return nil
				}
			}
		}
	}

	var g errgroup.Group
	g.Go(reader(stdout, &outBuf))
	g.Go(reader(stderr, &errBuf))

	readersDone := make(chan struct{})
	go func() {
		g.Wait()
		close(readersDone)
	}()

	totalDeadline := time.Now().Add(opts.TotalTimeout)
	kind := killNone
	ctxDone := ctx.Done()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-readersDone:
			mu.Lock()
			out, errOut := outBuf.String(), errBuf.String()
			mu.Unlock()
			return out, errOut, kind

		case <-ctxDone:
			ctxDone = nil
			if kind == killNone {
				kind = killContext
				kill()
			}

		case now := <-ticker.C:
			if kind != killNone {
				continue
			}
			idle := now.Sub(time.Unix(0, lastActivity.Load()))
			if idle > opts.IdleTimeout {
				kind = killIdle
				kill()
				continue
			}
			if now.After(totalDeadline) {
				kind = killTotal
				kill()
			}
		}
	}
}
