// Package loopdetect watches the command history of a step for the two
// failure shapes an unattended agent falls into: re-running the same
// command and hoping, and cycling through different commands that all
// die on the same error. Detection is textual similarity over a
// normalized view of the history, no model calls involved.
package loopdetect

import (
	"fmt"

	"autodeploy/internal/types"
)

// LoopType labels what kind of repetition was found.
type LoopType string

const (
	// LoopDirectRepeat means the same command with the same outcome
	// was issued several times in a row.
	LoopDirectRepeat LoopType = "direct_repeat"

	// LoopErrorCycle means recent commands differ but keep failing
	// with the same error signature.
	LoopErrorCycle LoopType = "error_loop"
)

// Config holds the detection windows and similarity thresholds. Zero
// values are replaced by the defaults, which match the tuning the
// detector ships with.
type Config struct {
	DirectRepeatWindow int     // records compared for direct repeats
	ErrorLoopWindow    int     // records compared for error cycles
	CommandSimilarity  float64 // direct repeat, command text
	OutputSimilarity   float64 // direct repeat, normalized output
	ErrorSimilarity    float64 // error loop, error signatures
}

func (c Config) withDefaults() Config {
	if c.DirectRepeatWindow == 0 {
		c.DirectRepeatWindow = 3
	}
	if c.ErrorLoopWindow == 0 {
		c.ErrorLoopWindow = 4
	}
	if c.CommandSimilarity == 0 {
		c.CommandSimilarity = 0.85
	}
	if c.OutputSimilarity == 0 {
		c.OutputSimilarity = 0.80
	}
	if c.ErrorSimilarity == 0 {
		c.ErrorSimilarity = 0.75
	}
	return c
}

// Result reports one detection pass over the history.
type Result struct {
	IsLoop     bool
	Type       LoopType
	Confidence float64
	Evidence   string
	Indices    []int // positions in the history that form the loop
}

// Detector is stateless between calls; every Check sees the full
// history it is given.
type Detector struct {
	cfg Config
}

// NewDetector builds a detector, filling unset thresholds with
// defaults.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg.withDefaults()}
}

const errorCycleMinFail = 0.75

// Check examines the command history for a loop. Direct repeats are
// checked first; they are the stronger signal.
func (d *Detector) Check(history []types.CommandRecord) Result {
	if r := d.checkDirectRepeat(history); r.IsLoop {
		return r
	}
	return d.checkErrorCycle(history)
}

func (d *Detector) checkDirectRepeat(history []types.CommandRecord) Result {
	window := d.cfg.DirectRepeatWindow
	if len(history) < window {
		return Result{}
	}
	recent := history[len(history)-window:]
	base := len(history) - window

	var cmdSum, outSum float64
	for i := 1; i < len(recent); i++ {
		cmdSum += similarity(recent[0].Command, recent[i].Command)
		outSum += similarity(
			normalizeOutput(recent[0].Stdout+recent[0].Stderr),
			normalizeOutput(recent[i].Stdout+recent[i].Stderr),
		)
	}
	pairs := float64(len(recent) - 1)
	avgCmd, avgOut := cmdSum/pairs, outSum/pairs
	if avgCmd < d.cfg.CommandSimilarity || avgOut < d.cfg.OutputSimilarity {
		return Result{}
	}

	confidence := avgCmd
	if c := avgOut + 0.1; c < confidence {
		confidence = c
	}
	if confidence > 1 {
		confidence = 1
	}

	indices := make([]int, window)
	for i := range indices {
		indices[i] = base + i
	}
	return Result{
		IsLoop:     true,
		Type:       LoopDirectRepeat,
		Confidence: confidence,
		Evidence:   fmt.Sprintf("command repeated %d times (cmd sim %.2f, output sim %.2f): %s", window, avgCmd, avgOut, shorten(recent[0].Command)),
		Indices:    indices,
	}
}

func (d *Detector) checkErrorCycle(history []types.CommandRecord) Result {
	window := d.cfg.ErrorLoopWindow
	if len(history) < window {
		return Result{}
	}
	recent := history[len(history)-window:]
	base := len(history) - window

	var failed []int
	for i, rec := range recent {
		if !rec.Success {
			failed = append(failed, i)
		}
	}
	if len(failed) < 2 || float64(len(failed)) < errorCycleMinFail*float64(window) {
		return Result{}
	}

	first := errorSignature(recent[failed[0]].Stderr + recent[failed[0]].Stdout)
	var simSum float64
	for _, idx := range failed[1:] {
		sig := errorSignature(recent[idx].Stderr + recent[idx].Stdout)
		simSum += similarity(first, sig)
	}
	avgSim := simSum / float64(len(failed)-1)
	if avgSim < d.cfg.ErrorSimilarity {
		return Result{}
	}

	indices := make([]int, 0, len(failed))
	for _, idx := range failed {
		indices = append(indices, base+idx)
	}
	return Result{
		IsLoop:     true,
		Type:       LoopErrorCycle,
		Confidence: avgSim,
		Evidence:   fmt.Sprintf("%d of last %d commands failed with the same error: %s", len(failed), window, shorten(first)),
		Indices:    indices,
	}
}

func shorten(s string) string {
	if len(s) > 80 {
		return s[:80] + "..."
	}
	return s
}
