// Package runlog persists the full state of a deployment run as one
// JSON document, rewritten after every state-changing event. The file
// is always a complete, valid snapshot: an observer can tail it while
// the run is live, and an abrupt kill loses at most the event in
// flight.
package runlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"autodeploy/internal/types"
)

// RunStatus is the lifecycle state of a whole run.
type RunStatus string

const (
	StatusRunning       RunStatus = "running"
	StatusSuccess       RunStatus = "success"
	StatusFailed        RunStatus = "failed"
	StatusAborted       RunStatus = "aborted"
	StatusCancelled     RunStatus = "cancelled"
	StatusMaxIterations RunStatus = "max_iterations"
)

const (
	maxRawStdout = 1000
	maxRawStderr = 500
)

// CommandLog is one executed command inside a step.
type CommandLog struct {
	Command         string    `json:"command"`
	Reasoning       string    `json:"reasoning,omitempty"`
	Success         bool      `json:"success"`
	ExitCode        int       `json:"exit_code"`
	ExtractedOutput string    `json:"extracted_output,omitempty"`
	RawStdout       string    `json:"raw_stdout,omitempty"`
	RawStderr       string    `json:"raw_stderr,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// StepLog is the record of one plan step.
type StepLog struct {
	StepID            int                 `json:"step_id"`
	Name              string              `json:"name"`
	Status            types.StepStatus    `json:"status"`
	Iterations        int                 `json:"iterations"`
	Commands          []CommandLog        `json:"commands"`
	UserInteractions  []types.Interaction `json:"user_interactions,omitempty"`
	StructuredOutputs *types.StepOutputs  `json:"structured_outputs,omitempty"`
	Error             string              `json:"error,omitempty"`
	StartTime         time.Time           `json:"start_time"`
	EndTime           *time.Time          `json:"end_time,omitempty"`
}

// Statistics is the roll-up written when the run finishes.
type Statistics struct {
	TotalSteps      int     `json:"total_steps"`
	SuccessfulSteps int     `json:"successful_steps"`
	TotalCommands   int     `json:"total_commands"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Document is the serialized shape of the whole run.
type Document struct {
	RunID     string                `json:"run_id"`
	Target    string                `json:"target"`
	DeployDir string                `json:"deploy_dir"`
	Status    RunStatus             `json:"status"`
	Plan      *types.DeploymentPlan `json:"plan,omitempty"`
	Steps     []StepLog             `json:"steps"`
	StartTime time.Time             `json:"start_time"`
	EndTime   *time.Time            `json:"end_time,omitempty"`
	Error     string                `json:"error,omitempty"`
	Summary   *Statistics           `json:"summary,omitempty"`
}

// RunLog owns the on-disk document. All mutating methods rewrite the
// file before returning; a write failure is returned but does not
// corrupt the previous snapshot.
type RunLog struct {
	mu   sync.Mutex
	path string
	doc  Document
}

// New creates a run log in dir. The filename embeds the run ID so
// successive runs never clobber each other.
func New(dir, target, deployDir string) (*RunLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log dir: %w", err)
	}
	runID := uuid.NewString()
	rl := &RunLog{
		path: filepath.Join(dir, "run-"+runID+".json"),
		doc: Document{
			RunID:     runID,
			Target:    target,
			DeployDir: deployDir,
			Status:    StatusRunning,
			Steps:     []StepLog{},
			StartTime: time.Now().UTC(),
		},
	}
	if err := rl.save(); err != nil {
		return nil, err
	}
	return rl, nil
}

// Path returns the log file location.
func (rl *RunLog) Path() string {
	return rl.path
}

// SetPlan records the deployment plan and pre-creates a pending entry
// for each step.
func (rl *RunLog) SetPlan(plan types.DeploymentPlan) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.doc.Plan = &plan
	rl.doc.Steps = make([]StepLog, 0, len(plan.Steps))
	for _, step := range plan.Steps {
		rl.doc.Steps = append(rl.doc.Steps, StepLog{
			StepID: step.ID,
			Name:   step.Name,
			Status: types.StepPending,
		})
	}
	return rl.save()
}

// BeginStep marks a step running.
func (rl *RunLog) BeginStep(stepID int) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	entry := rl.step(stepID)
	if entry == nil {
		return fmt.Errorf("unknown step id %d", stepID)
	}
	entry.Status = types.StepRunning
	entry.StartTime = time.Now().UTC()
	return rl.save()
}

// RecordCommand appends an executed command to a step's history.
func (rl *RunLog) RecordCommand(stepID int, rec types.CommandRecord) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	entry := rl.step(stepID)
	if entry == nil {
		return fmt.Errorf("unknown step id %d", stepID)
	}
	entry.Iterations++
	entry.Commands = append(entry.Commands, CommandLog{
		Command:         rec.Command,
		Reasoning:       rec.Reasoning,
		Success:         rec.Success,
		ExitCode:        rec.ExitCode,
		ExtractedOutput: rec.Extracted,
		RawStdout:       truncate(rec.Stdout, maxRawStdout),
		RawStderr:       truncate(rec.Stderr, maxRawStderr),
		Timestamp:       rec.Timestamp,
	})
	return rl.save()
}

// RecordInteraction appends a question/answer exchange to a step.
func (rl *RunLog) RecordInteraction(stepID int, interaction types.Interaction) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	entry := rl.step(stepID)
	if entry == nil {
		return fmt.Errorf("unknown step id %d", stepID)
	}
	entry.UserInteractions = append(entry.UserInteractions, interaction)
	return rl.save()
}

// CompleteStep records a step's terminal status and outputs.
func (rl *RunLog) CompleteStep(stepID int, status types.StepStatus, outputs *types.StepOutputs, stepErr string) error {
	if !status.Terminal() {
		return fmt.Errorf("non-terminal status %q for step %d", status, stepID)
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	entry := rl.step(stepID)
	if entry == nil {
		return fmt.Errorf("unknown step id %d", stepID)
	}
	now := time.Now().UTC()
	entry.Status = status
	entry.StructuredOutputs = outputs
	entry.Error = stepErr
	entry.EndTime = &now
	return rl.save()
}

// Finalize records the run's terminal status and closes the document.
func (rl *RunLog) Finalize(status RunStatus, runErr string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := time.Now().UTC()
	rl.doc.Status = status
	rl.doc.Error = runErr
	rl.doc.EndTime = &now

	stats := Statistics{
		TotalSteps:      len(rl.doc.Steps),
		DurationSeconds: now.Sub(rl.doc.StartTime).Seconds(),
	}
	for _, step := range rl.doc.Steps {
		stats.TotalCommands += len(step.Commands)
		if step.Status == types.StepSuccess {
			stats.SuccessfulSteps++
		}
	}
	rl.doc.Summary = &stats
	return rl.save()
}

// Snapshot returns a deep-enough copy of the document for reporting.
func (rl *RunLog) Snapshot() Document {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	doc := rl.doc
	doc.Steps = append([]StepLog(nil), rl.doc.Steps...)
	return doc
}

func (rl *RunLog) step(stepID int) *StepLog {
	for i := range rl.doc.Steps {
		if rl.doc.Steps[i].StepID == stepID {
			return &rl.doc.Steps[i]
		}
	}
	return nil
}

// save writes the document atomically: full marshal to a temp file in
// the same directory, then rename over the target.
func (rl *RunLog) save() error {
	data, err := json.MarshalIndent(rl.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling run log: %w", err)
	}

	tmp := rl.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing run log: %w", err)
	}
	if err := os.Rename(tmp, rl.path); err != nil {
		return fmt.Errorf("replacing run log: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + fmt.Sprintf("... (%d more chars)", len(s)-n)
}
