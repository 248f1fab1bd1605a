// Package orchestrator drives a deployment plan to completion: it
// sequences steps, runs each one through the oracle-driven step
// executor, and folds results into the rolling execution summary.
package orchestrator

import (
	"autodeploy/internal/types"
)

// StepContext is everything one step execution may read. A fresh
// context is built per attempt; a retried step starts clean.
type StepContext struct {
	Step         types.DeploymentStep
	Summary      types.ExecutionSummary
	Predecessors map[int]types.StepOutputs
	History      []types.CommandRecord
	Interactions []types.Interaction
	// Reflection is injected by a loop intervention and consumed by
	// the next prompt.
	Reflection string
	// Lessons from earlier runs that match recent error types.
	Lessons []string
}

// StepResult is the terminal outcome of one step execution.
type StepResult struct {
	Step         types.DeploymentStep
	Status       types.StepStatus
	Outputs      *types.StepOutputs
	Error        string
	Iterations   int
	History      []types.CommandRecord
	Interactions []types.Interaction
	// IterationsExhausted marks a failure caused by hitting the
	// iteration cap rather than an oracle or command error.
	IterationsExhausted bool
}

// RunResult summarizes a whole run.
type RunResult struct {
	Status      string
	Summary     types.ExecutionSummary
	StepResults []StepResult
	FailedStep  int // step ID that ended the run, 0 when none
	Error       string
}
