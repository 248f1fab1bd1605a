// Package types holds the data model shared between the orchestrator,
// loop detection, run logging and knowledge packages: command records,
// step outputs, the rolling execution summary and deployment plans.
package types

import "time"

// StepStatus is the lifecycle state of a deployment step.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepRunning StepStatus = "running"
	StepSuccess StepStatus = "success"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

// Terminal reports whether the status cannot change anymore.
func (s StepStatus) Terminal() bool {
	return s == StepSuccess || s == StepFailed || s == StepSkipped
}

// CommandRecord is one executed command inside a step. Records are
// immutable once created and appended to the step's ordered history.
type CommandRecord struct {
	Command   string    `json:"command"`
	Reasoning string    `json:"reasoning,omitempty"`
	Success   bool      `json:"success"`
	ExitCode  int       `json:"exit_code"`
	Stdout    string    `json:"stdout"`
	Stderr    string    `json:"stderr"`
	Extracted string    `json:"extracted_output,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Interaction is one question/answer exchange with the human operator.
type Interaction struct {
	Question string `json:"question"`
	Response string `json:"response"`
}

// StepOutputs is the only state a step may contribute forward.
// Summary must be non-empty whenever a step reports success.
type StepOutputs struct {
	Summary string         `json:"summary"`
	KeyInfo map[string]any `json:"key_info,omitempty"`
}

// ResolvedIssue records a problem hit during execution and how it was fixed.
type ResolvedIssue struct {
	Issue      string `json:"issue"`
	Resolution string `json:"resolution"`
}

// ExecutionSummary is the rolling context for one deployment run. It is
// mutated only through the summary manager's merge operation and is
// read-shared by every step prompt.
type ExecutionSummary struct {
	ProjectName      string            `json:"project_name"`
	DeployDir        string            `json:"deploy_dir"`
	Strategy         string            `json:"strategy"`
	Environment      map[string]any    `json:"environment"`
	CompletedActions []string          `json:"completed_actions"`
	Configurations   map[string]string `json:"configurations"`
	ResolvedIssues   []ResolvedIssue   `json:"resolved_issues"`
	LastUpdated      time.Time         `json:"last_updated"`
}

// DeploymentStep is one planned step. Plans come from the oracle (or a
// plan file) and are read-only input to the orchestrator.
type DeploymentStep struct {
	ID                int    `json:"id"`
	Name              string `json:"name"`
	Category          string `json:"category"`
	Description       string `json:"description"`
	SuccessCriteria   string `json:"success_criteria"`
	DependsOn         []int  `json:"depends_on,omitempty"`
	EstimatedCommands int    `json:"estimated_commands,omitempty"`
}

// DeploymentPlan is the ordered set of steps for one run.
type DeploymentPlan struct {
	Strategy      string           `json:"strategy"`
	EstimatedTime string           `json:"estimated_time,omitempty"`
	Steps         []DeploymentStep `json:"steps"`
}

// Goal returns the working goal text for a step, falling back to the name.
func (s DeploymentStep) Goal() string {
	if s.Description != "" {
		return s.Description
	}
	return s.Name
}

// Criteria returns the success criteria, synthesizing one if absent.
func (s DeploymentStep) Criteria() string {
	if s.SuccessCriteria != "" {
		return s.SuccessCriteria
	}
	return "Complete: " + s.Name
}
