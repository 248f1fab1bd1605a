package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"autodeploy/internal/types"
)

const (
	maxCompletedActions = 15
	maxResolvedIssues   = 5
)

// SummaryManager is the single writer of the rolling ExecutionSummary.
// Steps read it through snapshots; only completed steps are merged in,
// so readers never observe a half-applied update.
type SummaryManager struct {
	summary types.ExecutionSummary
}

// NewSummaryManager seeds the summary with run-level facts.
func NewSummaryManager(projectName, deployDir, strategy string) *SummaryManager {
	return &SummaryManager{
		summary: types.ExecutionSummary{
			ProjectName:    projectName,
			DeployDir:      deployDir,
			Strategy:       strategy,
			Environment:    make(map[string]any),
			Configurations: make(map[string]string),
			LastUpdated:    time.Now().UTC(),
		},
	}
}

// Snapshot returns a copy safe to hand to a step prompt.
func (m *SummaryManager) Snapshot() types.ExecutionSummary {
	s := m.summary
	s.Environment = copyMap(m.summary.Environment)
	s.Configurations = copyStringMap(m.summary.Configurations)
	s.CompletedActions = append([]string(nil), m.summary.CompletedActions...)
	s.ResolvedIssues = append([]types.ResolvedIssue(nil), m.summary.ResolvedIssues...)
	return s
}

// MergeStepOutputs folds a completed step's outputs into the summary:
// one completed-action line plus the step's key info merged into the
// environment map.
func (m *SummaryManager) MergeStepOutputs(step types.DeploymentStep, outputs types.StepOutputs) {
	line := fmt.Sprintf("[%s] %s", strings.ToUpper(step.Category), step.Name)
	if outputs.Summary != "" {
		line += ": " + outputs.Summary
	}
	m.summary.CompletedActions = append(m.summary.CompletedActions, line)
	if len(m.summary.CompletedActions) > maxCompletedActions {
		m.summary.CompletedActions = m.summary.CompletedActions[len(m.summary.CompletedActions)-maxCompletedActions:]
	}

	for key, value := range outputs.KeyInfo {
		m.summary.Environment[key] = value
	}
	m.summary.LastUpdated = time.Now().UTC()
}

// AddResolvedIssue records an issue fixed during the run. Oldest
// entries are discarded past the cap.
func (m *SummaryManager) AddResolvedIssue(issue, resolution string) {
	m.summary.ResolvedIssues = append(m.summary.ResolvedIssues, types.ResolvedIssue{
		Issue:      issue,
		Resolution: resolution,
	})
	if len(m.summary.ResolvedIssues) > maxResolvedIssues {
		m.summary.ResolvedIssues = m.summary.ResolvedIssues[len(m.summary.ResolvedIssues)-maxResolvedIssues:]
	}
	m.summary.LastUpdated = time.Now().UTC()
}

// SetConfiguration records a configuration fact (file written, service
// configured) discovered during the run.
func (m *SummaryManager) SetConfiguration(key, value string) {
	m.summary.Configurations[key] = value
	m.summary.LastUpdated = time.Now().UTC()
}

// PromptContext renders the summary as plain text for oracle prompts.
func (m *SummaryManager) PromptContext() string {
	return summaryToText(m.summary)
}

func summaryToText(s types.ExecutionSummary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Project: %s\n", s.ProjectName)
	fmt.Fprintf(&b, "Deploy dir: %s\n", s.DeployDir)
	if s.Strategy != "" {
		fmt.Fprintf(&b, "Strategy: %s\n", s.Strategy)
	}

	if len(s.Environment) > 0 {
		b.WriteString("Environment:\n")
		for key, value := range s.Environment {
			fmt.Fprintf(&b, "  %s: %v\n", key, value)
		}
	}
	if len(s.Configurations) > 0 {
		b.WriteString("Configurations:\n")
		for key, value := range s.Configurations {
			fmt.Fprintf(&b, "  %s: %s\n", key, value)
		}
	}
	if len(s.CompletedActions) > 0 {
		b.WriteString("Completed so far:\n")
		for _, action := range s.CompletedActions {
			fmt.Fprintf(&b, "  - %s\n", action)
		}
	}
	if len(s.ResolvedIssues) > 0 {
		b.WriteString("Issues already resolved:\n")
		for _, issue := range s.ResolvedIssues {
			fmt.Fprintf(&b, "  - %s -> %s\n", issue.Issue, issue.Resolution)
		}
	}
	return b.String()
}

func copyMap(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func copyStringMap(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
