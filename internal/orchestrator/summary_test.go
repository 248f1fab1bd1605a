package orchestrator

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autodeploy/internal/types"
)

func TestSummaryMerge(t *testing.T) {
	m := NewSummaryManager("acme-app", "/opt/app", "pm2")

	m.MergeStepOutputs(
		types.DeploymentStep{ID: 1, Name: "Start application", Category: "deploy"},
		types.StepOutputs{
			Summary: "app started under pm2",
			KeyInfo: map[string]any{"port": 3000, "process": "acme-app"},
		},
	)

	s := m.Snapshot()
	require.Len(t, s.CompletedActions, 1)
	assert.Equal(t, "[DEPLOY] Start application: app started under pm2", s.CompletedActions[0])
	assert.Equal(t, 3000, s.Environment["port"])
	assert.Equal(t, "acme-app", s.Environment["process"])
}

func TestSummaryCompletedActionsCap(t *testing.T) {
	m := NewSummaryManager("app", "/opt/app", "manual")

	for i := 1; i <= 20; i++ {
		m.MergeStepOutputs(
			types.DeploymentStep{ID: i, Name: fmt.Sprintf("Step %d", i), Category: "SETUP"},
			types.StepOutputs{Summary: fmt.Sprintf("did thing %d", i)},
		)
	}

	s := m.Snapshot()
	require.Len(t, s.CompletedActions, 15)
	// Oldest entries are discarded.
	assert.Contains(t, s.CompletedActions[0], "Step 6")
	assert.Contains(t, s.CompletedActions[14], "Step 20")
}

func TestSummaryResolvedIssuesCap(t *testing.T) {
	m := NewSummaryManager("app", "/opt/app", "manual")

	for i := 1; i <= 8; i++ {
		m.AddResolvedIssue(fmt.Sprintf("issue %d", i), fmt.Sprintf("fix %d", i))
	}

	s := m.Snapshot()
	require.Len(t, s.ResolvedIssues, 5)
	assert.Equal(t, "issue 4", s.ResolvedIssues[0].Issue)
	assert.Equal(t, "issue 8", s.ResolvedIssues[4].Issue)
}

func TestSummarySnapshotIsIsolated(t *testing.T) {
	m := NewSummaryManager("app", "/opt/app", "manual")
	m.SetConfiguration("nginx", "/etc/nginx/sites-enabled/app")

	s := m.Snapshot()
	s.Environment["mutated"] = true
	s.Configurations["mutated"] = "yes"

	fresh := m.Snapshot()
	assert.NotContains(t, fresh.Environment, "mutated")
	assert.NotContains(t, fresh.Configurations, "mutated")
	assert.Equal(t, "/etc/nginx/sites-enabled/app", fresh.Configurations["nginx"])
}

func TestSummaryPromptContext(t *testing.T) {
	m := NewSummaryManager("acme-app", "/opt/app", "docker")
	m.MergeStepOutputs(
		types.DeploymentStep{ID: 1, Name: "Build image", Category: "BUILD"},
		types.StepOutputs{Summary: "image built", KeyInfo: map[string]any{"image": "acme:latest"}},
	)
	m.AddResolvedIssue("docker daemon not running", "systemctl start docker")

	text := m.PromptContext()
	assert.Contains(t, text, "Project: acme-app")
	assert.Contains(t, text, "Strategy: docker")
	assert.Contains(t, text, "image: acme:latest")
	assert.Contains(t, text, "[BUILD] Build image: image built")
	assert.Contains(t, text, "docker daemon not running -> systemctl start docker")
}
