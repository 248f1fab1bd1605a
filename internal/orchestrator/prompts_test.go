package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"autodeploy/internal/types"
)

func TestStepPromptUsesStepGoalAndCriteria(t *testing.T) {
	prompt := buildStepPrompt(StepContext{Step: testStep()}, "")

	assert.Contains(t, prompt, "Goal: start the app")
	assert.Contains(t, prompt, "Success criteria: app responds on its port")
}

func TestStepPromptFallsBackToStepName(t *testing.T) {
	// A sparse plan step still yields a usable goal and criteria.
	step := types.DeploymentStep{ID: 2, Name: "Install dependencies"}
	prompt := buildStepPrompt(StepContext{Step: step}, "")

	assert.Contains(t, prompt, "Goal: Install dependencies")
	assert.Contains(t, prompt, "Success criteria: Complete: Install dependencies")
}
