package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	t.Run("execute", func(t *testing.T) {
		action, err := ParseAction(`{"action":"execute","command":"npm install","reasoning":"install dependencies"}`)
		require.NoError(t, err)
		assert.Equal(t, ActionExecute, action.Type)
		assert.Equal(t, "npm install", action.Command)
		assert.Equal(t, "install dependencies", action.Reasoning)
	})

	t.Run("fenced json", func(t *testing.T) {
		response := "```json\n{\"action\":\"execute\",\"command\":\"ls\"}\n```"
		action, err := ParseAction(response)
		require.NoError(t, err)
		assert.Equal(t, "ls", action.Command)
	})

	t.Run("prose around json", func(t *testing.T) {
		response := "Here is my decision:\n{\"action\":\"step_done\",\"outputs\":{\"summary\":\"nginx installed\"}}"
		action, err := ParseAction(response)
		require.NoError(t, err)
		assert.Equal(t, ActionStepDone, action.Type)
		require.NotNil(t, action.Outputs)
		assert.Equal(t, "nginx installed", action.Outputs.Summary)
	})

	t.Run("step done with key info", func(t *testing.T) {
		action, err := ParseAction(`{"action":"step_done","outputs":{"summary":"app started","key_info":{"port":3000,"service":"myapp"}}}`)
		require.NoError(t, err)
		require.NotNil(t, action.Outputs)
		assert.Equal(t, float64(3000), action.Outputs.KeyInfo["port"])
	})

	t.Run("ask user", func(t *testing.T) {
		action, err := ParseAction(`{"action":"ask_user","question":"Which port?","options":["3000","8080"]}`)
		require.NoError(t, err)
		assert.Equal(t, ActionAskUser, action.Type)
		assert.Len(t, action.Options, 2)
	})

	t.Run("execute without command", func(t *testing.T) {
		_, err := ParseAction(`{"action":"execute"}`)
		assert.Error(t, err)
	})

	t.Run("ask user without question", func(t *testing.T) {
		_, err := ParseAction(`{"action":"ask_user"}`)
		assert.Error(t, err)
	})

	t.Run("unknown action", func(t *testing.T) {
		_, err := ParseAction(`{"action":"reboot_world"}`)
		assert.Error(t, err)
	})

	t.Run("not json", func(t *testing.T) {
		_, err := ParseAction("I think we should install nginx first.")
		assert.Error(t, err)
	})
}

func TestParsePlan(t *testing.T) {
	t.Run("valid plan", func(t *testing.T) {
		plan, err := ParsePlan(`{
			"strategy": "docker",
			"estimated_time": "15m",
			"steps": [
				{"id": 1, "name": "Clone repository", "category": "SETUP"},
				{"id": 2, "name": "Build image", "category": "BUILD", "depends_on": [1]}
			]
		}`)
		require.NoError(t, err)
		assert.Equal(t, "docker", plan.Strategy)
		require.Len(t, plan.Steps, 2)
		assert.Equal(t, []int{1}, plan.Steps[1].DependsOn)
	})

	t.Run("empty plan", func(t *testing.T) {
		_, err := ParsePlan(`{"strategy":"manual","steps":[]}`)
		assert.Error(t, err)
	})

	t.Run("duplicate step id", func(t *testing.T) {
		_, err := ParsePlan(`{"steps":[{"id":1,"name":"A"},{"id":1,"name":"B"}]}`)
		assert.ErrorContains(t, err, "duplicate")
	})

	t.Run("unknown dependency", func(t *testing.T) {
		_, err := ParsePlan(`{"steps":[{"id":1,"name":"A","depends_on":[9]}]}`)
		assert.ErrorContains(t, err, "unknown step")
	})
}
