package oracle

import (
	"encoding/json"
	"fmt"
	"strings"

	"autodeploy/internal/types"
)

// ActionType is the oracle's verdict for one iteration of a step.
type ActionType string

const (
	ActionExecute    ActionType = "execute"
	ActionStepDone   ActionType = "step_done"
	ActionStepFailed ActionType = "step_failed"
	ActionAskUser    ActionType = "ask_user"
)

// Action is the parsed form of an oracle response during step
// execution. Exactly the fields relevant to its Type are set.
type Action struct {
	Type      ActionType         `json:"action"`
	Command   string             `json:"command,omitempty"`
	Reasoning string             `json:"reasoning,omitempty"`
	Question  string             `json:"question,omitempty"`
	Options   []string           `json:"options,omitempty"`
	Outputs   *types.StepOutputs `json:"outputs,omitempty"`
	Message   string             `json:"message,omitempty"`
}

// ParseAction decodes an oracle response into an Action. Responses
// wrapped in markdown code fences are unwrapped first. A response that
// cannot be parsed, or that names an unknown action, is an error; the
// caller converts it into a step failure rather than guessing.
func ParseAction(response string) (Action, error) {
	cleaned := stripFences(response)

	var action Action
	if err := json.Unmarshal([]byte(cleaned), &action); err != nil {
		return Action{}, fmt.Errorf("parsing oracle action: %w", err)
	}

	switch action.Type {
	case ActionExecute:
		if strings.TrimSpace(action.Command) == "" {
			return Action{}, fmt.Errorf("execute action without a command")
		}
	case ActionStepDone, ActionStepFailed:
	case ActionAskUser:
		if strings.TrimSpace(action.Question) == "" {
			return Action{}, fmt.Errorf("ask_user action without a question")
		}
	default:
		return Action{}, fmt.Errorf("unknown action type %q", action.Type)
	}
	return action, nil
}

// ParsePlan decodes a planning response into a DeploymentPlan and
// validates step identity and dependency references.
func ParsePlan(response string) (types.DeploymentPlan, error) {
	cleaned := stripFences(response)

	var plan types.DeploymentPlan
	if err := json.Unmarshal([]byte(cleaned), &plan); err != nil {
		return types.DeploymentPlan{}, fmt.Errorf("parsing deployment plan: %w", err)
	}
	if len(plan.Steps) == 0 {
		return types.DeploymentPlan{}, fmt.Errorf("plan has no steps")
	}

	ids := make(map[int]bool, len(plan.Steps))
	for i, step := range plan.Steps {
		if step.ID <= 0 {
			return types.DeploymentPlan{}, fmt.Errorf("step %d has no id", i)
		}
		if ids[step.ID] {
			return types.DeploymentPlan{}, fmt.Errorf("duplicate step id %d", step.ID)
		}
		ids[step.ID] = true
	}
	for _, step := range plan.Steps {
		for _, dep := range step.DependsOn {
			if !ids[dep] {
				return types.DeploymentPlan{}, fmt.Errorf("step %d depends on unknown step %d", step.ID, dep)
			}
		}
	}
	return plan, nil
}

// stripFences removes a surrounding markdown code fence, with or
// without a language tag, and any prose before the first brace when
// the model talks around the JSON.
func stripFences(response string) string {
	s := strings.TrimSpace(response)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	if !strings.HasPrefix(s, "{") {
		if start := strings.Index(s, "{"); start >= 0 {
			if end := strings.LastIndex(s, "}"); end > start {
				s = s[start : end+1]
			}
		}
	}
	return s
}
