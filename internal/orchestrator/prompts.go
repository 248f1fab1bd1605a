package orchestrator

import (
	"fmt"
	"strings"
)

// historyWindow bounds how many prior commands a step prompt carries.
const historyWindow = 10

const stepSystemPrompt = `You are an expert deployment engineer operating a remote shell.
You work one step at a time and respond with exactly one JSON object, no markdown, no prose.

Allowed actions:
  {"action": "execute", "command": "<shell command>", "reasoning": "<why>"}
  {"action": "step_done", "message": "<what was achieved>", "outputs": {"summary": "<one line>", "key_info": {"<key>": <value>}}}
  {"action": "step_failed", "message": "<why the step cannot be completed>"}
  {"action": "ask_user", "question": "<question>", "options": ["<option>", ...]}

Rules:
- One command per response. Never chain unrelated operations.
- Commands must be non-interactive. Use flags like -y; never wait for a TTY prompt.
- Declare step_done only when the success criteria are verifiably met.
- If you are stuck after genuinely different attempts, declare step_failed instead of repeating yourself.`

const planSystemPrompt = `You are an expert deployment engineer. Produce a deployment plan as one JSON object, no markdown, no prose:
{"strategy": "<docker|systemd|pm2|manual|...>", "estimated_time": "<rough estimate>",
 "steps": [{"id": 1, "name": "<name>", "category": "<SETUP|BUILD|CONFIG|DEPLOY|VERIFY>",
            "description": "<what to do>", "success_criteria": "<how to verify>",
            "depends_on": [<earlier step ids>], "estimated_commands": <n>}]}
Steps must be ordered, ids sequential from 1, depends_on referencing earlier ids only.`

// buildStepPrompt assembles the user prompt for one executor
// iteration. Ordering matters: the step goal first, then accumulated
// context, then the immediate history the oracle must react to.
func buildStepPrompt(stepCtx StepContext, summaryText string) string {
	var b strings.Builder

	step := stepCtx.Step
	fmt.Fprintf(&b, "## Current step %d: %s\n", step.ID, step.Name)
	fmt.Fprintf(&b, "Goal: %s\n", step.Goal())
	fmt.Fprintf(&b, "Success criteria: %s\n", step.Criteria())

	if summaryText != "" {
		b.WriteString("\n## Deployment state\n")
		b.WriteString(summaryText)
	}

	if len(stepCtx.Predecessors) > 0 {
		b.WriteString("\n## Outputs from completed prerequisite steps\n")
		for id, outputs := range stepCtx.Predecessors {
			fmt.Fprintf(&b, "Step %d: %s\n", id, outputs.Summary)
			for key, value := range outputs.KeyInfo {
				fmt.Fprintf(&b, "  %s: %v\n", key, value)
			}
		}
	}

	if len(stepCtx.Lessons) > 0 {
		b.WriteString("\n## Lessons from previous deployments\n")
		for _, lesson := range stepCtx.Lessons {
			fmt.Fprintf(&b, "- %s\n", lesson)
		}
	}

	history := stepCtx.History
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	if len(history) > 0 {
		b.WriteString("\n## Commands executed in this step (oldest first)\n")
		for i, rec := range history {
			fmt.Fprintf(&b, "%d. $ %s\n", i+1, rec.Command)
			if rec.Extracted != "" {
				b.WriteString(indent(rec.Extracted, "   "))
				b.WriteString("\n")
			}
		}
	} else {
		b.WriteString("\nNo commands executed yet for this step.\n")
	}

	if len(stepCtx.Interactions) > 0 {
		b.WriteString("\n## User guidance\n")
		for _, ia := range stepCtx.Interactions {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n", ia.Question, ia.Response)
		}
	}

	if stepCtx.Reflection != "" {
		b.WriteString("\n## MANDATORY REFLECTION\n")
		b.WriteString(stepCtx.Reflection)
		b.WriteString("\nBefore acting: state the root cause of the failures above, propose an approach that is materially different ")
		b.WriteString("(not just an added flag or sudo), and explain why it should work. ")
		b.WriteString("If no materially different approach exists, respond with step_failed.\n")
	}

	b.WriteString("\nRespond with exactly one JSON action.")
	return b.String()
}

// buildPlanPrompt assembles the user prompt for plan generation.
func buildPlanPrompt(target, deployDir string, hostInfo map[string]string, instructions string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Create a deployment plan.\n\nTarget: %s\nDeploy directory: %s\n", target, deployDir)
	if len(hostInfo) > 0 {
		b.WriteString("\nHost details:\n")
		for key, value := range hostInfo {
			fmt.Fprintf(&b, "  %s: %s\n", key, value)
		}
	}
	if instructions != "" {
		b.WriteString("\nOperator instructions:\n")
		b.WriteString(instructions)
		b.WriteString("\n")
	}
	return b.String()
}

func indent(text, prefix string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
