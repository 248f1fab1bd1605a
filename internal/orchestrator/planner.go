package orchestrator

import (
	"context"
	"fmt"

	"autodeploy/internal/oracle"
	"autodeploy/internal/session"
	"autodeploy/internal/types"
)

// GeneratePlan asks the oracle for a deployment plan for the target,
// grounded in whatever host facts the probe collected.
func GeneratePlan(ctx context.Context, orc oracle.Oracle, target, deployDir string, hostInfo session.HostInfo, instructions string) (types.DeploymentPlan, error) {
	response, err := orc.Complete(ctx, oracle.Request{
		System: planSystemPrompt,
		Prompt: buildPlanPrompt(target, deployDir, hostInfo, instructions),
	})
	if err != nil {
		return types.DeploymentPlan{}, fmt.Errorf("plan generation failed: %w", err)
	}
	return oracle.ParsePlan(response)
}
