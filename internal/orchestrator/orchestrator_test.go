package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autodeploy/internal/interact"
	"autodeploy/internal/runlog"
	"autodeploy/internal/types"
)

func threeStepPlan() types.DeploymentPlan {
	return types.DeploymentPlan{
		Strategy: "manual",
		Steps: []types.DeploymentStep{
			{ID: 1, Name: "Clone repository", Category: "SETUP"},
			{ID: 2, Name: "Install dependencies", Category: "BUILD", DependsOn: []int{1}},
			{ID: 3, Name: "Start application", Category: "DEPLOY", DependsOn: []int{2}},
		},
	}
}

func newOrchestrator(t *testing.T, orc *fakeOracle, handler interact.Handler) (*Orchestrator, *runlog.RunLog) {
	t.Helper()
	log, err := runlog.New(t.TempDir(), "https://github.com/acme/app.git", "/opt/app")
	require.NoError(t, err)

	executor := NewStepExecutor(ExecutorConfig{MaxIterations: 5}, orc, &fakeSession{}, handler, nil, nil)
	summary := NewSummaryManager("app", "/opt/app", "manual")
	return New(executor, handler, summary, log, nil, nil), log
}

func TestOrchestratorHappyPath(t *testing.T) {
	orc := &fakeOracle{responses: []string{
		`{"action":"step_done","message":"ok","outputs":{"summary":"repo cloned"}}`,
		`{"action":"step_done","message":"ok","outputs":{"summary":"deps installed"}}`,
		`{"action":"step_done","message":"ok","outputs":{"summary":"app started","key_info":{"port":3000}}}`,
	}}
	o, log := newOrchestrator(t, orc, autoAnswer(""))

	result := o.Run(context.Background(), threeStepPlan())

	assert.Equal(t, string(runlog.StatusSuccess), result.Status)
	require.Len(t, result.StepResults, 3)

	// Step outputs flow into the merged summary.
	assert.Equal(t, float64(3000), result.Summary.Environment["port"])
	require.Len(t, result.Summary.CompletedActions, 3)
	assert.Equal(t, "[SETUP] Clone repository: repo cloned", result.Summary.CompletedActions[0])

	doc := log.Snapshot()
	assert.Equal(t, runlog.StatusSuccess, doc.Status)
	assert.Equal(t, types.StepSuccess, doc.Steps[2].Status)
}

func TestOrchestratorFailRetryThenAbort(t *testing.T) {
	// Step 1 fails on every attempt. The handler chooses retry; the
	// second failure ends the run and steps 2 and 3 never start.
	orc := &fakeOracle{responses: []string{
		`{"action":"step_failed","message":"git is not installed"}`,
	}}

	var questions []string
	handler := &interact.CallbackHandler{
		AskFunc: func(req interact.Request) interact.Response {
			questions = append(questions, req.Question)
			return interact.Response{Answer: "retry"}
		},
	}
	o, log := newOrchestrator(t, orc, handler)

	result := o.Run(context.Background(), threeStepPlan())

	assert.Equal(t, string(runlog.StatusFailed), result.Status)
	assert.Equal(t, 1, result.FailedStep)
	assert.Contains(t, result.Error, "after retry")
	require.Len(t, questions, 1, "retry is offered only once")

	doc := log.Snapshot()
	assert.Equal(t, types.StepFailed, doc.Steps[0].Status)
	assert.Equal(t, types.StepPending, doc.Steps[1].Status)
	assert.Equal(t, types.StepPending, doc.Steps[2].Status)
}

func TestOrchestratorMaxIterationsStatus(t *testing.T) {
	// The oracle never declares the step done, so both the first
	// attempt and the retry exhaust the iteration cap; the run ends
	// with the dedicated status rather than a generic failure.
	orc := &fakeOracle{responses: []string{execAction("echo still going")}}
	o, log := newOrchestrator(t, orc, autoAnswer("retry"))

	result := o.Run(context.Background(), threeStepPlan())

	assert.Equal(t, string(runlog.StatusMaxIterations), result.Status)
	assert.Equal(t, 1, result.FailedStep)
	assert.Contains(t, result.Error, "max iterations")

	doc := log.Snapshot()
	assert.Equal(t, runlog.StatusMaxIterations, doc.Status)
}

func TestOrchestratorAbortChoice(t *testing.T) {
	orc := &fakeOracle{responses: []string{
		`{"action":"step_failed","message":"disk full"}`,
	}}
	o, _ := newOrchestrator(t, orc, autoAnswer("abort"))

	result := o.Run(context.Background(), threeStepPlan())

	assert.Equal(t, string(runlog.StatusAborted), result.Status)
	assert.Equal(t, 1, result.FailedStep)
	require.Len(t, result.StepResults, 1)
}

func TestOrchestratorSkipUnblocksDependents(t *testing.T) {
	// Step 1 fails and is skipped by the supervisor; skipped counts
	// as a met dependency, so steps 2 and 3 still run.
	responses := []string{
		`{"action":"step_failed","message":"nothing to clone"}`,
		`{"action":"step_done","message":"ok","outputs":{"summary":"deps installed"}}`,
		`{"action":"step_done","message":"ok","outputs":{"summary":"app started"}}`,
	}
	orc := &fakeOracle{responses: responses}
	o, _ := newOrchestrator(t, orc, autoAnswer("skip"))

	result := o.Run(context.Background(), threeStepPlan())

	assert.Equal(t, string(runlog.StatusSuccess), result.Status)
	require.Len(t, result.StepResults, 3)
	assert.Equal(t, types.StepSkipped, result.StepResults[0].Status)
	assert.Equal(t, types.StepSuccess, result.StepResults[1].Status)
}

func TestOrchestratorSkipsStepWithUnmetDependency(t *testing.T) {
	// Step 1 is skipped by the supervisor, which still satisfies
	// step 2's dependency; step 2 then fails and the supervisor
	// aborts, so step 3 is never attempted.
	orc := &fakeOracle{responses: []string{
		`{"action":"step_failed","message":"boom"}`,
	}}

	plan := types.DeploymentPlan{
		Steps: []types.DeploymentStep{
			{ID: 1, Name: "Provision host", Category: "SETUP"},
			{ID: 2, Name: "Configure service", Category: "CONFIG", DependsOn: []int{1}},
			{ID: 3, Name: "Independent check", Category: "VERIFY"},
		},
	}

	askCount := 0
	handler := &interact.CallbackHandler{
		AskFunc: func(req interact.Request) interact.Response {
			askCount++
			if askCount == 1 {
				return interact.Response{Answer: "skip"}
			}
			return interact.Response{Answer: "abort"}
		},
	}
	o, _ := newOrchestrator(t, orc, handler)
	result := o.Run(context.Background(), plan)

	assert.Equal(t, string(runlog.StatusAborted), result.Status)
	assert.Equal(t, types.StepSkipped, result.StepResults[0].Status)
	assert.Equal(t, types.StepFailed, result.StepResults[1].Status)
	assert.Len(t, result.StepResults, 2)
}

func TestOrchestratorCancelledContext(t *testing.T) {
	orc := &fakeOracle{responses: []string{
		`{"action":"step_done","message":"ok","outputs":{"summary":"done"}}`,
	}}
	o, _ := newOrchestrator(t, orc, autoAnswer(""))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := o.Run(ctx, threeStepPlan())

	assert.Equal(t, string(runlog.StatusCancelled), result.Status)
}
