package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"autodeploy/internal/extract"
	"autodeploy/internal/interact"
	"autodeploy/internal/knowledge"
	"autodeploy/internal/logging"
	"autodeploy/internal/runlog"
	"autodeploy/internal/types"
)

// Orchestrator walks a deployment plan step by step. Steps run
// strictly sequentially; the summary is updated only after a step
// fully completes.
type Orchestrator struct {
	executor *StepExecutor
	handler  interact.Handler
	summary  *SummaryManager
	log      *runlog.RunLog
	lessons  *knowledge.Store // optional
	logger   *zap.Logger
}

// New wires an orchestrator. The run log doubles as the executor's
// event recorder so command history is observable mid-step.
func New(executor *StepExecutor, handler interact.Handler, summary *SummaryManager, log *runlog.RunLog, lessons *knowledge.Store, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.Nop()
	}
	if log != nil {
		executor.recorder = log
	}
	return &Orchestrator{
		executor: executor,
		handler:  handler,
		summary:  summary,
		log:      log,
		lessons:  lessons,
		logger:   logger,
	}
}

// Run executes the plan. It returns a terminal RunResult; errors that
// end the run are reported in the result, not as a Go error, so the
// caller always gets the full picture of what happened.
func (o *Orchestrator) Run(ctx context.Context, plan types.DeploymentPlan) RunResult {
	if o.log != nil {
		if err := o.log.SetPlan(plan); err != nil {
			o.logger.Warn("failed to persist plan", zap.Error(err))
		}
	}

	statuses := make(map[int]types.StepStatus, len(plan.Steps))
	outputs := make(map[int]types.StepOutputs, len(plan.Steps))
	result := RunResult{Status: string(runlog.StatusRunning)}

	for _, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return o.finish(result, runlog.StatusCancelled, step.ID, fmt.Sprintf("run cancelled before step %d: %v", step.ID, err))
		}

		if unmet := unmetDependency(step, statuses); unmet != 0 {
			o.logger.Warn("skipping step with unmet dependency",
				zap.Int("step_id", step.ID),
				zap.Int("dependency", unmet))
			o.notify(interact.LevelWarning, fmt.Sprintf("Skipping step %d (%s): dependency %d did not complete", step.ID, step.Name, unmet))
			statuses[step.ID] = types.StepSkipped
			o.completeStep(step.ID, types.StepSkipped, nil, fmt.Sprintf("dependency %d not met", unmet))
			result.StepResults = append(result.StepResults, StepResult{
				Step:   step,
				Status: types.StepSkipped,
				Error:  fmt.Sprintf("dependency %d not met", unmet),
			})
			continue
		}

		stepResult := o.runStep(ctx, step, outputs)

		if stepResult.Status == types.StepFailed {
			choice := o.askFailureChoice(step, stepResult.Error)
			switch choice {
			case "retry":
				o.logger.Info("retrying failed step", zap.Int("step_id", step.ID))
				stepResult = o.runStep(ctx, step, outputs)
				if stepResult.Status == types.StepFailed {
					// A retried step gets no second chance.
					statuses[step.ID] = types.StepFailed
					result.StepResults = append(result.StepResults, stepResult)
					o.completeStep(step.ID, types.StepFailed, nil, stepResult.Error)
					status := runlog.StatusFailed
					if stepResult.IterationsExhausted {
						status = runlog.StatusMaxIterations
					}
					return o.finish(result, status, step.ID,
						fmt.Sprintf("step %d (%s) failed after retry: %s", step.ID, step.Name, stepResult.Error))
				}
			case "skip":
				statuses[step.ID] = types.StepSkipped
				stepResult.Status = types.StepSkipped
				result.StepResults = append(result.StepResults, stepResult)
				o.completeStep(step.ID, types.StepSkipped, nil, stepResult.Error)
				continue
			default:
				statuses[step.ID] = types.StepFailed
				result.StepResults = append(result.StepResults, stepResult)
				o.completeStep(step.ID, types.StepFailed, nil, stepResult.Error)
				return o.finish(result, runlog.StatusAborted, step.ID,
					fmt.Sprintf("run aborted at step %d (%s): %s", step.ID, step.Name, stepResult.Error))
			}
		}

		statuses[step.ID] = stepResult.Status
		result.StepResults = append(result.StepResults, stepResult)

		if stepResult.Status == types.StepSuccess {
			stepOutputs := types.StepOutputs{}
			if stepResult.Outputs != nil {
				stepOutputs = *stepResult.Outputs
			}
			outputs[step.ID] = stepOutputs
			o.summary.MergeStepOutputs(step, stepOutputs)
			o.recordRecoveries(ctx, step, stepResult)
			o.completeStep(step.ID, types.StepSuccess, stepResult.Outputs, "")
			o.notify(interact.LevelInfo, fmt.Sprintf("Step %d (%s) completed: %s", step.ID, step.Name, stepOutputs.Summary))
		}
	}

	return o.finish(result, runlog.StatusSuccess, 0, "")
}

// runStep builds a fresh context and hands the step to the executor.
func (o *Orchestrator) runStep(ctx context.Context, step types.DeploymentStep, outputs map[int]types.StepOutputs) StepResult {
	if o.log != nil {
		if err := o.log.BeginStep(step.ID); err != nil {
			o.logger.Warn("failed to mark step running", zap.Error(err))
		}
	}

	predecessors := make(map[int]types.StepOutputs, len(step.DependsOn))
	for _, dep := range step.DependsOn {
		if out, ok := outputs[dep]; ok {
			predecessors[dep] = out
		}
	}

	return o.executor.Execute(ctx, StepContext{
		Step:         step,
		Summary:      o.summary.Snapshot(),
		Predecessors: predecessors,
	})
}

// askFailureChoice asks the supervisor what to do with a failed step.
func (o *Orchestrator) askFailureChoice(step types.DeploymentStep, reason string) string {
	resp := o.handler.Ask(interact.Request{
		Question: fmt.Sprintf("Step %d (%s) failed: %s. How should the run proceed?", step.ID, step.Name, reason),
		Category: "failure",
		Options:  []string{"retry", "skip", "abort"},
		Default:  "retry",
	})
	if resp.Cancelled {
		return "abort"
	}
	switch resp.Answer {
	case "retry", "skip", "abort":
		return resp.Answer
	default:
		return "abort"
	}
}

// recordRecoveries turns failures that a successful step overcame into
// resolved issues and persistent lessons.
func (o *Orchestrator) recordRecoveries(ctx context.Context, step types.DeploymentStep, result StepResult) {
	var firstFailure *types.CommandRecord
	for i := range result.History {
		if !result.History[i].Success {
			firstFailure = &result.History[i]
			break
		}
	}
	if firstFailure == nil {
		return
	}

	errType := extract.ClassifyError(firstFailure.Stderr + "\n" + firstFailure.Stdout)
	issue := fmt.Sprintf("%s failed during %q", firstFailure.Command, step.Name)
	resolution := "resolved during step"
	if result.Outputs != nil && result.Outputs.Summary != "" {
		resolution = result.Outputs.Summary
	}

	o.summary.AddResolvedIssue(issue, resolution)
	if o.lessons != nil {
		if err := o.lessons.AddLesson(ctx, knowledge.Lesson{
			ErrorType:  string(errType),
			Issue:      issue,
			Resolution: resolution,
			Project:    o.summary.Snapshot().ProjectName,
		}); err != nil {
			o.logger.Warn("failed to store lesson", zap.Error(err))
		}
	}
}

func (o *Orchestrator) completeStep(stepID int, status types.StepStatus, outputs *types.StepOutputs, stepErr string) {
	if o.log == nil {
		return
	}
	if err := o.log.CompleteStep(stepID, status, outputs, stepErr); err != nil {
		o.logger.Warn("failed to persist step completion", zap.Error(err))
	}
}

func (o *Orchestrator) finish(result RunResult, status runlog.RunStatus, failedStep int, runErr string) RunResult {
	result.Status = string(status)
	result.FailedStep = failedStep
	result.Error = runErr
	result.Summary = o.summary.Snapshot()

	if o.log != nil {
		if err := o.log.Finalize(status, runErr); err != nil {
			o.logger.Warn("failed to finalize run log", zap.Error(err))
		}
	}
	if runErr != "" {
		o.notify(interact.LevelError, runErr)
		o.logger.Error("run ended", zap.String("status", string(status)), zap.String("reason", runErr))
	} else {
		o.logger.Info("run ended", zap.String("status", string(status)))
	}
	return result
}

func (o *Orchestrator) notify(level interact.Level, message string) {
	if o.handler != nil {
		o.handler.Notify(level, message)
	}
}

// unmetDependency returns the first dependency that did not end in
// success or skip, or 0 when all are satisfied.
func unmetDependency(step types.DeploymentStep, statuses map[int]types.StepStatus) int {
	for _, dep := range step.DependsOn {
		status, ok := statuses[dep]
		if !ok || (status != types.StepSuccess && status != types.StepSkipped) {
			return dep
		}
	}
	return 0
}
