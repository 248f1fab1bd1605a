package orchestrator

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"autodeploy/internal/extract"
	"autodeploy/internal/interact"
	"autodeploy/internal/knowledge"
	"autodeploy/internal/logging"
	"autodeploy/internal/loopdetect"
	"autodeploy/internal/oracle"
	"autodeploy/internal/session"
	"autodeploy/internal/types"
)

// ExecutorConfig bounds one step execution.
type ExecutorConfig struct {
	MaxIterations  int
	TotalTimeout   time.Duration
	IdleTimeout    time.Duration
	LoopDetection  bool
	LoopConfig     loopdetect.Config
	LessonsPerType int

	// Mirror receives live command output when non-nil, so an operator
	// watching the console sees progress before extraction.
	Mirror io.Writer
}

func (c ExecutorConfig) withDefaults() ExecutorConfig {
	if c.MaxIterations == 0 {
		c.MaxIterations = 10
	}
	if c.TotalTimeout == 0 {
		c.TotalTimeout = 10 * time.Minute
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = time.Minute
	}
	if c.LessonsPerType == 0 {
		c.LessonsPerType = 3
	}
	return c
}

// Recorder receives state-changing events as they happen so progress
// is observable mid-step. The run log implements it.
type Recorder interface {
	RecordCommand(stepID int, rec types.CommandRecord) error
	RecordInteraction(stepID int, interaction types.Interaction) error
}

// StepExecutor runs a single plan step to a terminal state. One
// instance is reused across steps; all per-step state lives in the
// StepContext and the intervention manager, which is reset per step.
type StepExecutor struct {
	cfg          ExecutorConfig
	oracle       oracle.Oracle
	session      session.Session
	handler      interact.Handler
	extractor    *extract.Extractor
	detector     *loopdetect.Detector
	intervention *loopdetect.Manager
	lessons      *knowledge.Store // optional
	recorder     Recorder         // optional
	logger       *zap.Logger
}

// NewStepExecutor wires an executor from its collaborators. lessons
// may be nil when cross-run knowledge is disabled.
func NewStepExecutor(cfg ExecutorConfig, orc oracle.Oracle, sess session.Session, handler interact.Handler, lessons *knowledge.Store, logger *zap.Logger) *StepExecutor {
	if logger == nil {
		logger = logging.Nop()
	}
	return &StepExecutor{
		cfg:          cfg.withDefaults(),
		oracle:       orc,
		session:      sess,
		handler:      handler,
		extractor:    extract.NewExtractor(),
		detector:     loopdetect.NewDetector(cfg.LoopConfig),
		intervention: loopdetect.NewManager(),
		lessons:      lessons,
		logger:       logger,
	}
}

// Execute drives one step until it succeeds, fails, or exhausts its
// iteration budget. Context cancellation fails the step.
func (e *StepExecutor) Execute(ctx context.Context, stepCtx StepContext) StepResult {
	step := stepCtx.Step
	e.intervention.Reset()

	result := StepResult{Step: step, Status: types.StepRunning}
	temperature := 0.0

	e.logger.Info("step started",
		zap.Int("step_id", step.ID),
		zap.String("name", step.Name))

	for iteration := 1; iteration <= e.cfg.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return e.fail(result, stepCtx, fmt.Sprintf("step cancelled: %v", err))
		}
		result.Iterations = iteration

		// Loop detection runs before each oracle call unless a human
		// intervention window is open.
		if e.cfg.LoopDetection && !e.intervention.ShouldSkip() {
			if detection := e.detector.Check(stepCtx.History); detection.IsLoop {
				decision := e.intervention.Decide(detection)
				e.logger.Warn("loop detected",
					zap.Int("step_id", step.ID),
					zap.String("type", string(detection.Type)),
					zap.Float64("confidence", detection.Confidence),
					zap.String("intervention", string(decision.Kind)))

				temperature = decision.Temperature
				stepCtx.Reflection = decision.Reflection

				if decision.Kind == loopdetect.InterventionAskUser {
					failed, done := e.askForLoopGuidance(&stepCtx, detection)
					if done {
						return e.fail(result, stepCtx, failed)
					}
				}
			}
		}

		prompt := buildStepPrompt(stepCtx, summaryToText(stepCtx.Summary))
		response, err := e.oracle.Complete(ctx, oracle.Request{
			System:      stepSystemPrompt,
			Prompt:      prompt,
			Temperature: temperature,
		})
		if err != nil {
			return e.fail(result, stepCtx, fmt.Sprintf("oracle call failed: %v", err))
		}

		action, err := oracle.ParseAction(response)
		if err != nil {
			// Malformed responses fail the step rather than being
			// retried silently.
			return e.fail(result, stepCtx, fmt.Sprintf("unparseable oracle response: %v", err))
		}

		// Reflection is consumed by the prompt it was injected into.
		stepCtx.Reflection = ""

		switch action.Type {
		case oracle.ActionExecute:
			rec := e.runCommand(ctx, action)
			stepCtx.History = append(stepCtx.History, rec)
			e.record(step.ID, rec)
			e.attachLessons(ctx, &stepCtx, rec)

		case oracle.ActionStepDone:
			result.Status = types.StepSuccess
			result.Outputs = successOutputs(action, step)
			result.History = stepCtx.History
			result.Interactions = stepCtx.Interactions
			e.logger.Info("step succeeded",
				zap.Int("step_id", step.ID),
				zap.Int("iterations", iteration))
			return result

		case oracle.ActionStepFailed:
			msg := action.Message
			if msg == "" {
				msg = "oracle declared the step failed"
			}
			return e.fail(result, stepCtx, msg)

		case oracle.ActionAskUser:
			resp := e.handler.Ask(interact.Request{
				Question: action.Question,
				Category: "oracle",
				Options:  action.Options,
			})
			if resp.Cancelled {
				return e.fail(result, stepCtx, "user cancelled interaction")
			}
			interaction := types.Interaction{
				Question: action.Question,
				Response: resp.Answer,
			}
			stepCtx.Interactions = append(stepCtx.Interactions, interaction)
			e.recordInteraction(step.ID, interaction)
		}
	}

	result.IterationsExhausted = true
	return e.fail(result, stepCtx, fmt.Sprintf("exceeded max iterations (%d)", e.cfg.MaxIterations))
}

// successOutputs guarantees a successful step always carries a
// non-empty summary forward, synthesizing one when the oracle's
// step_done omitted it.
func successOutputs(action oracle.Action, step types.DeploymentStep) *types.StepOutputs {
	outputs := action.Outputs
	if outputs == nil {
		outputs = &types.StepOutputs{}
	}
	if strings.TrimSpace(outputs.Summary) == "" {
		if msg := strings.TrimSpace(action.Message); msg != "" {
			outputs.Summary = msg
		} else {
			outputs.Summary = step.Name + " completed"
		}
	}
	return outputs
}

// askForLoopGuidance escalates a loop to the human. Returns a failure
// message and true when the step must fail.
func (e *StepExecutor) askForLoopGuidance(stepCtx *StepContext, detection loopdetect.Result) (string, bool) {
	resp := e.handler.Ask(interact.Request{
		Question: fmt.Sprintf("The agent appears stuck on step %q: %s. How should it proceed?", stepCtx.Step.Name, detection.Evidence),
		Category: "loop",
		Options:  []string{"let it keep trying", "fail this step"},
		Default:  "let it keep trying",
	})
	if resp.Cancelled {
		return "user cancelled loop intervention", true
	}
	// Only the canned option fails the step; free text mentioning
	// failure is guidance, not a verdict.
	if strings.EqualFold(strings.TrimSpace(resp.Answer), "fail this step") {
		return "user chose to fail the step during loop intervention", true
	}

	interaction := types.Interaction{
		Question: "loop intervention: how should the agent proceed?",
		Response: resp.Answer,
	}
	stepCtx.Interactions = append(stepCtx.Interactions, interaction)
	e.recordInteraction(stepCtx.Step.ID, interaction)
	// Guidance other than the canned option is treated as direction
	// for the next prompt.
	if resp.Answer != "let it keep trying" {
		stepCtx.Reflection = "The operator was consulted and said: " + resp.Answer
	}
	e.intervention.ActivateUserMode()
	return "", false
}

// runCommand executes one oracle-chosen command with smart timeouts
// and returns the full record, extraction included.
func (e *StepExecutor) runCommand(ctx context.Context, action oracle.Action) types.CommandRecord {
	opts := session.SmartTimeouts(action.Command, e.cfg.TotalTimeout, e.cfg.IdleTimeout)
	opts.Mirror = e.cfg.Mirror

	res, err := e.session.Run(ctx, action.Command, opts)
	if err != nil {
		// Session-level errors become a failed record the oracle can
		// react to on the next iteration.
		res = session.Result{
			Command:  action.Command,
			Stderr:   err.Error(),
			ExitCode: -1,
		}
	}

	extracted := e.extractor.Extract(res.Stdout, res.Stderr, res.Ok(), res.ExitCode, action.Command)
	rec := types.CommandRecord{
		Command:   action.Command,
		Reasoning: action.Reasoning,
		Success:   res.Ok(),
		ExitCode:  res.ExitCode,
		Stdout:    res.Stdout,
		Stderr:    res.Stderr,
		Extracted: extract.Format(extracted),
		Timestamp: time.Now().UTC(),
	}

	e.logger.Info("command executed",
		zap.String("command", action.Command),
		zap.Int("exit_code", res.ExitCode),
		zap.Bool("success", rec.Success))
	return rec
}

// attachLessons looks up prior fixes matching the latest failure and
// attaches them to the context, deduplicated.
func (e *StepExecutor) attachLessons(ctx context.Context, stepCtx *StepContext, rec types.CommandRecord) {
	if e.lessons == nil || rec.Success {
		return
	}
	errType := extract.ClassifyError(rec.Stderr + "\n" + rec.Stdout)
	if errType == extract.ErrUnknown {
		return
	}
	found, err := e.lessons.Lookup(ctx, string(errType), e.cfg.LessonsPerType)
	if err != nil {
		e.logger.Warn("lesson lookup failed", zap.Error(err))
		return
	}
	for _, lesson := range found {
		line := fmt.Sprintf("%s: %s (fix: %s)", lesson.ErrorType, lesson.Issue, lesson.Resolution)
		if !contains(stepCtx.Lessons, line) {
			stepCtx.Lessons = append(stepCtx.Lessons, line)
		}
	}
}

func (e *StepExecutor) fail(result StepResult, stepCtx StepContext, msg string) StepResult {
	result.Status = types.StepFailed
	result.Error = msg
	result.History = stepCtx.History
	result.Interactions = stepCtx.Interactions
	e.logger.Warn("step failed",
		zap.Int("step_id", stepCtx.Step.ID),
		zap.String("reason", msg))
	return result
}

func (e *StepExecutor) record(stepID int, rec types.CommandRecord) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.RecordCommand(stepID, rec); err != nil {
		e.logger.Warn("failed to persist command record", zap.Error(err))
	}
}

func (e *StepExecutor) recordInteraction(stepID int, interaction types.Interaction) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.RecordInteraction(stepID, interaction); err != nil {
		e.logger.Warn("failed to persist interaction", zap.Error(err))
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
