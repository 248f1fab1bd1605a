package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autodeploy/internal/interact"
	"autodeploy/internal/oracle"
	"autodeploy/internal/session"
	"autodeploy/internal/types"
)

// fakeOracle replays scripted responses and records every request it
// receives. When the script runs out it repeats the last response.
type fakeOracle struct {
	responses []string
	requests  []oracle.Request
}

func (f *fakeOracle) Complete(_ context.Context, req oracle.Request) (string, error) {
	f.requests = append(f.requests, req)
	idx := len(f.requests) - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx], nil
}

// fakeSession maps commands to canned results. Unknown commands
// succeed with empty output.
type fakeSession struct {
	results map[string]session.Result
	ran     []string
}

func (f *fakeSession) Run(_ context.Context, command string, _ session.RunOptions) (session.Result, error) {
	f.ran = append(f.ran, command)
	if res, ok := f.results[command]; ok {
		res.Command = command
		return res, nil
	}
	return session.Result{Command: command, ExitCode: 0}, nil
}

func (f *fakeSession) Close() error { return nil }

func autoAnswer(answer string) interact.Handler {
	return &interact.CallbackHandler{
		AskFunc: func(interact.Request) interact.Response {
			return interact.Response{Answer: answer}
		},
	}
}

func execAction(command string) string {
	return fmt.Sprintf(`{"action":"execute","command":%q,"reasoning":"test"}`, command)
}

func testStep() types.DeploymentStep {
	return types.DeploymentStep{
		ID:              1,
		Name:            "Start application",
		Category:        "DEPLOY",
		Description:     "start the app",
		SuccessCriteria: "app responds on its port",
	}
}

func TestExecutorStepDone(t *testing.T) {
	orc := &fakeOracle{responses: []string{
		execAction("npm start"),
		`{"action":"step_done","message":"ok","outputs":{"summary":"app started","key_info":{"port":3000}}}`,
	}}
	sess := &fakeSession{results: map[string]session.Result{
		"npm start": {Stdout: "Listening on port 3000", ExitCode: 0},
	}}

	e := NewStepExecutor(ExecutorConfig{}, orc, sess, autoAnswer(""), nil, nil)
	result := e.Execute(context.Background(), StepContext{Step: testStep()})

	assert.Equal(t, types.StepSuccess, result.Status)
	require.NotNil(t, result.Outputs)
	assert.Equal(t, "app started", result.Outputs.Summary)
	assert.Equal(t, float64(3000), result.Outputs.KeyInfo["port"])
	assert.Equal(t, []string{"npm start"}, sess.ran)
	require.Len(t, result.History, 1)
	assert.True(t, result.History[0].Success)
	assert.NotEmpty(t, result.History[0].Extracted)
}

func TestExecutorStepDoneWithoutOutputs(t *testing.T) {
	// A success must always carry a summary forward, even when the
	// oracle omits the outputs block entirely.
	t.Run("falls back to the message", func(t *testing.T) {
		orc := &fakeOracle{responses: []string{`{"action":"step_done","message":"ok"}`}}

		e := NewStepExecutor(ExecutorConfig{}, orc, &fakeSession{}, autoAnswer(""), nil, nil)
		result := e.Execute(context.Background(), StepContext{Step: testStep()})

		assert.Equal(t, types.StepSuccess, result.Status)
		require.NotNil(t, result.Outputs)
		assert.Equal(t, "ok", result.Outputs.Summary)
	})

	t.Run("falls back to the step name", func(t *testing.T) {
		orc := &fakeOracle{responses: []string{`{"action":"step_done"}`}}

		e := NewStepExecutor(ExecutorConfig{}, orc, &fakeSession{}, autoAnswer(""), nil, nil)
		result := e.Execute(context.Background(), StepContext{Step: testStep()})

		assert.Equal(t, types.StepSuccess, result.Status)
		require.NotNil(t, result.Outputs)
		assert.Equal(t, "Start application completed", result.Outputs.Summary)
	})

	t.Run("empty summary string is replaced", func(t *testing.T) {
		orc := &fakeOracle{responses: []string{`{"action":"step_done","message":"done","outputs":{"summary":"  "}}`}}

		e := NewStepExecutor(ExecutorConfig{}, orc, &fakeSession{}, autoAnswer(""), nil, nil)
		result := e.Execute(context.Background(), StepContext{Step: testStep()})

		assert.Equal(t, types.StepSuccess, result.Status)
		require.NotNil(t, result.Outputs)
		assert.Equal(t, "done", result.Outputs.Summary)
	})
}

func TestExecutorStepFailed(t *testing.T) {
	orc := &fakeOracle{responses: []string{
		`{"action":"step_failed","message":"no package.json present"}`,
	}}

	e := NewStepExecutor(ExecutorConfig{}, orc, &fakeSession{}, autoAnswer(""), nil, nil)
	result := e.Execute(context.Background(), StepContext{Step: testStep()})

	assert.Equal(t, types.StepFailed, result.Status)
	assert.Equal(t, "no package.json present", result.Error)
}

func TestExecutorMalformedResponseFailsStep(t *testing.T) {
	orc := &fakeOracle{responses: []string{"I would suggest running npm install first."}}

	e := NewStepExecutor(ExecutorConfig{}, orc, &fakeSession{}, autoAnswer(""), nil, nil)
	result := e.Execute(context.Background(), StepContext{Step: testStep()})

	assert.Equal(t, types.StepFailed, result.Status)
	assert.Contains(t, result.Error, "unparseable")
}

func TestExecutorAskUserFlow(t *testing.T) {
	orc := &fakeOracle{responses: []string{
		`{"action":"ask_user","question":"Which port should the app bind?","options":["3000","8080"]}`,
		`{"action":"step_done","message":"ok","outputs":{"summary":"bound to 8080"}}`,
	}}

	e := NewStepExecutor(ExecutorConfig{}, orc, &fakeSession{}, autoAnswer("8080"), nil, nil)
	result := e.Execute(context.Background(), StepContext{Step: testStep()})

	assert.Equal(t, types.StepSuccess, result.Status)
	require.Len(t, result.Interactions, 1)
	assert.Equal(t, "8080", result.Interactions[0].Response)

	// The answer is visible to the next prompt.
	assert.Contains(t, orc.requests[1].Prompt, "A: 8080")
}

func TestExecutorUserCancellationFailsStep(t *testing.T) {
	orc := &fakeOracle{responses: []string{
		`{"action":"ask_user","question":"Proceed?"}`,
	}}
	cancelling := &interact.CallbackHandler{
		AskFunc: func(interact.Request) interact.Response {
			return interact.Response{Cancelled: true}
		},
	}

	e := NewStepExecutor(ExecutorConfig{}, orc, &fakeSession{}, cancelling, nil, nil)
	result := e.Execute(context.Background(), StepContext{Step: testStep()})

	assert.Equal(t, types.StepFailed, result.Status)
	assert.Contains(t, result.Error, "cancelled")
}

func TestExecutorMaxIterations(t *testing.T) {
	orc := &fakeOracle{responses: []string{execAction("echo probe")}}

	e := NewStepExecutor(ExecutorConfig{MaxIterations: 3}, orc, &fakeSession{}, autoAnswer(""), nil, nil)
	result := e.Execute(context.Background(), StepContext{Step: testStep()})

	assert.Equal(t, types.StepFailed, result.Status)
	assert.Contains(t, result.Error, "max iterations")
	assert.Equal(t, 3, result.Iterations)
	assert.True(t, result.IterationsExhausted)
}

func TestExecutorLadderEscalation(t *testing.T) {
	// The oracle repeats the same failing command forever; the ladder
	// must fire in order: temperature nudge, reflection, human ask.
	orc := &fakeOracle{responses: []string{execAction("systemctl start app")}}
	sess := &fakeSession{results: map[string]session.Result{
		"systemctl start app": {Stderr: "Job for app.service failed.", ExitCode: 1},
	}}

	var asked []string
	handler := &interact.CallbackHandler{
		AskFunc: func(req interact.Request) interact.Response {
			asked = append(asked, req.Question)
			return interact.Response{Answer: "let it keep trying"}
		},
	}

	e := NewStepExecutor(ExecutorConfig{MaxIterations: 8, LoopDetection: true}, orc, sess, handler, nil, nil)
	result := e.Execute(context.Background(), StepContext{Step: testStep()})
	assert.Equal(t, types.StepFailed, result.Status)

	// History needs 3 records before detection can fire, so the first
	// three requests run at default temperature.
	var temps []float64
	reflectedAt := -1
	for i, req := range orc.requests {
		temps = append(temps, req.Temperature)
		if reflectedAt < 0 && strings.Contains(req.Prompt, "MANDATORY REFLECTION") {
			reflectedAt = i
		}
	}

	require.GreaterOrEqual(t, len(temps), 6)
	assert.Equal(t, 0.0, temps[0])
	assert.Equal(t, 0.3, temps[3], "first detection nudges temperature")
	assert.Equal(t, 0.5, temps[4], "second detection raises it further")
	assert.Equal(t, 4, reflectedAt, "reflection is injected on the second detection")

	// Third detection asks the human exactly once; the skip window
	// then suppresses further escalation.
	assert.Len(t, asked, 1)
	assert.Contains(t, asked[0], "stuck")
}

func TestExecutorLoopGuidanceCanFailStep(t *testing.T) {
	orc := &fakeOracle{responses: []string{execAction("systemctl start app")}}
	sess := &fakeSession{results: map[string]session.Result{
		"systemctl start app": {Stderr: "Job for app.service failed.", ExitCode: 1},
	}}

	e := NewStepExecutor(ExecutorConfig{MaxIterations: 10, LoopDetection: true}, orc, sess, autoAnswer("fail this step"), nil, nil)
	result := e.Execute(context.Background(), StepContext{Step: testStep()})

	assert.Equal(t, types.StepFailed, result.Status)
	assert.Contains(t, result.Error, "loop intervention")
}

func TestExecutorLoopGuidanceFreeTextIsNotAVerdict(t *testing.T) {
	// Guidance that merely mentions failure must be treated as
	// direction for the next prompt, not as the canned fail option.
	orc := &fakeOracle{responses: []string{execAction("systemctl start app")}}
	sess := &fakeSession{results: map[string]session.Result{
		"systemctl start app": {Stderr: "Job for app.service failed.", ExitCode: 1},
	}}

	guidance := "retry without failing the health check"
	e := NewStepExecutor(ExecutorConfig{MaxIterations: 8, LoopDetection: true}, orc, sess, autoAnswer(guidance), nil, nil)
	result := e.Execute(context.Background(), StepContext{Step: testStep()})

	assert.Equal(t, types.StepFailed, result.Status)
	assert.Contains(t, result.Error, "max iterations")
	assert.NotContains(t, result.Error, "loop intervention")

	var guided bool
	for _, req := range orc.requests {
		if strings.Contains(req.Prompt, guidance) {
			guided = true
		}
	}
	assert.True(t, guided, "operator guidance reaches a later prompt")
}

func TestExecutorSessionErrorBecomesFailedRecord(t *testing.T) {
	orc := &fakeOracle{responses: []string{
		execAction("run-thing"),
		`{"action":"step_failed","message":"giving up"}`,
	}}
	sess := &erroringSession{}

	e := NewStepExecutor(ExecutorConfig{}, orc, sess, autoAnswer(""), nil, nil)
	result := e.Execute(context.Background(), StepContext{Step: testStep()})

	assert.Equal(t, types.StepFailed, result.Status)
	require.Len(t, result.History, 1)
	assert.False(t, result.History[0].Success)
	assert.Contains(t, result.History[0].Stderr, "boom")
}

type erroringSession struct{}

func (s *erroringSession) Run(context.Context, string, session.RunOptions) (session.Result, error) {
	return session.Result{}, fmt.Errorf("boom")
}

func (s *erroringSession) Close() error { return nil }
