package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/famulus-dev/famulus/llm"
	"github.com/famulus-dev/famulus/tools"
)

// Status is the terminal state of a run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusErrored   Status = "errored"
)

// Result summarizes a finished run.
type Result struct {
	Status    Status
	Usage     llm.Usage
	FinalText string
	Err       error
}

// Config fixes a run's model, limits, tools, and collaborators. The
// zero value is not usable; Registry, Requester, and Env are required.
type Config struct {
	Model    string
	Provider string

	// MaxSteps caps the number of tool calls dispatched in a run.
	// 0 means the default of 50.
	MaxSteps int

	Registry *tools.Registry

	// Policies overrides tool default policies for this engine's runs,
	// keyed by tool name.
	Policies map[string]tools.Policy

	Requester Requester
	Env       tools.Environment

	// MaxParallelTools bounds concurrent tool executions within a turn.
	// 0 means the default of 4.
	MaxParallelTools int

	// Doom-loop detection. Zero values take the package defaults.
	LoopWindow    int
	LoopThreshold int

	// UserInstructions is appended to the system prompt when set.
	UserInstructions string

	// ToolOutputLimits and ToolLineLimits override the built-in
	// truncation budgets, keyed by tool name.
	ToolOutputLimits map[string]int
	ToolLineLimits   map[string]int

	// MaxTokens is forwarded to the provider request when set.
	MaxTokens int

	EventBufferSize int
}

const (
	defaultMaxSteps    = 50
	defaultMaxParallel = 4
	defaultEventBuffer = 256
)

// Engine drives the agentic loop: model turn, tool dispatch, repeat. One
// run is active at a time; a second Run is rejected with ErrRunActive.
type Engine struct {
	client   *llm.Client
	config   Config
	emitter  *Emitter
	detector *LoopDetector

	cancelled atomic.Bool

	mu      sync.Mutex
	running bool
	closed  bool
	cancel  context.CancelFunc
}

// New creates an Engine from a configured client.
func New(client *llm.Client, config Config) *Engine {
	if config.MaxSteps <= 0 {
		config.MaxSteps = defaultMaxSteps
	}
	if config.MaxParallelTools <= 0 {
		config.MaxParallelTools = defaultMaxParallel
	}
	if config.Requester == nil {
		config.Requester = AllowAll
	}
	if config.EventBufferSize <= 0 {
		config.EventBufferSize = defaultEventBuffer
	}
	return &Engine{
		client:   client,
		config:   config,
		emitter:  NewEmitter("", config.EventBufferSize),
		detector: NewLoopDetector(config.LoopWindow, config.LoopThreshold),
	}
}

// Events returns the event channel for the host application. The channel
// closes when the engine is closed or a run is cancelled.
func (e *Engine) Events() <-chan Event {
	return e.emitter.Events()
}

// Cancel stops the active run cooperatively: no new model requests or tool
// executions start; in-flight work finishes on its own. Irreversible for
// the run.
func (e *Engine) Cancel() {
	e.cancelled.Store(true)
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Close releases the engine. Subsequent Run calls return ErrRunClosed.
func (e *Engine) Close() {
	e.Cancel()
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.emitter.Close()
}

// runState is created at run start and discarded at run end.
type runState struct {
	runID      string
	history    []llm.Message
	stepIndex  int
	usage      llm.Usage
	negotiator *negotiator
	finalText  string
}

// Run processes a single user query through the agentic loop and blocks
// until the run reaches a terminal state. The returned error covers
// preconditions only (ErrRunActive, ErrRunClosed); run outcomes, including
// failures, are reported in the Result.
func (e *Engine) Run(ctx context.Context, query string) (*Result, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrRunClosed
	}
	if e.running {
		e.mu.Unlock()
		return nil, ErrRunActive
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.running = true
	e.cancel = cancel
	e.cancelled.Store(false)
	e.mu.Unlock()

	defer func() {
		cancel()
		e.mu.Lock()
		e.running = false
		e.cancel = nil
		e.mu.Unlock()
	}()

	state := &runState{
		runID:      uuid.New().String(),
		history:    []llm.Message{llm.UserMessage(query)},
		negotiator: newNegotiator(e.config.Requester),
	}
	e.emitter.SetRunID(state.runID)
	e.detector.Reset()

	return e.loop(runCtx, state), nil
}

func (e *Engine) loop(ctx context.Context, state *runState) *Result {
	systemPrompt := BuildSystemPrompt(e.config.Env, e.config.Registry, e.config.UserInstructions)

	for {
		if e.isCancelled(ctx) {
			return e.cancelledResult(state)
		}

		req := llm.Request{
			Model:     e.config.Model,
			Provider:  e.config.Provider,
			System:    systemPrompt,
			Messages:  state.history,
			Tools:     e.config.Registry.LLMDefinitions(),
			MaxTokens: e.config.MaxTokens,
		}

		adapter, err := e.client.AdapterFor(req)
		if err != nil {
			return e.erroredResult(state, err)
		}

		raw, err := e.client.Complete(ctx, req)
		if err != nil {
			if e.isCancelled(ctx) {
				return e.cancelledResult(state)
			}
			return e.erroredResult(state, fmt.Errorf("model request: %w", err))
		}

		text := adapter.ExtractTextContent(raw)
		if text != "" {
			state.finalText = text
			e.emitter.Emit(EventTextDelta, map[string]interface{}{
				"text": text,
			})
		}

		turnUsage := adapter.ExtractTokenUsage(raw)
		state.usage = state.usage.Add(turnUsage)

		calls, err := adapter.ParseToolCalls(raw)
		if err != nil {
			return e.erroredResult(state, fmt.Errorf("parse tool calls: %w", err))
		}

		state.history = append(state.history, llm.AssistantMessage(text, calls))

		if len(calls) == 0 {
			e.emitTurnComplete(turnUsage)
			return &Result{
				Status:    StatusCompleted,
				Usage:     state.usage,
				FinalText: state.finalText,
			}
		}

		results, haltCall, haltErr := e.dispatchCalls(ctx, state, calls)
		if e.isCancelled(ctx) {
			return e.cancelledResult(state)
		}
		if haltErr != nil {
			return e.haltResult(state, haltErr, haltCall)
		}

		for _, result := range results {
			state.history = append(state.history, llm.ToolResultMessage(result))
		}
		e.emitTurnComplete(turnUsage)
	}
}

// dispatchCalls runs a turn's tool calls concurrently in response order.
// Each dispatched call increments the step index exactly once. A step
// limit breach or doom-loop detection stops further dispatch; outstanding
// calls finish before the halt error is returned.
func (e *Engine) dispatchCalls(ctx context.Context, state *runState, calls []llm.ToolCall) ([]llm.ToolResult, *llm.ToolCall, error) {
	results := make([]llm.ToolResult, len(calls))
	dispatched := make([]bool, len(calls))

	var wg sync.WaitGroup
	execGroup := new(errgroup.Group)
	execGroup.SetLimit(e.config.MaxParallelTools)

	var haltErr error
	var haltCall *llm.ToolCall

	for i, call := range calls {
		if e.isCancelled(ctx) {
			break
		}

		state.stepIndex++
		if state.stepIndex > e.config.MaxSteps {
			haltErr = ErrStepLimit
			break
		}

		if e.detector.Observe(call.Name, call.Input) {
			haltErr = ErrDoomLoop
			c := call
			haltCall = &c
			break
		}

		dispatched[i] = true
		wg.Add(1)
		go func(idx int, call llm.ToolCall, step int) {
			defer wg.Done()

			decision, err := e.resolvePermission(ctx, state, call)
			if err != nil {
				// Run context cancelled while suspended; the call
				// never started.
				dispatched[idx] = false
				return
			}

			execGroup.Go(func() error {
				results[idx] = e.runCall(ctx, call, step, decision)
				return nil
			})
		}(i, call, state.stepIndex)
	}

	wg.Wait()
	_ = execGroup.Wait()

	// Compact to the results that actually ran, preserving call order.
	var collected []llm.ToolResult
	for i := range results {
		if dispatched[i] {
			collected = append(collected, results[i])
		}
	}
	return collected, haltCall, haltErr
}

// resolvePermission determines whether a call may execute, prompting the
// Requester when the effective policy is ask and no session approval
// exists.
func (e *Engine) resolvePermission(ctx context.Context, state *runState, call llm.ToolCall) (Decision, error) {
	policy := e.effectivePolicy(call.Name)
	if policy == tools.PolicyAllow || state.negotiator.sessionApproved(call.Name) {
		return DecisionApprove, nil
	}

	e.emitter.Emit(EventPermissionRequest, map[string]interface{}{
		"call_id":   call.ID,
		"tool_name": call.Name,
		"input":     string(call.Input),
	})

	decision, err := state.negotiator.negotiate(ctx, state.runID, call)
	if err != nil {
		return DecisionDeny, err
	}

	e.emitter.Emit(EventPermissionDecision, map[string]interface{}{
		"call_id":  call.ID,
		"decision": string(decision),
	})
	return decision, nil
}

func (e *Engine) effectivePolicy(name string) tools.Policy {
	if policy, ok := e.config.Policies[name]; ok {
		return policy
	}
	if tool := e.config.Registry.Get(name); tool != nil {
		return tool.Definition.DefaultPolicy
	}
	// Unknown tools execute nothing; runCall reports the error.
	return tools.PolicyAllow
}

// runCall executes one tool call (or synthesizes a denial) and emits the
// tool_start/tool_result pair.
func (e *Engine) runCall(ctx context.Context, call llm.ToolCall, step int, decision Decision) llm.ToolResult {
	e.emitter.Emit(EventToolStart, map[string]interface{}{
		"call_id":   call.ID,
		"tool_name": call.Name,
		"step":      step,
		"input":     string(call.Input),
	})

	result := e.executeCall(ctx, call, decision)

	e.emitter.Emit(EventToolResult, map[string]interface{}{
		"call_id":   call.ID,
		"tool_name": call.Name,
		"output":    result.Payload,
		"is_error":  result.IsError(),
	})
	return result
}

func (e *Engine) executeCall(ctx context.Context, call llm.ToolCall, decision Decision) llm.ToolResult {
	if decision == DecisionDeny {
		return llm.ErrorResult(call.ID, "denied by user")
	}

	tool := e.config.Registry.Get(call.Name)
	if tool == nil {
		return llm.ErrorResult(call.ID, fmt.Sprintf("Unknown tool: %s", call.Name))
	}

	output, err := tool.Executor(ctx, call.Input, e.config.Env)
	if err != nil {
		return llm.ErrorResult(call.ID, fmt.Sprintf("Tool error (%s): %v", call.Name, err))
	}

	truncated := tools.TruncateToolOutput(output, call.Name, e.config.ToolOutputLimits, e.config.ToolLineLimits)
	return llm.SuccessResult(call.ID, truncated)
}

func (e *Engine) emitTurnComplete(turnUsage llm.Usage) {
	e.emitter.Emit(EventTurnComplete, map[string]interface{}{
		"input_tokens":  turnUsage.InputTokens,
		"output_tokens": turnUsage.OutputTokens,
		"total_tokens":  turnUsage.TotalTokens,
	})
}

func (e *Engine) isCancelled(ctx context.Context) bool {
	return e.cancelled.Load() || ctx.Err() != nil
}

// cancelledResult closes the stream without a terminal event; closure
// after neither turn_complete nor error is how consumers recognize
// cancellation.
func (e *Engine) cancelledResult(state *runState) *Result {
	e.emitter.Close()
	return &Result{
		Status:    StatusCancelled,
		Usage:     state.usage,
		FinalText: state.finalText,
		Err:       nil,
	}
}

func (e *Engine) erroredResult(state *runState, err error) *Result {
	e.emitter.Emit(EventError, map[string]interface{}{
		"error": err.Error(),
	})
	return &Result{
		Status:    StatusErrored,
		Usage:     state.usage,
		FinalText: state.finalText,
		Err:       err,
	}
}

// haltResult terminates a run stopped by the step limit or the doom-loop
// detector, emitting the matching terminal event.
func (e *Engine) haltResult(state *runState, err error, call *llm.ToolCall) *Result {
	if err == ErrDoomLoop && call != nil {
		e.emitter.Emit(EventDoomLoop, map[string]interface{}{
			"tool_name": call.Name,
			"input":     string(call.Input),
		})
	} else {
		e.emitter.Emit(EventError, map[string]interface{}{
			"error": err.Error(),
			"step":  state.stepIndex,
		})
	}
	return &Result{
		Status:    StatusErrored,
		Usage:     state.usage,
		FinalText: state.finalText,
		Err:       err,
	}
}
