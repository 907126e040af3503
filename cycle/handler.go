package cycle

import (
	"context"
	"time"

	"github.com/agentforge/conductor/tools"
	"github.com/agentforge/conductor/tracing"
	"github.com/agentforge/conductor/types"
	"github.com/agentforge/conductor/workflow"
	"go.uber.org/zap"
)

// Handler runs one full cycle pass (sub-steps A through F) for a single
// agent. One Handler is shared across every agent; all per-cycle state
// lives in a fresh Context.
type Handler struct {
	assembler *PromptAssembler
	caller    *LLMCaller
	workflows *workflow.Manager
	tools     *tools.Executor
	scheduler *Scheduler
	logger    *zap.Logger
}

// NewHandler wires the five collaborators a cycle pass needs.
func NewHandler(assembler *PromptAssembler, caller *LLMCaller, workflows *workflow.Manager, executor *tools.Executor, scheduler *Scheduler, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{assembler: assembler, caller: caller, workflows: workflows, tools: executor, scheduler: scheduler, logger: logger}
}

// Run executes one cycle for agent, then hands the resulting Context to the
// Next-Step Scheduler. lastCycleErr carries the previous cycle's failure
// (nil if the previous cycle succeeded or this is the first cycle), used
// by the Prompt Assembler's Admin status line. It returns the completed
// Context so a caller that also implements Rescheduler (the Agent Manager)
// can record c.Err for the next cycle's lastCycleErr without the Scheduler
// needing to carry that detail across its own ScheduleCycle boundary.
func (h *Handler) Run(ctx context.Context, agent *types.Agent, retryCount int, lastCycleErr *types.Error) *Context {
	cc := NewContext(agent, retryCount)

	ctx, endSpan := tracing.StartCycleSpan(ctx, agent.ID, string(agent.Type), string(agent.GetState()))
	defer func() { endSpan(errFromContext(cc)) }()

	history, maxTokens, err := h.assembler.Assemble(agent, lastCycleErr)
	if err != nil {
		cc.Err = types.NewError(types.ExceptionUnknown, "prompt assembly").WithCause(err)
		cc.TriggerFailover = true
		h.scheduler.Next(ctx, cc)
		return cc
	}
	cc.History = history

	raw, _, streamErr := h.caller.Call(ctx, agent, history, maxTokens)
	cc.RawResponse = raw
	cc.EndedAt = time.Now()

	if streamErr != nil {
		DetermineOutcome(cc, false, nil, false, false, streamErr)
		h.scheduler.Next(ctx, cc)
		return cc
	}

	thought, withoutThought, hasThought := ExtractThought(raw)
	if hasThought {
		h.logger.Debug("agent thought", zap.String("agent_id", agent.ID), zap.String("thought", thought))
	}

	toolCalls, _, _ := ExtractToolCalls(withoutThought, h.tools.ToolNames())

	dispatchText := workflow.InjectRawPlanBody(raw)
	_, stateApplied := h.workflows.RequestStateChange(agent, raw)

	wfResult, workflowFired, wfErr := h.workflows.Dispatch(ctx, agent, dispatchText)
	if wfErr != nil {
		h.logger.Warn("workflow dispatch error", zap.String("agent_id", agent.ID), zap.Error(wfErr))
		workflowFired = false
	}

	// The raw response (carrying any tool-call/state/workflow XML) is
	// recorded once, before any tool results, per spec.md §4.7 sub-step D.
	agent.AppendHistory(types.NewAssistantMessage(raw))

	var results []types.ToolResult
	if len(toolCalls) > 0 {
		results = h.tools.Execute(ctx, agent, toolCalls)
		for _, r := range results {
			agent.AppendHistory(r.ToMessage())
		}
	}

	if workflowFired && wfResult.Success {
		if wfResult.NextState != "" {
			agent.SetState(wfResult.NextState)
		}
		if wfResult.NextStatus != "" {
			agent.SetStatus(wfResult.NextStatus)
		}
		if wfResult.FrameworkNotification != "" {
			agent.AppendHistory(types.NewFrameworkNotification(wfResult.FrameworkNotification))
		}
	}

	DetermineOutcome(cc, hasThought, results, stateApplied, workflowFired, nil)
	h.scheduler.Next(ctx, cc)
	return cc
}

// errFromContext surfaces cc.Err as a plain error for the cycle span, since
// Context carries its own *types.Error rather than the stdlib error type.
func errFromContext(cc *Context) error {
	if cc.Err == nil {
		return nil
	}
	return cc.Err
}
