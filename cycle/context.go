// Package cycle implements the Cycle Handler (C7): one pass of prompt
// assembly, LLM streaming, output parsing, tool execution, outcome
// classification, and next-step scheduling for a single agent. Split into
// the same four sub-steps as the system this was ported from
// (prompt_assembler / llm_caller / output_parser+outcome_determiner /
// next_step_scheduler), one file per sub-step, tied together by Handler in
// handler.go.
package cycle

import (
	"time"

	"github.com/agentforge/conductor/types"
)

// Context carries one cycle's mutable state from assembly through
// scheduling. Mirrors spec.md §4.7's CycleContext exactly: the outcome
// flags are set by the Output Parser / Outcome Determiner and read by the
// Next-Step Scheduler, never by the caller.
type Context struct {
	Agent       *types.Agent
	RetryCount  int
	History     []types.Message // local copy used for the LLM call; agent.History is untouched until append time
	SystemState string          // the state name the prompt was assembled for

	StartedAt time.Time
	EndedAt   time.Time

	RawResponse string // accumulated assistant text for this cycle

	// Outcome flags, per spec.md §4.7.
	CycleCompletedSuccessfully bool
	TriggerFailover            bool
	NeedsReactivation          bool
	ExecutedToolSuccessfully   bool
	StateChangeRequested       bool
	ThoughtProduced            bool
	ActionTaken                bool
	// SuppressReactivation is set by the loop detector's 12-cycle
	// completion nudge: the cycle still completed successfully, but
	// reactivation is withheld for this one step.
	SuppressReactivation bool

	Err *types.Error
}

// NewContext starts a Context for one cycle pass.
func NewContext(agent *types.Agent, retryCount int) *Context {
	return &Context{
		Agent:      agent,
		RetryCount: retryCount,
		StartedAt:  time.Now(),
	}
}
