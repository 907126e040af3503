package cycle

import "github.com/agentforge/conductor/types"

// DetermineOutcome is sub-step E: classifies a completed cycle pass into
// the Context's outcome flags, per spec.md §4.7's bullet list.
func DetermineOutcome(c *Context, thoughtProduced bool, toolResults []types.ToolResult, stateChangeRequested, workflowFired bool, streamErr *types.Error) {
	c.ThoughtProduced = thoughtProduced
	c.StateChangeRequested = stateChangeRequested || workflowFired
	c.ActionTaken = len(toolResults) > 0 || c.StateChangeRequested

	if streamErr != nil {
		c.Err = streamErr
		c.TriggerFailover = !types.IsRetryableKind(streamErr.Kind)
		return
	}

	c.CycleCompletedSuccessfully = true
	c.Agent.FailedModelsThisCycle = nil

	for _, r := range toolResults {
		if !r.IsError() {
			c.ExecutedToolSuccessfully = true
			c.NeedsReactivation = true
			break
		}
	}
	if c.StateChangeRequested {
		c.NeedsReactivation = true
	}
}
