// Package workflow implements the Workflow Manager (C6): the three
// per-agent-type state graphs, state-to-prompt/token-budget mapping, and
// dispatch of XML-trigger-tagged workflows parsed from an assistant's raw
// response. Grounded on the teacher's state-machine-adjacent
// agent/base.go lifecycle hooks, generalized to spec.md's fixed graphs —
// the teacher's own generic DAG engine (workflow/dag*.go) models a
// different problem (arbitrary step graphs) and was not reusable here.
package workflow

import "github.com/agentforge/conductor/types"

// StateSpec describes one node of an agent-type's state graph.
type StateSpec struct {
	// PromptTemplate is injected as message[0] (the system prompt) for
	// every cycle run in this state.
	PromptTemplate string
	// MaxTokens overrides the default per-call token budget while in this
	// state; zero means "use the provider default".
	MaxTokens int
	// Transitions lists the states this one may legally move to, via
	// either a <request_state> tag or a workflow's next_state.
	Transitions []types.State
}

// Graph is one agent type's complete state machine.
type Graph struct {
	states map[types.State]StateSpec
	start  types.State
}

// NewGraph constructs a Graph. start must be a key of states.
func NewGraph(start types.State, states map[types.State]StateSpec) *Graph {
	return &Graph{states: states, start: start}
}

// Start returns the graph's startup state.
func (g *Graph) Start() types.State { return g.start }

// Spec returns the StateSpec for s, or false if s is not part of this
// graph.
func (g *Graph) Spec(s types.State) (StateSpec, bool) {
	spec, ok := g.states[s]
	return spec, ok
}

// CanTransition reports whether from->to is a legal edge in this graph.
func (g *Graph) CanTransition(from, to types.State) bool {
	spec, ok := g.states[from]
	if !ok {
		return false
	}
	for _, t := range spec.Transitions {
		if t == to {
			return true
		}
	}
	return false
}

// AdminGraph is spec.md §4.6's Admin state graph:
// startup → admin_conversation ↔ planning → work_delegated ↔ work ↔ admin_standby.
func AdminGraph() *Graph {
	return NewGraph(types.AdminStateStartup, map[types.State]StateSpec{
		types.AdminStateStartup: {
			PromptTemplate: adminStartupPrompt,
			Transitions:    []types.State{types.AdminStateConversation},
		},
		types.AdminStateConversation: {
			PromptTemplate: adminConversationPrompt,
			Transitions:    []types.State{types.AdminStatePlanning, types.AdminStateStandby},
		},
		types.AdminStatePlanning: {
			PromptTemplate: adminPlanningPrompt,
			Transitions:    []types.State{types.AdminStateConversation, types.AdminStateWorkDelegated},
		},
		types.AdminStateWorkDelegated: {
			PromptTemplate: adminWorkDelegatedPrompt,
			Transitions:    []types.State{types.AdminStateWork, types.AdminStateStandby},
		},
		types.AdminStateWork: {
			PromptTemplate: adminWorkPrompt,
			Transitions:    []types.State{types.AdminStateWorkDelegated, types.AdminStateStandby},
		},
		types.AdminStateStandby: {
			PromptTemplate: adminStandbyPrompt,
			Transitions:    []types.State{types.AdminStateWork, types.AdminStateConversation},
		},
	})
}

// PMGraph is spec.md §4.6's PM state graph:
// pm_startup → pm_plan_decomposition → pm_build_team_tasks → pm_activate_workers → pm_manage ↔ pm_standby ↔ pm_work.
func PMGraph() *Graph {
	return NewGraph(types.PMStateStartup, map[types.State]StateSpec{
		types.PMStateStartup: {
			PromptTemplate: pmStartupPrompt,
			Transitions:    []types.State{types.PMStatePlanDecomposition},
		},
		types.PMStatePlanDecomposition: {
			PromptTemplate: pmPlanDecompositionPrompt,
			Transitions:    []types.State{types.PMStateBuildTeamTasks},
		},
		types.PMStateBuildTeamTasks: {
			PromptTemplate: pmBuildTeamTasksPrompt,
			Transitions:    []types.State{types.PMStateActivateWorkers},
		},
		types.PMStateActivateWorkers: {
			PromptTemplate: pmActivateWorkersPrompt,
			Transitions:    []types.State{types.PMStateManage},
		},
		types.PMStateManage: {
			PromptTemplate: pmManagePrompt,
			Transitions:    []types.State{types.PMStateStandby, types.PMStateWork},
		},
		types.PMStateStandby: {
			PromptTemplate: pmStandbyPrompt,
			Transitions:    []types.State{types.PMStateManage, types.PMStateWork},
		},
		types.PMStateWork: {
			PromptTemplate: pmWorkPrompt,
			Transitions:    []types.State{types.PMStateManage, types.PMStateStandby},
		},
	})
}

// WorkerGraph is spec.md §4.6's Worker state graph:
// worker_startup → worker_work ↔ worker_wait.
func WorkerGraph() *Graph {
	return NewGraph(types.WorkerStateStartup, map[types.State]StateSpec{
		types.WorkerStateStartup: {
			PromptTemplate: workerStartupPrompt,
			Transitions:    []types.State{types.WorkerStateWork},
		},
		types.WorkerStateWork: {
			PromptTemplate: workerWorkPrompt,
			Transitions:    []types.State{types.WorkerStateWait},
		},
		types.WorkerStateWait: {
			PromptTemplate: workerWaitPrompt,
			Transitions:    []types.State{types.WorkerStateWork},
		},
	})
}

// GraphFor returns the state graph for an agent type.
func GraphFor(t types.AgentType) *Graph {
	switch t {
	case types.AgentTypeAdmin:
		return AdminGraph()
	case types.AgentTypePM:
		return PMGraph()
	default:
		return WorkerGraph()
	}
}
