// Package tools implements the Tool Executor (C5): a name-keyed registry of
// handlers, each guarded by an auth level, dispatched with a structured
// error contract an agent can act on. Adapted from the teacher's
// llm/tools/executor.go: DefaultRegistry/DefaultExecutor keep their shape
// (timeout-bounded goroutine execution, concurrent multi-call dispatch) but
// drop the rate-limiter and trade the JSON-Schema-only contract for the
// AuthLevel check and ToolError suggestion machinery spec.md §4.5 calls for.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/agentforge/conductor/types"
	"go.uber.org/zap"
)

// InvalidActionError is returned by a handler when the caller's Action
// argument does not match any action the tool understands. Returning this
// type rather than a bare fmt.Errorf lets the Executor pull the raw
// attempted token out via errors.As for close-match suggestions, instead of
// re-parsing it back out of a formatted error string.
type InvalidActionError struct {
	Action string
}

func (e InvalidActionError) Error() string {
	return fmt.Sprintf("unknown action %q", e.Action)
}

// MissingParameterError is returned by a handler when a required argument
// was not supplied at all.
type MissingParameterError struct {
	Parameter string
}

func (e MissingParameterError) Error() string {
	return fmt.Sprintf("missing required parameter %q", e.Parameter)
}

// InvalidParameterError is returned by a handler when an argument was
// supplied but its value is not one the tool accepts.
type InvalidParameterError struct {
	Parameter string
	Value     string
}

func (e InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid value %q for parameter %q", e.Value, e.Parameter)
}

// Handler executes one tool call on behalf of agent. Concrete tools use the
// agent's SandboxPath and ProjectID to scope file-system sandboxing or
// project lookups.
type Handler func(ctx context.Context, agent *types.Agent, args json.RawMessage) (json.RawMessage, error)

// Spec describes one registered tool.
type Spec struct {
	Name        string
	AuthLevel   types.AuthLevel
	Summary     string
	Description string
	// ValidActions lists the tool's action vocabulary (e.g. an args field
	// the tool switches on), used only to build close-match suggestions
	// when a caller's action does not match. Empty for tools with no
	// discrete action set.
	ValidActions []string
	Timeout      time.Duration
}

// Registry holds registered tools.
type Registry struct {
	mu      sync.RWMutex
	specs   map[string]Spec
	handler map[string]Handler
	logger  *zap.Logger
}

// NewRegistry constructs an empty Registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		specs:   make(map[string]Spec),
		handler: make(map[string]Handler),
		logger:  logger,
	}
}

// Register adds a tool. Re-registering an existing name overwrites it,
// matching the teacher's executor allowing tool hot-swap in tests.
func (r *Registry) Register(spec Spec, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if spec.Timeout == 0 {
		spec.Timeout = 30 * time.Second
	}
	r.specs[spec.Name] = spec
	r.handler[spec.Name] = h
}

// Get returns the spec and handler for name.
func (r *Registry) Get(name string) (Spec, Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[name]
	if !ok {
		return Spec{}, nil, false
	}
	return spec, r.handler[name], true
}

// Names returns every registered tool name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.specs))
	for name := range r.specs {
		out = append(out, name)
	}
	return out
}

// VisibleTo returns the specs an agent of agentType is authorized to call,
// backing the tool_information tool's list_tools/get_info actions.
func (r *Registry) VisibleTo(agentType types.AgentType) []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Spec, 0, len(r.specs))
	for _, spec := range r.specs {
		if spec.AuthLevel.Allows(agentType) {
			out = append(out, spec)
		}
	}
	return out
}

// synonyms is the static global-action synonym table from spec.md §4.5.
var synonyms = map[string]string{
	"search": "search_knowledge",
	"save":   "write",
	"make":   "mkdir",
}

// Executor dispatches calls to the registry with authorization and
// structured-error handling.
type Executor struct {
	registry *Registry
	logger   *zap.Logger
}

// NewExecutor constructs an Executor over registry.
func NewExecutor(registry *Registry, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{registry: registry, logger: logger}
}

// ToolNames returns every tool name registered, for the Output Parser's
// tool-call XML scan.
func (e *Executor) ToolNames() []string {
	return e.registry.Names()
}

// Execute runs every call concurrently and returns one types.ToolResult per
// call, in the same order, grounded on the teacher's Execute fan-out.
func (e *Executor) Execute(ctx context.Context, agent *types.Agent, calls []types.ToolCall) []types.ToolResult {
	results := make([]types.ToolResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, c types.ToolCall) {
			defer wg.Done()
			results[idx] = e.ExecuteOne(ctx, agent, c)
		}(i, call)
	}
	wg.Wait()
	return results
}

// ExecuteOne dispatches a single call, enforcing authorization and
// returning a structured error payload as the result content on failure
// rather than a Go error, per spec.md §7 (tool errors are agent-addressed
// content, not transport-level failures).
func (e *Executor) ExecuteOne(ctx context.Context, agent *types.Agent, call types.ToolCall) types.ToolResult {
	spec, handler, ok := e.registry.Get(call.Name)
	if !ok {
		return e.errorResult(call, e.unknownToolError(call.Name))
	}

	if !spec.AuthLevel.Allows(agent.Type) {
		return e.errorResult(call, types.ToolError{
			ErrorType: types.ToolErrorAuthorization,
			Message:   fmt.Sprintf("tool %q requires auth level %q; agent type %q is not authorized", call.Name, spec.AuthLevel, agent.Type),
		})
	}

	execCtx, cancel := context.WithTimeout(ctx, spec.Timeout)
	defer cancel()

	type outcome struct {
		res json.RawMessage
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := handler(execCtx, agent, call.Arguments)
		select {
		case done <- outcome{res, err}:
		case <-execCtx.Done():
		}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			e.logger.Warn("tool execution failed", zap.String("tool", call.Name), zap.Error(o.err))
			return e.errorResult(call, e.handlerError(spec, call.Name, o.err))
		}
		var content any
		if len(o.res) > 0 {
			_ = json.Unmarshal(o.res, &content)
		}
		return types.ToolResult{CallID: call.ID, Name: call.Name, Content: content, Status: types.ToolCallSuccess}
	case <-execCtx.Done():
		return e.errorResult(call, types.ToolError{
			ErrorType: types.ToolErrorExecution,
			Message:   fmt.Sprintf("tool %q timed out after %s", call.Name, spec.Timeout),
		})
	}
}

// handlerError builds the structured ToolError for a handler-returned Go
// error. An InvalidActionError gets the full invalid_action treatment
// (close-match suggestions plus a corrected XML example to retry with,
// grounded on original_source's _handle_invalid_action_error); anything
// else is reported as a generic execution_error.
func (e *Executor) handlerError(spec Spec, toolName string, err error) types.ToolError {
	var iae InvalidActionError
	if errors.As(err, &iae) {
		suggestions := closestMatches(iae.Action, spec.ValidActions, 0.6)
		te := types.ToolError{
			ErrorType:   types.ToolErrorInvalidAction,
			Message:     err.Error(),
			Suggestions: suggestions,
		}
		if len(suggestions) > 0 {
			te.CorrectedExample = fmt.Sprintf("<%s><action>%s</action></%s>", toolName, suggestions[0], toolName)
		}
		return te
	}

	var mpe MissingParameterError
	if errors.As(err, &mpe) {
		return types.ToolError{
			ErrorType: types.ToolErrorMissingParameter,
			Message:   err.Error(),
			Suggestions: []string{
				fmt.Sprintf("add the %q parameter", mpe.Parameter),
				fmt.Sprintf("get usage: <tool_information><action>get_info</action><tool_name>%s</tool_name></tool_information>", toolName),
			},
		}
	}

	var ipe InvalidParameterError
	if errors.As(err, &ipe) {
		return types.ToolError{
			ErrorType:   types.ToolErrorInvalidParameter,
			Message:     err.Error(),
			Suggestions: []string{fmt.Sprintf("check the accepted values for %q", ipe.Parameter)},
		}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return types.ToolError{
			ErrorType:   types.ToolErrorFormat,
			Message:     err.Error(),
			Suggestions: []string{"ensure the tool call arguments are well-formed JSON matching the tool's schema"},
		}
	}

	return types.ToolError{ErrorType: types.ToolErrorExecution, Message: err.Error()}
}

func (e *Executor) errorResult(call types.ToolCall, te types.ToolError) types.ToolResult {
	return types.ToolResult{CallID: call.ID, Name: call.Name, Content: te, Status: types.ToolCallError}
}

// toolNameAlternatives maps a substring an agent might plausibly have
// guessed for a tool's name onto this registry's actual tool names.
// Ordered (not a plain map) so the first matching key wins deterministically,
// grounded on original_source's common_tool_alternatives.
var toolNameAlternatives = []struct {
	substr string
	alts   []string
}{
	{"file", []string{"file_system"}},
	{"task", []string{"project_management"}},
	{"project", []string{"project_management"}},
	{"message", []string{"send_message"}},
	{"help", []string{"tool_information"}},
}

func (e *Executor) unknownToolError(name string) types.ToolError {
	all := e.registry.Names()
	te := types.ToolError{
		ErrorType:   types.ToolErrorToolNotFound,
		Message:     fmt.Sprintf("unknown tool %q", name),
		Suggestions: closestMatches(name, all, 0.6),
	}
	lower := strings.ToLower(name)
	for _, a := range toolNameAlternatives {
		if strings.Contains(lower, a.substr) {
			te.AlternativeTools = a.alts
			te.Suggestions = append(te.Suggestions, fmt.Sprintf("did you mean: %s?", strings.Join(a.alts, ", ")))
			break
		}
	}
	return te
}

// closestMatches returns candidates from pool whose normalized Levenshtein
// similarity to query exceeds cutoff, best first, plus any static synonym
// hit for query. Grounded on the teacher's computeStringSimilarity
// (agent/evaluation/builtin_metrics.go).
func closestMatches(query string, pool []string, cutoff float64) []string {
	type scored struct {
		name  string
		score float64
	}
	var candidates []scored
	for _, name := range pool {
		if s := stringSimilarity(query, name); s >= cutoff {
			candidates = append(candidates, scored{name, s})
		}
	}
	if syn, ok := synonyms[query]; ok {
		candidates = append(candidates, scored{syn, 1.0})
	}
	for i := 0; i < len(candidates)-1; i++ {
		for j := i + 1; j < len(candidates); j++ {
			if candidates[j].score > candidates[i].score {
				candidates[i], candidates[j] = candidates[j], candidates[i]
			}
		}
	}
	out := make([]string, 0, len(candidates))
	seen := make(map[string]bool)
	for _, c := range candidates {
		if !seen[c.name] {
			seen[c.name] = true
			out = append(out, c.name)
		}
	}
	return out
}

// stringSimilarity is a normalized edit-distance similarity in [0,1].
func stringSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	m, n := len(a), len(b)
	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}
	for i := 0; i <= m; i++ {
		dp[i][0] = i
	}
	for j := 0; j <= n; j++ {
		dp[0][j] = j
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			if a[i-1] == b[j-1] {
				dp[i][j] = dp[i-1][j-1]
			} else {
				dp[i][j] = min3(dp[i-1][j]+1, dp[i][j-1]+1, dp[i-1][j-1]+1)
			}
		}
	}
	maxLen := m
	if n > maxLen {
		maxLen = n
	}
	return 1.0 - float64(dp[m][n])/float64(maxLen)
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
