package llm

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/agentforge/conductor/types"
)

// LocalProviderPrefixes mirrors types.LocalProviderPrefixes; re-exported here
// because model-id validation is an llm-package concern (Lifecycle Manager
// and Failover Handler both call it).
var LocalProviderPrefixes = types.LocalProviderPrefixes

// HasLocalPrefix reports whether modelID starts with one of the local
// provider base prefixes ("ollama/", "litellm/").
func HasLocalPrefix(modelID string) bool {
	for _, p := range LocalProviderPrefixes {
		if strings.HasPrefix(modelID, p) {
			return true
		}
	}
	return false
}

// ValidateModelID enforces spec's Lifecycle Manager validation rule set:
// a local model id must start with a local provider base prefix, and a
// remote model id must never start with one. This resolves Design Note (a):
// callers must run this on every path that can select a model, including a
// caller-supplied value used as-is.
func ValidateModelID(modelID string, isLocal bool) bool {
	hasPrefix := HasLocalPrefix(modelID)
	if isLocal {
		return hasPrefix
	}
	return !hasPrefix
}

// paramSizeRe extracts a trailing parameter-size suffix like "-70b" or
// "-8.3B" from a model suffix, case-insensitive, for the Performance
// Tracker's tie-break rule.
var paramSizeRe = regexp.MustCompile(`(?i)[-:](\d+(?:\.\d+)?)b(?:[^a-z0-9]|$)`)

// ExtractParamSizeB returns the parameter count in billions encoded in a
// model id (e.g. "llama3-70b-instruct" -> 70), or 0 if none is found.
func ExtractParamSizeB(modelID string) float64 {
	m := paramSizeRe.FindStringSubmatch(modelID)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return v
}

// CanonicalModelID builds the restart-stable canonical id: local providers
// get "provider_base/model_suffix", remote providers get the bare suffix.
func CanonicalModelID(providerBase, modelSuffix string, isLocal bool) string {
	if isLocal {
		return providerBase + "/" + modelSuffix
	}
	return modelSuffix
}
