package types

import "time"

// Tier constrains automatic model selection during Lifecycle Manager
// auto-select and Failover Handler candidate filtering.
type Tier string

const (
	TierLocal Tier = "LOCAL"
	TierFree  Tier = "FREE"
	TierAny   Tier = "any"
)

// ModelKey identifies a model on a specific provider instance.
// ProviderInstance encodes reachability (a discovered local endpoint vs a
// configured remote provider); ModelSuffix is the provider-native model id.
type ModelKey struct {
	ProviderInstance string
	ModelSuffix      string
}

// LocalProviderPrefixes are the provider_base prefixes a local model id must
// start with, and a remote model id must never start with.
var LocalProviderPrefixes = []string{"ollama/", "litellm/"}

// CanonicalID returns the canonical, restart-stable model id: for local
// providers this is "provider_base/model_suffix"; for remote providers it
// is the bare model_suffix.
func (k ModelKey) CanonicalID(isLocal bool) string {
	if isLocal {
		return k.ProviderInstance + "/" + k.ModelSuffix
	}
	return k.ModelSuffix
}

// PerformanceRecord tracks aggregate outcomes for one canonical model key.
type PerformanceRecord struct {
	CanonicalID   string
	Successes     int64
	Failures      int64
	TotalLatency  time.Duration
	LastFailureAt time.Time
}

// Score computes the ranking score used by Performance Tracker: success
// ratio weighted by inverse mean latency. Models with no calls score 0 and
// sort last.
func (r *PerformanceRecord) Score() float64 {
	total := r.Successes + r.Failures
	if total == 0 {
		return 0
	}
	successRatio := float64(r.Successes) / float64(total)
	if r.Successes == 0 {
		return 0
	}
	meanLatency := r.TotalLatency.Seconds() / float64(r.Successes)
	if meanLatency <= 0 {
		meanLatency = 0.001
	}
	return successRatio * (1.0 / meanLatency)
}

// RankedModel is one entry of Performance Tracker's GetRankedModels result.
type RankedModel struct {
	ProviderBase string
	ModelSuffix  string
	Score        float64
	ParamSizeB   float64 // 0 if not determinable; used as a tie-break only
	Calls        int64   // Successes + Failures, filtered against min_calls
}

// KeyState is the quarantine status of one (provider, key) pair.
type KeyState struct {
	Provider         string
	Key              string
	QuarantinedUntil time.Time
}

// Active reports whether the key is currently usable.
func (k KeyState) Active(now time.Time) bool {
	return k.QuarantinedUntil.IsZero() || now.After(k.QuarantinedUntil)
}
