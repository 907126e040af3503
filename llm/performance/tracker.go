// Package performance implements the Performance Tracker (C4): per-model
// success/failure/latency bookkeeping and score-based ranking, with an
// optional Redis-backed cache (github.com/redis/go-redis/v9) in front of the
// ranked-list computation so a busy Failover Handler does not recompute and
// re-sort on every cycle failure.
package performance

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/agentforge/conductor/llm"
	"github.com/agentforge/conductor/types"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const rankCacheKey = "conductor:performance:ranked"
const rankCacheTTL = 10 * time.Second

// Tracker implements C4.
type Tracker struct {
	mu      sync.RWMutex
	records map[string]*types.PerformanceRecord
	cache   *redis.Client // optional; nil disables caching
	logger  *zap.Logger
}

// New constructs a Tracker. cache may be nil to run without Redis.
func New(cache *redis.Client, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		records: make(map[string]*types.PerformanceRecord),
		cache:   cache,
		logger:  logger,
	}
}

func (t *Tracker) recordFor(canonicalID string) *types.PerformanceRecord {
	r, ok := t.records[canonicalID]
	if !ok {
		r = &types.PerformanceRecord{CanonicalID: canonicalID}
		t.records[canonicalID] = r
	}
	return r
}

// RecordSuccess records one successful call.
func (t *Tracker) RecordSuccess(canonicalID string, latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.recordFor(canonicalID)
	r.Successes++
	r.TotalLatency += latency
}

// RecordFailure records one failed call.
func (t *Tracker) RecordFailure(canonicalID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.recordFor(canonicalID)
	r.Failures++
	r.LastFailureAt = time.Now()
}

// GetRankedModels returns canonical models with at least minCalls total
// calls, ranked by Score() descending, ties broken by parameter size
// (extracted from the model id) descending. providerBase/modelSuffix split
// on the last "/" for local-style canonical ids; remote ids have no
// provider prefix and ProviderBase is left empty.
func (t *Tracker) GetRankedModels(ctx context.Context, minCalls int64) []types.RankedModel {
	// The cache holds the unfiltered ranking; min_calls is applied on every
	// read so callers with different thresholds can share one cache entry.
	if t.cache != nil {
		if cached, ok := t.readCache(ctx); ok {
			return applyMinCalls(cached, minCalls)
		}
	}

	all := t.computeRanked()
	if t.cache != nil {
		t.writeCache(ctx, all)
	}
	return applyMinCalls(all, minCalls)
}

func applyMinCalls(ranked []types.RankedModel, minCalls int64) []types.RankedModel {
	if minCalls <= 0 {
		return ranked
	}
	out := make([]types.RankedModel, 0, len(ranked))
	for _, r := range ranked {
		if r.Calls >= minCalls {
			out = append(out, r)
		}
	}
	return out
}

func (t *Tracker) computeRanked() []types.RankedModel {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]types.RankedModel, 0, len(t.records))
	for id, r := range t.records {
		providerBase, modelSuffix := splitCanonicalID(id)
		out = append(out, types.RankedModel{
			ProviderBase: providerBase,
			ModelSuffix:  modelSuffix,
			Score:        r.Score(),
			ParamSizeB:   llm.ExtractParamSizeB(id),
			Calls:        r.Successes + r.Failures,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ParamSizeB > out[j].ParamSizeB
	})
	return out
}

func splitCanonicalID(id string) (providerBase, modelSuffix string) {
	for i := len(id) - 1; i >= 0; i-- {
		if id[i] == '/' {
			return id[:i], id[i+1:]
		}
	}
	return "", id
}

func (t *Tracker) readCache(ctx context.Context) ([]types.RankedModel, bool) {
	raw, err := t.cache.Get(ctx, rankCacheKey).Bytes()
	if err != nil {
		return nil, false
	}
	var ranked []types.RankedModel
	if err := json.Unmarshal(raw, &ranked); err != nil {
		return nil, false
	}
	return ranked, true
}

func (t *Tracker) writeCache(ctx context.Context, ranked []types.RankedModel) {
	raw, err := json.Marshal(ranked)
	if err != nil {
		return
	}
	if err := t.cache.Set(ctx, rankCacheKey, raw, rankCacheTTL).Err(); err != nil {
		t.logger.Warn("performance: cache write failed", zap.Error(err))
	}
}
