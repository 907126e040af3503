// Package registry implements the Model Registry (C2): discovery of
// reachable provider instances and the models each exposes. The registry is
// read-mostly; Refresh is always explicit, and concurrent Refresh calls
// collapse into one in-flight probe via golang.org/x/sync/singleflight,
// grounded on the teacher's read-mostly cache design.
package registry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ModelInfo is one model a provider instance exposes.
type ModelInfo struct {
	Suffix   string
	Metadata map[string]string
}

// Instance is one configured or discovered provider instance.
type Instance struct {
	Name    string
	BaseURL string
	IsLocal bool
	Models  []ModelInfo
}

// Prober checks reachability and lists models for one instance. The
// concrete implementation is lifecycle.Prober; the registry only
// orchestrates it.
type Prober interface {
	// Probe returns the reachable instance's model list, or an error if
	// the instance is unreachable.
	Probe(ctx context.Context, instanceName, baseURL string) ([]ModelInfo, error)
}

// Config describes one instance to probe on Refresh.
type Config struct {
	Name    string
	BaseURL string
	IsLocal bool
}

// Registry holds the last-refreshed reachable-instance set.
type Registry struct {
	mu        sync.RWMutex
	instances map[string]Instance
	configs   []Config
	prober    Prober
	logger    *zap.Logger
	sf        singleflight.Group
}

// New constructs a Registry for the given static instance configs.
func New(configs []Config, prober Prober, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		instances: make(map[string]Instance),
		configs:   configs,
		prober:    prober,
		logger:    logger,
	}
}

// Refresh re-probes every configured instance. Instances that fail to
// respond are dropped from the registry (treated as currently unreachable,
// not deleted from config). Concurrent callers share one in-flight refresh.
func (r *Registry) Refresh(ctx context.Context) error {
	_, err, _ := r.sf.Do("refresh", func() (any, error) {
		next := make(map[string]Instance, len(r.configs))
		for _, cfg := range r.configs {
			probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			models, err := r.prober.Probe(probeCtx, cfg.Name, cfg.BaseURL)
			cancel()
			if err != nil {
				r.logger.Warn("provider instance unreachable",
					zap.String("instance", cfg.Name), zap.Error(err))
				continue
			}
			next[cfg.Name] = Instance{Name: cfg.Name, BaseURL: cfg.BaseURL, IsLocal: cfg.IsLocal, Models: models}
		}
		r.mu.Lock()
		r.instances = next
		r.mu.Unlock()
		return nil, nil
	})
	return err
}

// IsModelAvailable reports whether (instance, modelSuffix) is currently
// reachable with that model listed.
func (r *Registry) IsModelAvailable(instanceName, modelSuffix string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[instanceName]
	if !ok {
		return false
	}
	for _, m := range inst.Models {
		if m.Suffix == modelSuffix {
			return true
		}
	}
	return false
}

// GetReachableProviderURL returns the base URL for a currently-reachable
// instance, or "" if it is not (or was never) reachable.
func (r *Registry) GetReachableProviderURL(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.instances[name].BaseURL
}

// Instances returns a snapshot of every currently-reachable instance.
func (r *Registry) Instances() []Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		out = append(out, inst)
	}
	return out
}

// LocalInstances returns only the reachable local instances, used by
// Lifecycle Manager's LOCAL-tier auto-selection.
func (r *Registry) LocalInstances() []Instance {
	all := r.Instances()
	out := make([]Instance, 0, len(all))
	for _, inst := range all {
		if inst.IsLocal {
			out = append(out, inst)
		}
	}
	return out
}
