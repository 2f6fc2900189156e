package usecase

import (
	"log/slog"
	"sync"

	"costcompass/internal/domain"
)

// registryEntry tracks one registered agent: its factory, its memoized
// instance, and its harvested metadata.
type registryEntry struct {
	factory domain.AgentFactory
	meta    domain.AgentMetadata
	metaOK  bool

	buildMu  sync.Mutex // guards first construction for this id
	instance domain.SpecializedAgent
	buildErr bool
}

// Registry is the shared catalog of specialized agents. Instances are
// materialized lazily and memoized; the instance cache is shared across
// concurrent sessions.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*registryEntry
	order   []string // registration order, the find-best tie-break
	matcher *CapabilityMatcher
	logger  *slog.Logger
}

// AgentStatus is a read-only projection of one registry entry.
type AgentStatus struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Enabled         bool   `json:"enabled"`
	CapabilityCount int    `json:"capability_count"`
	Instantiated    bool   `json:"instantiated"`
	MetadataHealthy bool   `json:"metadata_healthy"`
}

// AgentConfig is the exportable configuration of one registry entry.
type AgentConfig struct {
	ID       string               `json:"id"`
	Metadata domain.AgentMetadata `json:"metadata"`
}

// NewRegistry creates an empty Registry.
func NewRegistry(matcher *CapabilityMatcher, logger *slog.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*registryEntry),
		matcher: matcher,
		logger:  logger,
	}
}

// RegisterFactory registers an agent factory. A throwaway instance is built
// immediately to harvest metadata; a failure there is logged and the entry
// is marked metadata-unhealthy, but registration still succeeds.
func (r *Registry) RegisterFactory(id string, factory domain.AgentFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[id]; exists {
		return domain.ErrAgentDuplicate
	}

	e := &registryEntry{factory: factory}
	probe, err := factory()
	if err != nil {
		r.logger.Warn("agent metadata harvest failed", "agent_id", id, "error", err)
	} else {
		e.meta = probe.Metadata()
		e.meta.Enabled = true
		e.metaOK = true
	}

	r.entries[id] = e
	r.order = append(r.order, id)
	r.logger.Info("agent registered", "agent_id", id, "name", e.meta.Name, "capabilities", len(e.meta.Capabilities))
	return nil
}

// RegisterInstance registers a ready-built agent.
func (r *Registry) RegisterInstance(id string, agent domain.SpecializedAgent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[id]; exists {
		return domain.ErrAgentDuplicate
	}

	meta := agent.Metadata()
	meta.Enabled = true
	e := &registryEntry{
		instance: agent,
		meta:     meta,
		metaOK:   true,
	}
	r.entries[id] = e
	r.order = append(r.order, id)
	r.logger.Info("agent registered", "agent_id", id, "name", meta.Name, "capabilities", len(meta.Capabilities))
	return nil
}

// Get returns the memoized agent instance for id, materializing it on first
// call. Unknown ids and construction failures resolve to nil with a logged
// diagnostic, never an error: one broken agent must not break routing for
// the rest.
func (r *Registry) Get(id string) domain.SpecializedAgent {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		r.logger.Warn("agent lookup miss", "agent_id", id)
		return nil
	}

	e.buildMu.Lock()
	defer e.buildMu.Unlock()

	if e.instance != nil {
		return e.instance
	}
	if e.buildErr {
		return nil
	}

	inst, err := e.factory()
	if err != nil {
		e.buildErr = true
		r.logger.Error("agent construction failed", "agent_id", id, "error", err)
		return nil
	}
	e.instance = inst
	return inst
}

// FindBest returns the id of the enabled agent with the strictly greatest
// weighted score for the query, or ok=false when no agent clears its own
// minimum capability threshold. Ties keep the first-registered agent.
func (r *Registry) FindBest(query string, exclude map[string]bool) (string, float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bestID := ""
	bestWeighted := 0.0
	bestConfidence := 0.0
	found := false

	for _, id := range r.order {
		if exclude[id] {
			continue
		}
		e := r.entries[id]
		if !e.metaOK || !e.meta.Enabled {
			continue
		}

		confidence := r.matcher.Confidence(query, e.meta.Capabilities)
		if confidence < e.meta.MinThreshold() {
			continue
		}

		weighted := confidence * float64(e.meta.MaxPriority()) / 10.0
		if !found || weighted > bestWeighted {
			bestID = id
			bestWeighted = weighted
			bestConfidence = confidence
			found = true
		}
	}

	if !found {
		return "", 0, false
	}
	r.logger.Debug("best agent selected", "agent_id", bestID, "confidence", bestConfidence, "weighted", bestWeighted)
	return bestID, bestConfidence, true
}

// Enable marks an agent routable. The cached instance is untouched.
func (r *Registry) Enable(id string) error {
	return r.setEnabled(id, true)
}

// Disable removes an agent from routing. The cached instance is untouched.
func (r *Registry) Disable(id string) error {
	return r.setEnabled(id, false)
}

func (r *Registry) setEnabled(id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return domain.ErrAgentNotFound
	}
	e.meta.Enabled = enabled
	r.logger.Info("agent toggled", "agent_id", id, "enabled", enabled)
	return nil
}

// EnabledIDs returns the ids of all enabled agents in registration order.
func (r *Registry) EnabledIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.order))
	for _, id := range r.order {
		if e := r.entries[id]; e.metaOK && e.meta.Enabled {
			ids = append(ids, id)
		}
	}
	return ids
}

// Metadata returns the harvested metadata for id.
func (r *Registry) Metadata(id string) (domain.AgentMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok || !e.metaOK {
		return domain.AgentMetadata{}, false
	}
	return e.meta, true
}

// Status returns a snapshot of every entry in registration order.
func (r *Registry) Status() []AgentStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	statuses := make([]AgentStatus, 0, len(r.order))
	for _, id := range r.order {
		e := r.entries[id]
		e.buildMu.Lock()
		built := e.instance != nil
		e.buildMu.Unlock()
		statuses = append(statuses, AgentStatus{
			ID:              id,
			Name:            e.meta.Name,
			Enabled:         e.metaOK && e.meta.Enabled,
			CapabilityCount: len(e.meta.Capabilities),
			Instantiated:    built,
			MetadataHealthy: e.metaOK,
		})
	}
	return statuses
}

// ExportConfig returns the serializable configuration of every healthy entry.
func (r *Registry) ExportConfig() []AgentConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	configs := make([]AgentConfig, 0, len(r.order))
	for _, id := range r.order {
		e := r.entries[id]
		if !e.metaOK {
			continue
		}
		configs = append(configs, AgentConfig{ID: id, Metadata: e.meta})
	}
	return configs
}
