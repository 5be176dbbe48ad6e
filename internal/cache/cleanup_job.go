package cache

import (
	"sync"

	"github.com/rs/zerolog"
)

// Prunable is the non-generic view of a cache used for housekeeping
type Prunable interface {
	Name() string
	Prune() int
	Clear()
	Stats() Stats
}

// Registry tracks every cache instance owned by the process
type Registry struct {
	mu     sync.RWMutex
	caches []Prunable
}

// NewRegistry creates an empty cache registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds caches to the registry
func (r *Registry) Register(caches ...Prunable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caches = append(r.caches, caches...)
}

// Stats returns stats for every registered cache
func (r *Registry) Stats() []Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Stats, 0, len(r.caches))
	for _, c := range r.caches {
		out = append(out, c.Stats())
	}
	return out
}

// Clear empties every registered cache, or only the named one when name is set.
// Returns the number of caches cleared.
func (r *Registry) Clear(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cleared := 0
	for _, c := range r.caches {
		if name == "" || c.Name() == name {
			c.Clear()
			cleared++
		}
	}
	return cleared
}

// Prune drops expired entries across caches and returns counts per cache
func (r *Registry) Prune() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int, len(r.caches))
	for _, c := range r.caches {
		out[c.Name()] = c.Prune()
	}
	return out
}

// CleanupJob removes expired entries from all registered caches.
type CleanupJob struct {
	registry *Registry
	log      zerolog.Logger
}

// NewCleanupJob creates a cache cleanup job
func NewCleanupJob(registry *Registry, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		registry: registry,
		log:      log.With().Str("job", "cache_cleanup").Logger(),
	}
}

// Run prunes all caches
func (j *CleanupJob) Run() error {
	total := 0
	for name, count := range j.registry.Prune() {
		if count > 0 {
			j.log.Debug().
				Str("cache", name).
				Int("pruned", count).
				Msg("Pruned expired cache entries")
			total += count
		}
	}

	if total > 0 {
		j.log.Info().Int("total_pruned", total).Msg("Cache cleanup completed")
	}
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *CleanupJob) Name() string {
	return "cache_cleanup"
}
