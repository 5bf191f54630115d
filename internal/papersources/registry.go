package papersources

import (
	"sort"
	"sync"

	"github.com/helixir/paper-search-engine/internal/domain"
)

// Registry holds the provider adapters the engine supports.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	sources map[domain.SourceType]PaperSource
}

// NewRegistry creates a new source registry with an empty source map.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[domain.SourceType]PaperSource),
	}
}

// Register adds a source to the registry.
// If a source with the same type already exists, it will be replaced.
func (r *Registry) Register(source PaperSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[source.SourceType()] = source
}

// Get returns a source by type, or nil if not found.
func (r *Registry) Get(sourceType domain.SourceType) PaperSource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sources[sourceType]
}

// EnabledSources returns every enabled source in priority order.
func (r *Registry) EnabledSources() []PaperSource {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]PaperSource, 0, len(r.sources))
	for _, source := range r.sources {
		if source.IsEnabled() {
			sources = append(sources, source)
		}
	}
	sortByPriority(sources)
	return sources
}

// Resolve returns the sources to query for an allow-list. The allow-list is
// filtered to enabled registered sources; when nothing survives the filter
// (including an empty allow-list) every enabled source is returned instead.
// The result is ordered by domain.SourcePriority and contains no duplicates.
func (r *Registry) Resolve(allow []domain.SourceType) []PaperSource {
	if len(allow) == 0 {
		return r.EnabledSources()
	}

	r.mu.RLock()
	seen := make(map[domain.SourceType]bool, len(allow))
	sources := make([]PaperSource, 0, len(allow))
	for _, st := range allow {
		if seen[st] {
			continue
		}
		seen[st] = true
		if source, ok := r.sources[st]; ok && source.IsEnabled() {
			sources = append(sources, source)
		}
	}
	r.mu.RUnlock()

	if len(sources) == 0 {
		return r.EnabledSources()
	}
	sortByPriority(sources)
	return sources
}

// SourceTypes returns the types of every enabled source in priority order.
func (r *Registry) SourceTypes() []domain.SourceType {
	sources := r.EnabledSources()
	types := make([]domain.SourceType, len(sources))
	for i, s := range sources {
		types[i] = s.SourceType()
	}
	return types
}

// ReferenceFetchers returns every enabled source that can list references,
// in priority order.
func (r *Registry) ReferenceFetchers() []ReferenceFetcher {
	sources := r.EnabledSources()
	fetchers := make([]ReferenceFetcher, 0, len(sources))
	for _, s := range sources {
		if f, ok := s.(ReferenceFetcher); ok {
			fetchers = append(fetchers, f)
		}
	}
	return fetchers
}

func sortByPriority(sources []PaperSource) {
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].SourceType().Priority() < sources[j].SourceType().Priority()
	})
}
