package questionnaire

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/kiore73/telegram-ConsultOS-bot/internal/models"
)

// DefinitionSource is the read-only contract to the definition store. The
// registry reads it at startup and on explicit reload, never writes to it.
type DefinitionSource interface {
	LoadDefinitions(ctx context.Context) ([]models.QuestionnaireDefinition, error)
}

// Registry holds one compiled cache per questionnaire name. Lookups are
// read-only and safe for unlimited concurrent readers; Load builds a complete
// replacement snapshot and swaps it in atomically, so in-flight readers see
// either the old set or the new set, never a partial one.
type Registry struct {
	mu     sync.RWMutex
	caches map[string]*Cache
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{caches: make(map[string]*Cache)}
}

// Load reads all definitions from the source, compiles every one, and swaps
// the new snapshot in. Any build failure aborts the whole load and leaves the
// previous snapshot untouched, so a broken definition never evicts a working
// cache.
func (r *Registry) Load(ctx context.Context, src DefinitionSource) error {
	slog.Debug("Registry Load invoked")
	defs, err := src.LoadDefinitions(ctx)
	if err != nil {
		slog.Error("Registry Load failed to read definitions", "error", err)
		return fmt.Errorf("load questionnaire definitions: %w", err)
	}

	next := make(map[string]*Cache, len(defs))
	for _, def := range defs {
		if _, dup := next[def.Name]; dup {
			return defErr(def.Name, "duplicate questionnaire name in definition store")
		}
		cache, err := BuildCache(def)
		if err != nil {
			slog.Error("Registry Load aborted by build failure", "questionnaire", def.Name, "error", err)
			return err
		}
		next[def.Name] = cache
		slog.Info("Questionnaire cache built", "questionnaire", def.Name, "questions", cache.Len())
	}

	r.mu.Lock()
	r.caches = next
	r.mu.Unlock()
	slog.Info("Registry Load succeeded", "questionnaires", len(next))
	return nil
}

// Lookup returns the cache for a questionnaire name.
func (r *Registry) Lookup(name string) (*Cache, error) {
	r.mu.RLock()
	cache, ok := r.caches[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("questionnaire %q: %w", name, models.ErrQuestionnaireNotFound)
	}
	return cache, nil
}

// Names returns the loaded questionnaire names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.caches))
	for name := range r.caches {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}
