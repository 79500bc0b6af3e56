package registry

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/edgecomet/apcore/core"
)

var moduleIDPattern = regexp.MustCompile(core.ModuleIDPattern)

// EventName is one of the two lifecycle events the Registry emits.
type EventName string

const (
	EventRegister   EventName = "register"
	EventUnregister EventName = "unregister"
)

// Listener is called with the affected module_id on a lifecycle event.
type Listener func(moduleID string)

// entry is the internal record backing one registered module: the
// live instance plus its merged metadata (spec.md §4.4 "State").
type entry struct {
	module   *core.Module
	metadata map[string]any
}

// Store is the thread-safe module store of spec.md §4.4. A single
// sync.Mutex guards all state; the mutation path releases the lock
// before dispatching listener callbacks so a listener may re-enter via
// Get/Has/List/Count without deadlocking — the documented stand-in for
// the spec's literal reentrant lock, which Go's sync.Mutex does not
// support (see DESIGN.md).
type Store struct {
	mu        sync.Mutex
	entries   map[string]*entry
	listeners map[EventName][]Listener

	schemaCacheMu sync.Mutex
	schemaCache   map[string]any
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		entries:     make(map[string]*entry),
		listeners:   make(map[EventName][]Listener),
		schemaCache: make(map[string]any),
	}
}

// Register validates id, refuses duplicates, inserts the module,
// invokes OnLoad if present (rolling back on failure), and emits the
// "register" event.
func (s *Store) Register(module *core.Module, metadata map[string]any) error {
	if !moduleIDPattern.MatchString(module.ID) {
		return core.NewError(core.CodeInvalidInput, "invalid module id: "+module.ID)
	}

	s.mu.Lock()
	if _, exists := s.entries[module.ID]; exists {
		s.mu.Unlock()
		return core.NewError(core.CodeInvalidInput, "module already registered: "+module.ID)
	}
	s.entries[module.ID] = &entry{module: module, metadata: metadata}
	s.mu.Unlock()

	if module.OnLoad != nil {
		if err := module.OnLoad(); err != nil {
			s.mu.Lock()
			delete(s.entries, module.ID)
			s.mu.Unlock()
			return core.NewError(core.CodeModuleLoad, "on_load failed for "+module.ID).WithCause(err)
		}
	}

	s.dispatch(EventRegister, module.ID)
	return nil
}

// Unregister removes a module, invokes OnUnload if present, and emits
// the "unregister" event. Reports whether a module was removed.
func (s *Store) Unregister(id string) bool {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.entries, id)
	s.mu.Unlock()

	if e.module.OnUnload != nil {
		_ = e.module.OnUnload() // on_unload failures are discarded; removal is not undone
	}
	s.dispatch(EventUnregister, id)
	return true
}

// dispatch invokes every listener for event without holding the lock,
// so listeners may call back into Get/Has/List/Count freely. A
// panicking listener is recovered and does not affect sibling
// listeners or the caller of Register/Unregister; the panic is not
// logged.
func (s *Store) dispatch(event EventName, moduleID string) {
	s.mu.Lock()
	listeners := append([]Listener(nil), s.listeners[event]...)
	s.mu.Unlock()

	for _, l := range listeners {
		s.invokeListener(l, moduleID)
	}
}

func (s *Store) invokeListener(l Listener, moduleID string) {
	defer func() {
		_ = recover() // swallow: a listener's panic must not break dispatch for siblings
	}()
	l(moduleID)
}

// On registers a listener for event.
func (s *Store) On(event EventName, l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[event] = append(s.listeners[event], l)
}

// Get returns the module registered under id, if any.
func (s *Store) Get(id string) (*core.Module, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	return e.module, true
}

// Has reports whether id is registered.
func (s *Store) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	return ok
}

// Count returns the number of registered modules.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// ModuleIDs returns every registered id, sorted.
func (s *Store) ModuleIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Pair is one (id, module) snapshot entry returned by Iter.
type Pair struct {
	ID     string
	Module *core.Module
}

// Iter returns a snapshot of every (id, module) pair, sorted by id.
func (s *Store) Iter() []Pair {
	s.mu.Lock()
	defer s.mu.Unlock()
	pairs := make([]Pair, 0, len(s.entries))
	for id, e := range s.entries {
		pairs = append(pairs, Pair{ID: id, Module: e.module})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].ID < pairs[j].ID })
	return pairs
}

// List filters registered modules by tag (checked against both the
// module's own Tags and its merged metadata's "tags" list) and by id
// prefix, returning sorted ids.
func (s *Store) List(tag, prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0)
	for id, e := range s.entries {
		if prefix != "" && !strings.HasPrefix(id, prefix) {
			continue
		}
		if tag != "" && !hasTag(e, tag) {
			continue
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func hasTag(e *entry, tag string) bool {
	for _, t := range e.module.Tags {
		if t == tag {
			return true
		}
	}
	if rawTags, ok := e.metadata["tags"]; ok {
		if tags, ok := rawTags.([]string); ok {
			for _, t := range tags {
				if t == tag {
					return true
				}
			}
		}
		if tags, ok := rawTags.([]interface{}); ok {
			for _, t := range tags {
				if s, ok := t.(string); ok && s == tag {
					return true
				}
			}
		}
	}
	return false
}

// GetDefinition composes the public Descriptor for id from the
// module's own attributes plus its merged metadata.
func (s *Store) GetDefinition(id string) (*core.Descriptor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	return &core.Descriptor{
		ModuleID:     id,
		Description:  e.module.Description,
		InputSchema:  e.module.InputSchema,
		OutputSchema: e.module.OutputSchema,
		Version:      e.module.Version,
		Tags:         e.module.Tags,
		Annotations:  e.module.Annotations,
		Examples:     e.module.Examples,
		Metadata:     e.metadata,
	}, true
}

// ClearCache purges the Registry's internal schema cache (spec.md
// §4.4 "clear_cache()"). The schema engine's own caches — parsed
// bundles and resolved validators — are a separate concern (schema.Engine
// .ClearCache). No other Store method reads or writes this cache, so
// clearing it changes no lookup result.
func (s *Store) ClearCache() {
	s.schemaCacheMu.Lock()
	defer s.schemaCacheMu.Unlock()
	s.schemaCache = make(map[string]any)
}
