package registry

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/edgecomet/apcore/core"
	"github.com/edgecomet/apcore/internal/common/yamlutil"
)

// RootSpec is one filesystem root to scan, with an optional namespace
// prefix prepended to every id discovered under it (spec.md §4.4 step
// 1 "Multi-root: prepend each namespace. to ids from that root").
type RootSpec struct {
	Path      string
	Namespace string
}

// Config controls the discovery pipeline.
type Config struct {
	Roots           []RootSpec
	MaxDepth        int    // default 8
	SourceExtension string // default ".go"
	FollowSymlinks  bool
	IDMapPath       string // optional
	Registry        *SourceRegistry
}

func (c Config) maxDepth() int {
	if c.MaxDepth <= 0 {
		return 8
	}
	return c.MaxDepth
}

func (c Config) sourceExtension() string {
	if c.SourceExtension == "" {
		return ".go"
	}
	return c.SourceExtension
}

// Report is what Discover returns: the count of modules registered
// plus every non-fatal warning collected along the way, since the
// pipeline logs-and-continues rather than aborting on most per-module
// problems (spec.md §4.4 step 1/3/5).
type Report struct {
	Registered int
	Warnings   []string
}

func (r *Report) warn(msg string) { r.Warnings = append(r.Warnings, msg) }

// idMapFile is the optional ID-map's on-disk shape.
type idMapFile struct {
	Mappings []idMapEntry `yaml:"mappings"`
}

type idMapEntry struct {
	File  string `yaml:"file"`
	ID    string `yaml:"id"`
	Class string `yaml:"class"`
}

// discovered is the pipeline's working record for one module as it
// moves through steps 1-8.
type discovered struct {
	core.DiscoveredModule
	classHint string
	metadata  map[string]any
	source    *ModuleSource
	deps      []core.DependencyInfo
}

// Discover runs the full 8-step pipeline against cfg and registers
// every module that survives validation into store, in topological
// order. It returns the count registered and logs a warning (in the
// Report) when zero modules were registered, per spec.md §4.4
// "discover() returns the count ... and logs a warning when zero."
func Discover(store *Store, cfg Config) (*Report, error) {
	report := &Report{}

	mods, err := scan(cfg, report)
	if err != nil {
		return report, err
	}

	if cfg.IDMapPath != "" {
		if err := applyIDMap(mods, cfg.IDMapPath, report); err != nil {
			return report, err
		}
	}

	for _, m := range mods {
		if err := loadMetadata(m, report); err != nil {
			return report, err
		}
	}

	remaining := make([]*discovered, 0, len(mods))
	for _, m := range mods {
		if err := resolveEntryPoint(m, cfg.Registry); err != nil {
			report.warn(err.Error())
			continue
		}
		if err := validateSource(m); err != nil {
			report.warn(err.Error())
			continue
		}
		remaining = append(remaining, m)
	}

	byID := make(map[string]*discovered, len(remaining))
	ids := make([]string, 0, len(remaining))
	for _, m := range remaining {
		byID[m.CanonicalID] = m
		ids = append(ids, m.CanonicalID)
	}

	edges := make(map[string][]string, len(remaining))
	for _, m := range remaining {
		deps, err := collectDependencies(m)
		if err != nil {
			return report, err
		}
		m.deps = deps

		required := make([]string, 0, len(deps))
		for _, d := range deps {
			if _, ok := byID[d.ModuleID]; !ok {
				if d.Optional {
					report.warn("unknown optional dependency " + d.ModuleID + " for " + m.CanonicalID)
					continue
				}
				return report, core.NewError(core.CodeModuleLoad, "unknown required dependency "+d.ModuleID+" for "+m.CanonicalID)
			}
			required = append(required, d.ModuleID)
		}
		edges[m.CanonicalID] = required
	}

	order, err := TopoSort(ids, edges)
	if err != nil {
		return report, err
	}

	for _, id := range order {
		m := byID[id]
		module := buildModule(m)
		if err := store.Register(module, m.metadata); err != nil {
			report.warn("failed to register " + id + ": " + err.Error())
			continue
		}
		report.Registered++
	}

	if report.Registered == 0 {
		report.warn("discover() registered zero modules")
	}
	return report, nil
}

// scan is step 1: recursive walk, skip rules, canonical_id derivation,
// duplicate/case-collision handling.
func scan(cfg Config, report *Report) ([]*discovered, error) {
	seenIDs := make(map[string]string) // lowercased id -> original-cased id already kept
	var out []*discovered

	for _, root := range cfg.Roots {
		visitedCanonical := make(map[string]bool)
		err := walkRoot(root.Path, cfg.maxDepth(), cfg.FollowSymlinks, visitedCanonical, func(relPath string, depth int) {
			base := filepath.Base(relPath)
			if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "_") {
				return
			}
			if base == "__pycache__" {
				return
			}
			if !strings.HasSuffix(base, cfg.sourceExtension()) {
				return
			}

			stem := strings.TrimSuffix(relPath, cfg.sourceExtension())
			id := strings.ReplaceAll(stem, string(filepath.Separator), ".")
			if root.Namespace != "" {
				id = root.Namespace + "." + id
			}

			if existing, ok := seenIDs[strings.ToLower(id)]; ok {
				if existing == id {
					report.warn("duplicate module id skipped: " + id)
				} else {
					report.warn("case-only id collision: " + existing + " vs " + id)
				}
				return
			}
			seenIDs[strings.ToLower(id)] = id

			out = append(out, &discovered{
				DiscoveredModule: core.DiscoveredModule{
					FilePath:    filepath.Join(root.Path, relPath),
					CanonicalID: id,
					Namespace:   root.Namespace,
				},
			})
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CanonicalID < out[j].CanonicalID })
	return out, nil
}

func walkRoot(root string, maxDepth int, followSymlinks bool, visitedCanonical map[string]bool, visit func(relPath string, depth int)) error {
	return walkDir(root, root, 0, maxDepth, followSymlinks, visitedCanonical, visit)
}

func walkDir(root, dir string, depth, maxDepth int, followSymlinks bool, visitedCanonical map[string]bool, visit func(relPath string, depth int)) error {
	if depth > maxDepth {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil // permission errors: log and continue (caller has no logger; treated as empty)
	}

	for _, e := range entries {
		full := filepath.Join(dir, e.Name())

		if e.Type()&os.ModeSymlink != 0 {
			if !followSymlinks {
				continue
			}
			canon, err := filepath.EvalSymlinks(full)
			if err != nil || visitedCanonical[canon] {
				continue
			}
			visitedCanonical[canon] = true
			info, err := os.Stat(full)
			if err != nil {
				continue
			}
			if info.IsDir() {
				if err := walkDir(root, full, depth+1, maxDepth, followSymlinks, visitedCanonical, visit); err != nil {
					return err
				}
				continue
			}
			rel, _ := filepath.Rel(root, full)
			visit(rel, depth)
			continue
		}

		if e.IsDir() {
			if err := walkDir(root, full, depth+1, maxDepth, followSymlinks, visitedCanonical, visit); err != nil {
				return err
			}
			continue
		}

		rel, _ := filepath.Rel(root, full)
		visit(rel, depth)
	}
	return nil
}

// applyIDMap is step 2.
func applyIDMap(mods []*discovered, idMapPath string, report *Report) error {
	raw, err := os.ReadFile(idMapPath)
	if err != nil {
		return core.NewError(core.CodeConfigError, "cannot read id-map file").WithCause(err)
	}
	var file idMapFile
	if err := yamlutil.UnmarshalStrict(raw, &file); err != nil {
		return core.NewError(core.CodeConfigError, "cannot parse id-map file").WithCause(err)
	}

	dir := filepath.Dir(idMapPath)
	byRelPath := make(map[string]*discovered, len(mods))
	for _, m := range mods {
		byRelPath[m.FilePath] = m
	}

	for _, mapping := range file.Mappings {
		target := filepath.Join(dir, mapping.File)
		m, ok := byRelPath[target]
		if !ok {
			report.warn("id-map entry has no matching discovered module: " + mapping.File)
			continue
		}
		m.CanonicalID = mapping.ID
		m.classHint = mapping.Class
	}
	return nil
}

// loadMetadata is step 3.
func loadMetadata(m *discovered, report *Report) error {
	metaPath := strings.TrimSuffix(m.FilePath, filepath.Ext(m.FilePath)) + "_meta.yaml"
	m.MetaPath = metaPath

	raw, err := os.ReadFile(metaPath)
	if err != nil {
		m.metadata = map[string]any{}
		return nil
	}

	var doc map[string]any
	if err := yamlutil.UnmarshalStrict(raw, &doc); err != nil {
		return core.NewError(core.CodeConfigError, "malformed metadata for "+m.CanonicalID).WithCause(err)
	}
	if doc == nil {
		return core.NewError(core.CodeConfigError, "metadata root is not a mapping for "+m.CanonicalID)
	}
	m.metadata = doc
	return nil
}

// resolveEntryPoint is step 4: explicit entry_point > ID-map class hint
// > the discovered file's path (its root joined with the path under it),
// looked up in the
// SourceRegistry (the static-target stand-in for duck-type inference).
func resolveEntryPoint(m *discovered, reg *SourceRegistry) error {
	if reg == nil {
		return core.NewError(core.CodeModuleLoad, "no module class: no SourceRegistry configured")
	}

	key := m.FilePath
	if ep, ok := m.metadata["entry_point"].(string); ok && ep != "" {
		key = ep
	} else if m.classHint != "" {
		key = m.classHint
	}

	factory, ok := reg.Lookup(key)
	if !ok {
		return core.NewError(core.CodeModuleLoad, "No module class: "+key)
	}
	m.source = factory()
	return nil
}

// validateSource is step 5: confirm shape, collecting all errors.
func validateSource(m *discovered) error {
	var problems []string
	if m.source.InputSchema == nil {
		problems = append(problems, "missing input_schema")
	}
	if m.source.OutputSchema == nil {
		problems = append(problems, "missing output_schema")
	}
	if strings.TrimSpace(m.source.Description) == "" {
		problems = append(problems, "missing description")
	}
	if m.source.Handler == nil {
		problems = append(problems, "missing execute handler")
	}
	if len(problems) > 0 {
		return core.NewError(core.CodeModuleLoad, "invalid module "+m.CanonicalID+": "+strings.Join(problems, "; "))
	}
	return nil
}

// collectDependencies is step 6.
func collectDependencies(m *discovered) ([]core.DependencyInfo, error) {
	raw, ok := m.metadata["dependencies"]
	if !ok {
		return nil, nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, core.NewError(core.CodeConfigError, "dependencies must be a list for "+m.CanonicalID)
	}

	deps := make([]core.DependencyInfo, 0, len(list))
	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			return nil, core.NewError(core.CodeConfigError, "dependency entry must be a mapping for "+m.CanonicalID)
		}
		dep := core.DependencyInfo{}
		if id, ok := entry["module_id"].(string); ok {
			dep.ModuleID = id
		}
		if v, ok := entry["version"].(string); ok {
			dep.Version = v
		}
		if opt, ok := entry["optional"].(bool); ok {
			dep.Optional = opt
		}
		deps = append(deps, dep)
	}
	return deps, nil
}

// buildModule is step 8's instantiate-and-merge: YAML metadata wins
// over code-level Factory defaults, which win over built-in zero
// values (spec.md §4.4 step 8: "YAML > code > built-in defaults").
func buildModule(m *discovered) *core.Module {
	module := &core.Module{
		ID:           m.CanonicalID,
		Description:  m.source.Description,
		InputSchema:  m.source.InputSchema,
		OutputSchema: m.source.OutputSchema,
		Version:      m.source.Version,
		Tags:         m.source.Tags,
		Annotations:  core.DefaultAnnotations(),
		Metadata:     mergeMetadata(m.source.Metadata, m.metadata),
		Handler:      m.source.Handler,
		OnLoad:       m.source.OnLoad,
		OnUnload:     m.source.OnUnload,
		Dependencies: m.deps,
	}

	if desc, ok := m.metadata["description"].(string); ok && desc != "" {
		module.Description = desc
	}
	if v, ok := m.metadata["version"].(string); ok && v != "" {
		module.Version = v
	}
	if tags, ok := m.metadata["tags"].([]interface{}); ok {
		strs := make([]string, 0, len(tags))
		for _, t := range tags {
			if s, ok := t.(string); ok {
				strs = append(strs, s)
			}
		}
		if len(strs) > 0 {
			module.Tags = strs
		}
	}
	return module
}

// mergeMetadata shallowly merges a module's `metadata` sub-dict: YAML
// values override code-level defaults key by key.
func mergeMetadata(codeDefaults, yamlMeta map[string]any) map[string]any {
	out := make(map[string]any, len(codeDefaults)+len(yamlMeta))
	for k, v := range codeDefaults {
		out[k] = v
	}
	if nested, ok := yamlMeta["metadata"].(map[string]any); ok {
		for k, v := range nested {
			out[k] = v
		}
	}
	return out
}
