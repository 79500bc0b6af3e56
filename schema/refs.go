package schema

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// MaxRefDepth is the hard floor on $ref resolution depth, independent
// of the visited-set cycle check (spec.md §4.3 "a max_depth of 32 is
// an additional hard floor").
const MaxRefDepth = 32

// FileLoader loads and parses a schema YAML/JSON file from disk into a
// Node, used to resolve cross-file $refs.
type FileLoader func(path string) (Node, error)

// ModuleFileResolver maps a module_id to the filesystem path of its
// schema file, used to resolve canonical `apcore://module.id/path` refs.
type ModuleFileResolver func(moduleID string) (string, error)

// RefResolver resolves `$ref` keywords within a schema document
// (spec.md §4.3 "$ref resolver").
type RefResolver struct {
	SchemasRoot  string
	LoadFile     FileLoader
	ResolveModule ModuleFileResolver

	fileCache map[string]Node
}

// Resolve walks root (loaded from sourcePath) and returns a new
// document with every `$ref` replaced by a deep copy of its resolved
// target, sibling keys merged over the target.
func (r *RefResolver) Resolve(root Node, sourcePath string) (Node, error) {
	if r.fileCache == nil {
		r.fileCache = map[string]Node{absPath(sourcePath): root}
	} else {
		r.fileCache[absPath(sourcePath)] = root
	}
	stack := make([]string, 0, 4)
	out, err := r.resolveValue(root, sourcePath, stack, 0)
	if err != nil {
		return nil, err
	}
	resolved, _ := asNode(out)
	return resolved, nil
}

func (r *RefResolver) resolveValue(v interface{}, currentFile string, stack []string, depth int) (interface{}, error) {
	switch t := v.(type) {
	case Node:
		return r.resolveNode(t, currentFile, stack, depth)
	case map[string]interface{}:
		return r.resolveNode(Node(t), currentFile, stack, depth)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			rv, err := r.resolveValue(e, currentFile, stack, depth)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	default:
		return v, nil
	}
}

func (r *RefResolver) resolveNode(n Node, currentFile string, stack []string, depth int) (interface{}, error) {
	refVal, hasRef := n["$ref"]
	if !hasRef {
		out := make(Node, len(n))
		for k, v := range n {
			rv, err := r.resolveValue(v, currentFile, stack, depth)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	}

	ref, ok := refVal.(string)
	if !ok {
		return nil, &ParseError{Path: currentFile, Reason: "$ref must be a string"}
	}

	fullRef := currentFile + "#" + ref
	for _, seen := range stack {
		if seen == fullRef {
			chain := append(append([]string(nil), stack...), fullRef)
			return nil, &CircularRefError{Chain: chain}
		}
	}
	if depth+1 > MaxRefDepth {
		chain := append(append([]string(nil), stack...), fullRef)
		return nil, &CircularRefError{Chain: chain}
	}

	target, targetFile, err := r.dereference(ref, currentFile)
	if err != nil {
		return nil, err
	}

	// Sibling keys alongside $ref are merged over the resolved target
	// (spec.md: "sibling keys alongside $ref are merged over the
	// resolved target").
	merged := cloneNode(target)
	for k, v := range n {
		if k == "$ref" {
			continue
		}
		merged[k] = v
	}

	nextStack := append(append([]string(nil), stack...), fullRef)
	resolved, err := r.resolveValue(merged, targetFile, nextStack, depth+1)
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

// dereference resolves a single $ref string to its target Node and the
// file that Node should be considered to live in (for further nested
// $ref resolution relative to that file).
func (r *RefResolver) dereference(ref, currentFile string) (Node, string, error) {
	switch {
	case strings.HasPrefix(ref, "apcore://"):
		return r.dereferenceCanonical(ref)
	case strings.HasPrefix(ref, "#"):
		doc, err := r.loadDoc(currentFile)
		if err != nil {
			return nil, "", err
		}
		target, err := r.navigatePointer(doc, strings.TrimPrefix(ref, "#"))
		if err != nil {
			return nil, "", err
		}
		return target, currentFile, nil
	default:
		return r.dereferenceCrossFile(ref, currentFile)
	}
}

func (r *RefResolver) dereferenceCanonical(ref string) (Node, string, error) {
	rest := strings.TrimPrefix(ref, "apcore://")
	idx := strings.Index(rest, "/")
	var moduleID, pointer string
	if idx == -1 {
		moduleID, pointer = rest, ""
	} else {
		moduleID, pointer = rest[:idx], rest[idx:]
	}
	if r.ResolveModule == nil {
		return nil, "", &ParseError{Reason: fmt.Sprintf("no module resolver configured for apcore://%s", rest)}
	}
	path, err := r.ResolveModule(moduleID)
	if err != nil {
		return nil, "", err
	}
	doc, err := r.loadDoc(path)
	if err != nil {
		return nil, "", err
	}
	target, err := r.navigatePointer(doc, pointer)
	if err != nil {
		return nil, "", err
	}
	return target, path, nil
}

func (r *RefResolver) dereferenceCrossFile(ref, currentFile string) (Node, string, error) {
	parts := strings.SplitN(ref, "#", 2)
	filePart := parts[0]
	pointer := ""
	if len(parts) == 2 {
		pointer = parts[1]
	}

	candidate := filepath.Join(filepath.Dir(currentFile), filePart)
	doc, err := r.loadDoc(candidate)
	if err != nil {
		if r.SchemasRoot != "" {
			candidate = filepath.Join(r.SchemasRoot, filePart)
			doc, err = r.loadDoc(candidate)
		}
		if err != nil {
			return nil, "", err
		}
	}
	target, err := r.navigatePointer(doc, pointer)
	if err != nil {
		return nil, "", err
	}
	return target, candidate, nil
}

func (r *RefResolver) loadDoc(path string) (Node, error) {
	key := absPath(path)
	if r.fileCache == nil {
		r.fileCache = map[string]Node{}
	}
	if doc, ok := r.fileCache[key]; ok {
		return doc, nil
	}
	if r.LoadFile == nil {
		return nil, &ParseError{Path: path, Reason: "no file loader configured"}
	}
	doc, err := r.LoadFile(path)
	if err != nil {
		return nil, err
	}
	r.fileCache[key] = doc
	return doc, nil
}

// navigatePointer walks an RFC 6901 JSON Pointer ("" or "/a/b/0") from
// doc, unescaping ~1 -> "/" and ~0 -> "~" in each segment.
func (r *RefResolver) navigatePointer(doc Node, pointer string) (Node, error) {
	if pointer == "" || pointer == "/" {
		return doc, nil
	}
	if !strings.HasPrefix(pointer, "/") {
		return nil, &ParseError{Reason: fmt.Sprintf("invalid JSON pointer %q: must start with /", pointer)}
	}

	var cur interface{} = doc
	for _, raw := range strings.Split(pointer[1:], "/") {
		seg := unescapePointerSegment(raw)
		switch c := cur.(type) {
		case Node:
			next, ok := c[seg]
			if !ok {
				return nil, &ParseError{Reason: fmt.Sprintf("pointer %q: no such key %q", pointer, seg)}
			}
			cur = next
		case map[string]interface{}:
			next, ok := c[seg]
			if !ok {
				return nil, &ParseError{Reason: fmt.Sprintf("pointer %q: no such key %q", pointer, seg)}
			}
			cur = next
		case []interface{}:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(c) {
				return nil, &ParseError{Reason: fmt.Sprintf("pointer %q: invalid array index %q", pointer, seg)}
			}
			cur = c[idx]
		default:
			return nil, &ParseError{Reason: fmt.Sprintf("pointer %q: cannot descend into scalar at %q", pointer, seg)}
		}
	}

	node, ok := asNode(cur)
	if !ok {
		return nil, &ParseError{Reason: fmt.Sprintf("pointer %q does not resolve to an object", pointer)}
	}
	return node, nil
}

func unescapePointerSegment(seg string) string {
	seg = strings.ReplaceAll(seg, "~1", "/")
	seg = strings.ReplaceAll(seg, "~0", "~")
	return seg
}

func absPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}
