package core

import "strings"

// Config is a hierarchical key-value tree with dot-path access (e.g.
// "executor.default_timeout"). Missing keys return the caller-supplied
// default rather than erroring, matching spec.md §3.
//
// Grounded on the teacher's internal/common/config.EGConfigManager,
// which layers a typed configuration struct behind a small accessor
// API; Config generalizes that to an untyped nested map since the
// Executor/Registry/ACL need to read arbitrary dotted paths without a
// fixed schema.
type Config struct {
	root map[string]any
}

// NewConfig wraps an existing nested map as a Config. A nil map is
// treated as empty.
func NewConfig(data map[string]any) *Config {
	if data == nil {
		data = map[string]any{}
	}
	return &Config{root: data}
}

// Get walks a dot-path (e.g. "executor.default_timeout_ms") through
// nested maps and returns the value found, or def if any segment is
// missing or not a map.
func (c *Config) Get(path string, def any) any {
	if c == nil {
		return def
	}
	segments := strings.Split(path, ".")
	var cur any = c.root
	for _, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return def
		}
		v, ok := m[seg]
		if !ok {
			return def
		}
		cur = v
	}
	return cur
}

// GetString returns the path's value as a string, or def.
func (c *Config) GetString(path string, def string) string {
	v := c.Get(path, def)
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

// GetInt returns the path's value as an int, or def. Accepts int,
// int64 and float64 (the latter is what YAML/JSON decoders commonly
// produce for bare numeric literals).
func (c *Config) GetInt(path string, def int) int {
	v := c.Get(path, def)
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	default:
		return def
	}
}

// GetBool returns the path's value as a bool, or def.
func (c *Config) GetBool(path string, def bool) bool {
	v := c.Get(path, def)
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

// Set assigns a value at a dot-path, creating intermediate maps as needed.
func (c *Config) Set(path string, value any) {
	segments := strings.Split(path, ".")
	cur := c.root
	for i, seg := range segments {
		if i == len(segments)-1 {
			cur[seg] = value
			return
		}
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[seg] = next
		}
		cur = next
	}
}
