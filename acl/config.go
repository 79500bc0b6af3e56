package acl

import (
	"fmt"
	"os"

	"github.com/edgecomet/apcore/internal/common/yamlutil"
)

// externalPattern and systemPattern are the two reserved caller tokens
// spec.md §4.2 carves out of the normal wildcard matching: "@external"
// matches calls with no caller module (top-level entry), "@system"
// matches calls made under a system Identity.
const (
	externalPattern = "@external"
	systemPattern   = "@system"
)

// ruleFile is the on-disk shape of an ACL rule file, decoded with the
// same strict (unknown-field-rejecting) YAML decoder the rest of the
// runtime uses for operator-facing config.
type ruleFile struct {
	DefaultEffect string       `yaml:"default_effect"`
	Rules         []ruleConfig `yaml:"rules"`
}

type ruleConfig struct {
	Callers     []string          `yaml:"callers"`
	Targets     []string          `yaml:"targets"`
	Effect      string            `yaml:"effect"`
	Description string            `yaml:"description"`
	Conditions  *conditionsConfig `yaml:"conditions"`
}

type conditionsConfig struct {
	IdentityTypes []string `yaml:"identity_types"`
	Roles         []string `yaml:"roles"`
	MaxCallDepth  *int     `yaml:"max_call_depth"`
}

// LoadFile parses an ACL rule file from disk and returns the default
// effect plus the ordered, compiled rule list (evaluation order is the
// file's declaration order — spec.md §4.2 "first match wins").
func LoadFile(path string) (Effect, []*Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("acl: read %s: %w", path, err)
	}
	return LoadBytes(raw)
}

// LoadBytes parses ACL rule YAML already read into memory.
func LoadBytes(raw []byte) (Effect, []*Rule, error) {
	var file ruleFile
	if err := yamlutil.UnmarshalStrict(raw, &file); err != nil {
		return "", nil, fmt.Errorf("acl: parse rule file: %w", err)
	}

	defaultEffect := Effect(file.DefaultEffect)
	if defaultEffect == "" {
		defaultEffect = Deny
	}
	if defaultEffect != Allow && defaultEffect != Deny {
		return "", nil, fmt.Errorf("acl: invalid default_effect %q", file.DefaultEffect)
	}

	rules := make([]*Rule, 0, len(file.Rules))
	for i, rc := range file.Rules {
		effect := Effect(rc.Effect)
		if effect != Allow && effect != Deny {
			return "", nil, fmt.Errorf("acl: rule %d: invalid effect %q", i, rc.Effect)
		}
		if len(rc.Callers) == 0 || len(rc.Targets) == 0 {
			return "", nil, fmt.Errorf("acl: rule %d: callers and targets must be non-empty", i)
		}
		r := &Rule{
			Callers:     rc.Callers,
			Targets:     rc.Targets,
			Effect:      effect,
			Description: rc.Description,
		}
		if rc.Conditions != nil {
			r.Conditions = &Conditions{
				IdentityTypes: rc.Conditions.IdentityTypes,
				Roles:         rc.Conditions.Roles,
				MaxCallDepth:  rc.Conditions.MaxCallDepth,
			}
		}
		r.compile()
		rules = append(rules, r)
	}
	return defaultEffect, rules, nil
}
