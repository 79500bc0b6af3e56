package acl

import "github.com/edgecomet/apcore/pattern"

// Effect is the outcome an ACLRule produces when matched.
type Effect string

const (
	Allow Effect = "allow"
	Deny  Effect = "deny"
)

// Conditions are AND-combined extra predicates a rule must satisfy
// beyond the caller/target pattern match (spec.md §4.2).
type Conditions struct {
	IdentityTypes []string
	Roles         []string
	MaxCallDepth  *int
}

// Rule is one ACL rule: a set of caller patterns, a set of target
// patterns, an effect, and optional conditions (spec.md §3 "ACLRule").
type Rule struct {
	Callers     []string
	Targets     []string
	Effect      Effect
	Description string
	Conditions  *Conditions

	compiledCallers []*pattern.Compiled
	compiledTargets []*pattern.Compiled
}

// compile pre-splits every caller/target pattern once so repeated
// Check calls avoid re-splitting strings on every evaluation.
func (r *Rule) compile() {
	r.compiledCallers = make([]*pattern.Compiled, len(r.Callers))
	for i, p := range r.Callers {
		r.compiledCallers[i] = pattern.Compile(p)
	}
	r.compiledTargets = make([]*pattern.Compiled, len(r.Targets))
	for i, p := range r.Targets {
		r.compiledTargets[i] = pattern.Compile(p)
	}
}

func (r *Rule) matchesCaller(effectiveCaller string, isSystem bool) bool {
	for i, p := range r.Callers {
		switch p {
		case externalPattern:
			if effectiveCaller == "" {
				return true
			}
		case systemPattern:
			if isSystem {
				return true
			}
		default:
			if r.compiledCallers[i].Match(effectiveCaller) {
				return true
			}
		}
	}
	return false
}

func (r *Rule) matchesTarget(target string) bool {
	for _, c := range r.compiledTargets {
		if c.Match(target) {
			return true
		}
	}
	return false
}
