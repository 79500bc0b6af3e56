// Package acl implements the first-match-wins access control engine
// described in spec.md §4.2: an ordered list of caller/target wildcard
// rules, evaluated top to bottom, falling back to a configured default
// effect when nothing matches.
//
// Grounded on the teacher's internal/common/config.PatternMatcher,
// whose FindMatchingRule walks an ordered rule slice under a read lock
// and returns the first match; this package generalizes that shape
// from single-pattern config overrides to caller+target+condition
// rules and renames the operation to Check.
package acl

import (
	"sync"

	"github.com/edgecomet/apcore/core"
)

// Decision is the outcome of an ACL check.
type Decision struct {
	Effect      Effect
	MatchedRule *Rule // nil when the default effect applied
}

// Allowed reports whether the decision permits the call.
func (d Decision) Allowed() bool { return d.Effect == Allow }

// ACL evaluates calls against an ordered set of rules. All mutating
// operations take a write lock; Check takes a snapshot of the rule
// slice header under a read lock and then evaluates lock-free, so a
// Reload racing with in-flight Checks never blocks them on each other
// for longer than the pointer swap itself.
type ACL struct {
	mu            sync.RWMutex
	rules         []*Rule
	defaultEffect Effect
}

// New creates an ACL with an explicit default effect and initial rule
// set. The rules are evaluated in the order given.
func New(defaultEffect Effect, rules []*Rule) *ACL {
	if defaultEffect != Allow && defaultEffect != Deny {
		defaultEffect = Deny
	}
	for _, r := range rules {
		r.compile()
	}
	a := &ACL{defaultEffect: defaultEffect}
	a.rules = append([]*Rule(nil), rules...)
	return a
}

// NewFromFile builds an ACL from an on-disk rule file.
func NewFromFile(path string) (*ACL, error) {
	defaultEffect, rules, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return New(defaultEffect, rules), nil
}

// snapshot returns the current rule slice and default effect under a
// read lock; the returned slice must be treated as immutable by the
// caller (a Reload never mutates an existing slice in place, only
// replaces a.rules wholesale).
func (a *ACL) snapshot() ([]*Rule, Effect) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.rules, a.defaultEffect
}

// Check evaluates the first rule (in declaration order) whose caller
// and target patterns both match, and whose conditions (if any) are
// satisfied by identity and callDepth. If no rule matches, the ACL's
// default effect applies.
func (a *ACL) Check(effectiveCaller, target string, identity core.Identity, callDepth int) Decision {
	rules, defaultEffect := a.snapshot()

	for _, r := range rules {
		if !r.matchesCaller(effectiveCaller, identity.IsSystem()) {
			continue
		}
		if !r.matchesTarget(target) {
			continue
		}
		if !conditionsSatisfied(r.Conditions, identity, callDepth) {
			continue
		}
		return Decision{Effect: r.Effect, MatchedRule: r}
	}
	return Decision{Effect: defaultEffect}
}

func conditionsSatisfied(c *Conditions, identity core.Identity, callDepth int) bool {
	if c == nil {
		return true
	}
	if len(c.IdentityTypes) > 0 && !containsString(c.IdentityTypes, identity.Type) {
		return false
	}
	if len(c.Roles) > 0 && !identity.HasAnyRole(c.Roles) {
		return false
	}
	if c.MaxCallDepth != nil && callDepth > *c.MaxCallDepth {
		return false
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// AddRule inserts a rule at position 0, so it is evaluated before every
// existing rule under first-match-wins (spec.md §4.2's addRule).
func (a *ACL) AddRule(r *Rule) {
	r.compile()
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rules = append([]*Rule{r}, a.rules...)
}

// RemoveRule removes the first rule matching description, if any, and
// reports whether a rule was removed. Rules are most reliably targeted
// by description since there is no separate rule ID in spec.md's
// ACLRule shape.
func (a *ACL) RemoveRule(description string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, r := range a.rules {
		if r.Description == description {
			next := make([]*Rule, 0, len(a.rules)-1)
			next = append(next, a.rules[:i]...)
			next = append(next, a.rules[i+1:]...)
			a.rules = next
			return true
		}
	}
	return false
}

// Reload replaces the default effect and rule set wholesale, e.g. from
// a file watch callback. It does not affect Checks already in flight
// against the prior snapshot.
func (a *ACL) Reload(defaultEffect Effect, rules []*Rule) {
	if defaultEffect != Allow && defaultEffect != Deny {
		defaultEffect = Deny
	}
	for _, r := range rules {
		r.compile()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.defaultEffect = defaultEffect
	a.rules = append([]*Rule(nil), rules...)
}

// ReloadFromFile re-reads and re-parses an ACL rule file and swaps it
// in atomically. On parse error the existing rule set is left intact.
func (a *ACL) ReloadFromFile(path string) error {
	defaultEffect, rules, err := LoadFile(path)
	if err != nil {
		return err
	}
	a.Reload(defaultEffect, rules)
	return nil
}

// Rules returns a copy of the current rule slice, for inspection/tests.
func (a *ACL) Rules() []*Rule {
	rules, _ := a.snapshot()
	return append([]*Rule(nil), rules...)
}

// DefaultEffect returns the ACL's current default effect.
func (a *ACL) DefaultEffect() Effect {
	_, effect := a.snapshot()
	return effect
}
