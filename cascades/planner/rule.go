package planner

import (
	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-cascades/cascades/matching"
)

// Rule rewrites or implements the expressions its matcher binds.
type Rule interface {
	Name() string

	// Matcher is matched against each member of each explored group.
	Matcher() matching.BindingMatcher

	// OnMatch is called once per binding.
	OnMatch(call *RuleCall)
}

// PreOrderRule marks rules that run on an expression before the groups
// below it are explored. Rules pushing requirements downward are pre-order.
type PreOrderRule interface {
	Rule
	PreOrder()
}

// IsPreOrder reports whether r runs before its children are explored.
func IsPreOrder(r Rule) bool {
	_, ok := r.(PreOrderRule)
	return ok
}

// RuleSet is the ordered registry of rules a planner runs.
type RuleSet struct {
	rules  []Rule
	byName map[string]Rule
}

// NewRuleSet registers rules in application order. Names must be unique.
func NewRuleSet(rules ...Rule) (*RuleSet, error) {
	s := &RuleSet{byName: make(map[string]Rule, len(rules))}
	for _, r := range rules {
		if _, dup := s.byName[r.Name()]; dup {
			return nil, errors.Newf("rule %q registered twice", r.Name())
		}
		s.rules = append(s.rules, r)
		s.byName[r.Name()] = r
	}
	return s, nil
}

// MustRuleSet is NewRuleSet that panics on a duplicate name.
func MustRuleSet(rules ...Rule) *RuleSet {
	s, err := NewRuleSet(rules...)
	if err != nil {
		panic(err)
	}
	return s
}

// Rules returns the rules in application order.
func (s *RuleSet) Rules() []Rule { return s.rules }

// Rule returns the rule named name.
func (s *RuleSet) Rule(name string) (Rule, bool) {
	r, ok := s.byName[name]
	return r, ok
}

// Names returns the rule names in application order.
func (s *RuleSet) Names() []string {
	out := make([]string, len(s.rules))
	for i, r := range s.rules {
		out[i] = r.Name()
	}
	return out
}

// With returns a set with extra appended.
func (s *RuleSet) With(extra ...Rule) (*RuleSet, error) {
	return NewRuleSet(append(append([]Rule(nil), s.rules...), extra...)...)
}
