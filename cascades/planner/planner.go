// Package planner is the Cascades search: it explores a memo with a work
// list of tasks, fires rules on every member, and extracts the cheapest plan
// satisfying the requested ordering.
//
// File organization:
//   - planner.go: Planner, Plan() and the exploration work list
//   - rulecall.go: the interface rules use to change the memo
//   - extract.go: cost-based plan extraction with ordering enforcement
//   - cache.go: plan cache keyed by query text and configuration
//   - concurrent.go: planning independent queries on a worker pool
//
// Start with Plan() in planner.go to understand the planning flow.
package planner

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/wbrown/janus-cascades/cascades/annotations"
	"github.com/wbrown/janus-cascades/cascades/match"
	"github.com/wbrown/janus-cascades/cascades/matching"
	"github.com/wbrown/janus-cascades/cascades/memo"
	"github.com/wbrown/janus-cascades/cascades/properties"
)

// Planner plans queries against one schema with one rule set.
type Planner struct {
	ctx    *PlanContext
	rules  *RuleSet
	config Configuration
}

// NewPlanner creates a planner.
func NewPlanner(ctx *PlanContext, rules *RuleSet, config Configuration) *Planner {
	return &Planner{ctx: ctx, rules: rules, config: config}
}

// Context returns the schema context.
func (p *Planner) Context() *PlanContext { return p.ctx }

// Configuration returns the planner configuration.
func (p *Planner) Configuration() Configuration { return p.config }

// Query is a logical query graph ready to be planned.
type Query struct {
	// Key identifies the query for the plan cache, usually its text. Queries
	// without a key are never cached.
	Key string

	Memo     *memo.Memo
	Root     memo.GroupID
	Ordering properties.RequestedOrdering
}

// Stats describes one planning run.
type Stats struct {
	Tasks          int
	Groups         int
	Expressions    int
	PartialMatches int
	Duration       time.Duration
}

// Result is a planned query.
type Result struct {
	ID    uuid.UUID
	Query Query
	Root  *PlanNode
	Stats Stats
}

// Plan explores q and returns its cheapest plan.
func (p *Planner) Plan(q Query) (*Result, error) {
	if p.config.Cache != nil && q.Key != "" {
		if cached, ok := p.config.Cache.Get(q.Key, q.Ordering, p.config); ok {
			return cached, nil
		}
	}

	res, err := p.plan(q)
	if err != nil {
		return nil, err
	}

	if p.config.Cache != nil && q.Key != "" {
		p.config.Cache.Set(q.Key, q.Ordering, p.config, res)
	}
	return res, nil
}

func (p *Planner) plan(q Query) (*Result, error) {
	start := time.Now()
	id := uuid.New()
	collector := p.config.Annotations
	collector.AddEvent(annotations.PlanningBegin, map[string]any{
		"id":   id.String(),
		"root": q.Root.String(),
	})

	s := newSearch(p, q.Memo)
	err := s.run(q.Root, q.Ordering)
	var root *PlanNode
	if err == nil {
		root = newExtractor(q.Memo, p.ctx.Statistics).optimize(q.Root, q.Ordering)
		if root == nil {
			err = errors.Wrapf(ErrNoPlan, "group %s ordered by %s", q.Root, q.Ordering)
		}
	}

	stats := Stats{
		Tasks:          s.count,
		Groups:         q.Memo.NumGroups(),
		Expressions:    s.members,
		PartialMatches: s.matchCount,
		Duration:       time.Since(start),
	}
	if err != nil {
		collector.AddEvent(annotations.ErrorPlanning, map[string]any{"id": id.String(), "error": err.Error()})
		collector.AddTiming(annotations.PlanningComplete, start, map[string]any{"id": id.String(), "error": err.Error()})
		return nil, err
	}

	collector.AddEvent(annotations.PlanSelected, map[string]any{
		"id":   id.String(),
		"cost": root.Estimate.Cost,
		"plan": root.String(),
	})
	collector.AddTiming(annotations.PlanningComplete, start, map[string]any{
		"id":     id.String(),
		"tasks":  stats.Tasks,
		"groups": stats.Groups,
	})
	return &Result{ID: id, Query: q, Root: root, Stats: stats}, nil
}

type taskKind int

const (
	exploreGroup taskKind = iota
	exploreExpression
	applyPreOrder
	applyPostOrder
)

type task struct {
	kind  taskKind
	group memo.GroupID
	expr  memo.Expression
}

// search is the state of one planning run. The memo listener feeds every
// new member back into the work list, so the loop runs until no rule has
// anything left to add.
type search struct {
	p *Planner
	m *memo.Memo

	tasks    []task
	pending  map[task]bool
	explored map[memo.Expression]bool

	matches map[memo.GroupID]match.PartialMatchSet

	count      int
	members    int
	matchCount int
}

func newSearch(p *Planner, m *memo.Memo) *search {
	return &search{
		p:        p,
		m:        m,
		pending:  make(map[task]bool),
		explored: make(map[memo.Expression]bool),
		matches:  make(map[memo.GroupID]match.PartialMatchSet),
	}
}

func (s *search) push(t task) {
	if s.pending[t] {
		return
	}
	s.pending[t] = true
	s.tasks = append(s.tasks, t)
}

func (s *search) run(root memo.GroupID, required properties.RequestedOrdering) error {
	if !s.m.HasGroup(root) {
		return errors.AssertionFailedf("unknown root group %s", root)
	}
	for _, id := range s.m.Groups() {
		s.members += len(s.m.Group(id).Members())
	}
	s.m.SetListener(s.onMember)
	defer s.m.SetListener(nil)

	properties.Push(s.m.Group(root), properties.OrderingAttribute, properties.OrderingSet{required})
	s.push(task{kind: exploreGroup, group: root})

	budget := s.p.config.MaxTaskCount
	for len(s.tasks) > 0 {
		if budget > 0 && s.count >= budget {
			return errors.Wrapf(ErrTaskBudgetExceeded, "after %d tasks", s.count)
		}
		t := s.tasks[len(s.tasks)-1]
		s.tasks = s.tasks[:len(s.tasks)-1]
		delete(s.pending, t)
		s.count++

		switch t.kind {
		case exploreGroup:
			for _, e := range s.m.Group(t.group).Members() {
				s.scheduleExploration(t.group, e)
			}
		case exploreExpression:
			s.expand(t.group, t.expr)
		case applyPreOrder, applyPostOrder:
			if err := s.applyRules(t.group, t.expr, t.kind == applyPreOrder); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *search) scheduleExploration(group memo.GroupID, e memo.Expression) {
	if s.explored[e] {
		return
	}
	s.explored[e] = true
	s.push(task{kind: exploreExpression, group: group, expr: e})
}

// expand queues the rules of e around the exploration of its children. The
// work list is LIFO, so pushes happen in reverse of execution order.
func (s *search) expand(group memo.GroupID, e memo.Expression) {
	s.push(task{kind: applyPostOrder, group: group, expr: e})
	qs := e.Quantifiers()
	for i := len(qs) - 1; i >= 0; i-- {
		s.push(task{kind: exploreGroup, group: qs[i].Group})
	}
	s.push(task{kind: applyPreOrder, group: group, expr: e})
}

func (s *search) applyRules(group memo.GroupID, e memo.Expression, preOrder bool) error {
	for _, r := range s.p.rules.Rules() {
		if IsPreOrder(r) != preOrder || !s.p.config.IsRuleEnabled(r.Name()) {
			continue
		}
		if err := s.applyRule(r, group, e); err != nil {
			return err
		}
	}
	return nil
}

// applyRule fires r once per binding of e. Structural violations raised
// while matching or while the rule changes the memo surface as
// PlanningErrors.
func (s *search) applyRule(r Rule, group memo.GroupID, e memo.Expression) (err error) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		cause, ok := rec.(error)
		if !ok {
			panic(rec)
		}
		var pe *PlanningError
		if !errors.As(cause, &pe) {
			pe = newPlanningError(r.Name(), e, cause)
		}
		err = pe
	}()

	for b := range r.Matcher().BindMatches(s.m, matching.EmptyBindings(), e) {
		call := &RuleCall{s: s, rule: r, group: group, expr: e, bindings: b}
		s.p.config.Annotations.AddEvent(annotations.RuleFired, map[string]any{
			"rule":       r.Name(),
			"group":      group.String(),
			"expression": e.String(),
		})
		r.OnMatch(call)
	}
	return nil
}

// onMember schedules a new member for exploration and re-runs the rules of
// every expression ranging over its group.
func (s *search) onMember(group memo.GroupID, e memo.Expression) {
	s.members++
	collector := s.p.config.Annotations
	if len(s.m.Group(group).Members()) == 1 {
		collector.AddEvent(annotations.GroupCreated, map[string]any{"group": group.String(), "expression": e.String()})
	} else {
		collector.AddEvent(annotations.ExpressionYielded, map[string]any{"group": group.String(), "expression": e.String()})
	}
	s.scheduleExploration(group, e)
	s.rerunParents(group)
}

func (s *search) rerunParents(group memo.GroupID) {
	for _, parent := range s.m.Parents(group) {
		s.push(task{kind: applyPostOrder, group: parent.Group, expr: parent.Expression})
	}
}

func (s *search) addPartialMatch(pm *match.PartialMatch) bool {
	set := s.matches[pm.QueryGroup]
	if set.Contains(pm) {
		return false
	}
	s.matches[pm.QueryGroup] = append(set, pm)
	s.matchCount++
	s.p.config.Annotations.AddEvent(annotations.PartialMatchFound, map[string]any{
		"group":     pm.QueryGroup.String(),
		"candidate": pm.Candidate.Name(),
		"complete":  pm.IsComplete(),
	})
	for _, e := range s.m.Group(pm.QueryGroup).Members() {
		s.push(task{kind: applyPostOrder, group: pm.QueryGroup, expr: e})
	}
	s.rerunParents(pm.QueryGroup)
	return true
}

func (s *search) requirementChanged(group memo.GroupID, attr string, value any) {
	s.p.config.Annotations.AddEvent(annotations.RequirementPushed, map[string]any{
		"group":     group.String(),
		"attribute": attr,
		"value":     value,
	})
	for _, e := range s.m.Group(group).Members() {
		s.push(task{kind: applyPostOrder, group: group, expr: e})
		s.push(task{kind: applyPreOrder, group: group, expr: e})
	}
}
