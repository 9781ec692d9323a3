package planner

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-cascades/cascades/memo"
)

// ErrTaskBudgetExceeded is returned when planning runs out of tasks.
var ErrTaskBudgetExceeded = errors.New("planning task budget exceeded")

// ErrNoPlan is returned when no plan implements the query.
var ErrNoPlan = errors.New("no plan implements the query")

// PlanningError reports a rule that broke a structural invariant of the
// memo. It wraps an assertion failure.
type PlanningError struct {
	Rule       string
	Expression string
	cause      error
}

func newPlanningError(rule string, e memo.Expression, cause error) *PlanningError {
	return &PlanningError{Rule: rule, Expression: e.String(), cause: cause}
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("rule %s produced invalid expression %s: %v", e.Rule, e.Expression, e.cause)
}

func (e *PlanningError) Unwrap() error { return e.cause }
