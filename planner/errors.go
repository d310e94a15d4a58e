package planner

import "fmt"

// PlanError means no plan could be created for a goal. The session
// stays idle when this is returned.
type PlanError struct {
	Goal string
	Err  error
}

func (e *PlanError) Error() string {
	return fmt.Sprintf("create plan for %q: %v", e.Goal, e.Err)
}

func (e *PlanError) Unwrap() error {
	return e.Err
}
