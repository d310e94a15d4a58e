package assistant

import "fmt"

// InvalidInputError rejects a turn before any routing or state change.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid turn input: %s", e.Reason)
}
