package executor

import "fmt"

// TaskError wraps a task execution failure with its task and tool.
type TaskError struct {
	TaskID string
	Tool   string
	Err    error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s (%s): %v", e.TaskID, e.Tool, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}
