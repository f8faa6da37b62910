// Package gc implements the four garbage collection tasks and the
// scheduler that runs them in a fixed order once per cycle: idle session
// reaping, expired sandbox cleanup, orphan cargo cleanup, and orphan
// container cleanup.
package gc

import "context"

// Result summarizes the outcome of one task run within a cycle.
type Result struct {
	TaskName string
	Cleaned  int
	Errors   []error
}

// Task is one garbage collection unit. Implementations must be safe to
// call repeatedly and must not assume exclusive access beyond what the
// scheduler's run_lock already guarantees.
type Task interface {
	Name() string
	Run(ctx context.Context) Result
}
