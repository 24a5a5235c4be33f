package sandbox

import (
	"errors"
	"fmt"
	"time"
)

// ErrDisposed is returned by calls made after Dispose.
var ErrDisposed = errors.New("sandbox: function disposed")

// CompileError reports code that failed to parse or failed while its top
// level was evaluated.
type CompileError struct {
	Message string
	Cause   error
}

func (e *CompileError) Error() string {
	return "sandbox: compile error: " + e.Message
}

func (e *CompileError) Unwrap() error { return e.Cause }

// FunctionNotFoundError reports code that evaluated cleanly but did not
// define the requested function.
type FunctionNotFoundError struct {
	Name string
}

func (e *FunctionNotFoundError) Error() string {
	return fmt.Sprintf("sandbox: function %q not found in code", e.Name)
}

// ExecutionTimeoutError reports a call interrupted by its wall-clock budget.
type ExecutionTimeoutError struct {
	Timeout time.Duration
}

func (e *ExecutionTimeoutError) Error() string {
	return fmt.Sprintf("sandbox: function execution exceeded timeout of %dms", e.Timeout.Milliseconds())
}

// MemoryLimitError reports a call interrupted for growing the heap past the
// configured limit.
type MemoryLimitError struct {
	Limit uint64
}

func (e *MemoryLimitError) Error() string {
	return fmt.Sprintf("sandbox: memory limit of %d bytes exceeded", e.Limit)
}

// ExecutionError wraps an exception thrown by sandboxed code, or any other
// failure while a call was in progress.
type ExecutionError struct {
	Message string
	Cause   error
}

func (e *ExecutionError) Error() string {
	return "sandbox: execution error: " + e.Message
}

func (e *ExecutionError) Unwrap() error { return e.Cause }

// Kind classifies call-time failures into a small fixed set, suitable for
// metric labels.
func Kind(err error) string {
	var (
		timeout *ExecutionTimeoutError
		memory  *MemoryLimitError
		exec    *ExecutionError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &timeout):
		return "timeout"
	case errors.As(err, &memory):
		return "memory"
	case errors.As(err, &exec):
		return "exception"
	case errors.Is(err, ErrDisposed):
		return "disposed"
	default:
		return "other"
	}
}
