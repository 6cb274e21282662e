package sandbox

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrHostClosed          = errors.New("sandbox host is closed")
	ErrUnresolvedReference = errors.New("result contains an unresolved bridge reference")
	ErrCyclicValue         = errors.New("result contains a cyclic value")
	ErrHandleRevoked       = errors.New("bridge handle revoked")
	ErrResultTooLarge      = errors.New("result exceeds the export limit")
)

// CompileError means the module could not be loaded: a syntax error, or not
// exactly one callable export.
type CompileError struct {
	Module  string
	Message string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile %s: %s", e.Module, e.Message)
}

func (e *CompileError) Code() string { return "COMPILE_ERROR" }

// RuntimeError is a value thrown or rejected by sandboxed code.
type RuntimeError struct {
	Name    string
	Message string
	Stack   string
}

func (e *RuntimeError) Error() string {
	if e.Name == "" {
		return e.Message
	}
	return e.Name + ": " + e.Message
}

func (e *RuntimeError) Code() string { return "RUNTIME_ERROR" }

func (e *RuntimeError) StackTrace() string { return e.Stack }

// TimeoutError means the invocation outlived its deadline.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("function timed out after %s", e.Timeout)
}

func (e *TimeoutError) Code() string { return "TIMEOUT" }

// MemoryLimitError means heap growth during the invocation exceeded the
// configured ceiling.
type MemoryLimitError struct {
	LimitMB int64
}

func (e *MemoryLimitError) Error() string {
	return fmt.Sprintf("function exceeded memory limit of %d MB", e.LimitMB)
}

func (e *MemoryLimitError) Code() string { return "MEMORY_LIMIT" }

type codedError struct {
	err  error
	code string
}

func (e *codedError) Error() string { return e.err.Error() }
func (e *codedError) Unwrap() error { return e.err }
func (e *codedError) Code() string  { return e.code }

func unresolved(detail string) error {
	return &codedError{err: fmt.Errorf("%w: %s", ErrUnresolvedReference, detail), code: "UNRESOLVED_REFERENCE"}
}

func cyclic(path string) error {
	return &codedError{err: fmt.Errorf("%w at %s", ErrCyclicValue, path), code: "CYCLIC_VALUE"}
}

func tooLarge(values, bytes int) error {
	return &codedError{
		err:  fmt.Errorf("%w: %d values, %d bytes", ErrResultTooLarge, values, bytes),
		code: "RESULT_TOO_LARGE",
	}
}

// outcome labels an invocation result for metrics and logs.
func outcome(err error) string {
	var (
		compileErr *CompileError
		runtimeErr *RuntimeError
		timeoutErr *TimeoutError
		memoryErr  *MemoryLimitError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &compileErr):
		return "compile_error"
	case errors.As(err, &runtimeErr):
		return "runtime_error"
	case errors.As(err, &timeoutErr):
		return "timeout"
	case errors.As(err, &memoryErr):
		return "memory_limit"
	case errors.Is(err, ErrUnresolvedReference), errors.Is(err, ErrCyclicValue), errors.Is(err, ErrResultTooLarge):
		return "marshal_error"
	default:
		return "aborted"
	}
}
