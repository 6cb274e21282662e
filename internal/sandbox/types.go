package sandbox

import (
	"context"
	"time"

	"github.com/GriffinCanCode/toolpad/internal/fetch"
)

// Config bounds every invocation
type Config struct {
	Timeout           time.Duration // Wall-clock limit per invocation
	MaxMemoryMB       int64         // Heap growth limit per invocation, 0 disables
	PoolSize          int           // Pre-warmed runtimes kept ready
	MaxCallStackSize  int           // JS call depth limit
	MaxConsoleEntries int           // Console entries kept per invocation
}

// DefaultConfig returns the limits used when nothing is configured
func DefaultConfig() Config {
	return Config{
		Timeout:           5 * time.Second,
		MaxMemoryMB:       0,
		PoolSize:          4,
		MaxCallStackSize:  1024,
		MaxConsoleEntries: 1000,
	}
}

// Invocation describes one call of a user-authored function module
type Invocation struct {
	Name    string        // Module name used in stack traces
	Source  string        // Module source with a single export
	Args    []any         // Arguments, deep-copied into the sandbox
	Timeout time.Duration // Overrides Config.Timeout when positive
}

// Result holds what an invocation produced. It is returned on failure too,
// with Value nil and Console holding whatever was logged before the fault.
type Result struct {
	InvocationID string        `json:"invocationId"`
	Value        any           `json:"value,omitempty"`
	Console      []LogEntry    `json:"console"`
	Duration     time.Duration `json:"duration"`
	Handles      HandleStats   `json:"handles"`
}

// LogEntry is one console call made by sandboxed code
type LogEntry struct {
	Level   string    `json:"level"`   // log, info, warn, error, debug, trace
	Message string    `json:"message"` // Arguments joined for display
	Args    string    `json:"args"`    // Arguments as serialized inside the sandbox
	Time    time.Time `json:"timestamp"`
}

// HandleStats counts bridge handles over an invocation's life. After
// teardown Created == Consumed + Revoked.
type HandleStats struct {
	Created  int `json:"created"`
	Consumed int `json:"consumed"` // taken by a timer firing, clearTimeout or a body read
	Revoked  int `json:"revoked"`  // still live at teardown
}

// Fetcher performs outbound requests for the fetch bridge
type Fetcher interface {
	Do(ctx context.Context, req fetch.Request) (*fetch.Response, error)
}

// Recorder receives one sample per invocation
type Recorder interface {
	RecordInvocation(outcome string, duration time.Duration)
	InvocationStarted()
	InvocationFinished()
}
