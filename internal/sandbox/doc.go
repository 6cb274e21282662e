/*
Package sandbox runs user-authored JavaScript function modules outside the
host's trust boundary.

# Overview

Each invocation gets a goja runtime of its own, taken from a pre-warmed
Pool and thrown away afterwards. Nothing survives from one invocation to
the next: globals, timers, pending fetches and console output all belong to
a single call.

# Bridge

Sandboxed code sees four host capabilities:

  - fetch, returning a response with single-use json() and text()
  - console (log, info, warn, error, debug, trace)
  - setTimeout and clearTimeout

The Go functions behind them sit on a bridge object given to the prelude,
which wraps them and installs the globals. Resources created through the
bridge (timers, unread bodies) are handles in a per-invocation table and
are revoked when the invocation ends.

# Execution

The runtime is driven by the goroutine calling Run. Host work happens on
other goroutines and re-enters the runtime only by posting a job to the
invocation's queue, which Run drains while it waits for the returned
promise to settle.

Limits:
  - Wall clock: Invocation.Timeout or Config.Timeout, enforced with
    vm.Interrupt
  - Heap growth: Config.MaxMemoryMB, sampled from runtime/metrics and
    charged only while one invocation runs; off when zero
  - Result size: values and text copied out of the runtime
  - Console text kept per invocation
  - Call depth: Config.MaxCallStackSize

# Usage Example

	host, err := sandbox.NewHost(sandbox.DefaultConfig(), fetcher, logger)
	if err != nil {
		return err
	}
	defer host.Close()

	result, err := host.Run(ctx, sandbox.Invocation{
		Name:   "orders.js",
		Source: "export default async function (n) { return n * 2 }",
		Args:   []any{21},
	})
*/
package sandbox
