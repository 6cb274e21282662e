/*
Package monitoring provides performance monitoring and metrics collection.

# Overview

This package implements Prometheus-based metrics collection for the server,
tracking HTTP requests, RPC calls, sandboxed function invocations and the
fetches they make. Each Metrics value owns its registry; nothing is
registered globally.

# Features

- HTTP request metrics (latency, throughput, size)
- RPC call metrics by kind, method and outcome
- Sandbox invocation metrics (outcome, duration, in-flight gauge)
- Bridge fetch outcomes
- Go runtime and process collectors, uptime

*Metrics satisfies the recorder interfaces of the rpc, sandbox and fetch
packages, so one value is handed to all three.

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	dispatcher := rpc.NewDispatcher(registry, logger, rpc.WithMetrics(metrics))
*/
package monitoring
