// Package main is the entry point of the app server.
//
// Commands:
//
//	toolpad-server serve [--port 3000] [--dev] [--seed-dir ./apps]
//	toolpad-server run ./function.js --params '{"n": 1}'
//
// serve starts the HTTP server (RPC endpoint, app DOM endpoint, health and
// metrics). run executes a single function module in the sandbox and
// prints its encoded result, which is handy when writing functions.
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
