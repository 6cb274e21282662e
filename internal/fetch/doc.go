// Package fetch performs the outbound HTTP requests issued by sandboxed
// functions.
//
// Requests are checked against a host allowlist, rate limited, and sent
// through resty with one circuit breaker per host. Do returns as soon as the
// headers arrive; the body stays open until ReadText or Close, so a function
// that never reads a body never pays for downloading it.
package fetch
