/*
Package http holds the gin handlers of the server.

Endpoints:
  - POST /api/rpc: typed RPC; the method table is built by Methods
  - GET /api/app-dom/:appId: the DOM of an app version, readable cross-origin
  - GET /, /health, /metrics/json: liveness and component statistics

The RPC endpoint writes exactly one response per request. Unknown kinds or
method names get an empty 404 before any handler runs; everything else is
a 200 carrying either {"result": <encoded value>} or {"error": {...}}.
*/
package http
