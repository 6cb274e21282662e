// Package rpc routes remote calls from the browser client to server-side
// handlers.
//
// A call names a kind (query or mutation) and a method. Both are closed sets:
// ParseKind and ParseMethod accept exact wire names only, and the Registry
// resolves a method only under the kind it was declared with. Anything that
// does not resolve is rejected with NotFoundError before a handler runs.
//
// The Dispatcher owns the lifecycle of a resolved call. It invokes the
// handler once, encodes the result with the codec package or normalizes the
// failure with the fault package, and writes one log line per call.
package rpc
