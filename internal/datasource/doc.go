// Package datasource connects query nodes of an app DOM to the code that
// executes them.
//
// A Registry maps data source ids ("function", ...) to implementations and
// Service resolves a query node from a stored DOM before handing it to the
// right one. Execution failures of the query itself are reported inside
// ExecResult; lookup failures are returned as errors.
package datasource
