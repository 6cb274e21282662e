// Package codec converts RPC results to and from a JSON envelope that keeps
// types plain JSON cannot carry.
//
// The envelope has two parts: "json" holds the value with every special leaf
// replaced by a JSON-safe stand-in, and "meta" records, per dot path, which
// stand-ins must be turned back into Dates, undefined, bigints, NaN and
// Infinity, regular expressions or Errors. Values reachable through more than
// one path are written once and re-linked on decode; cycles and values with
// no transport form become an Unserializable sentinel instead of failing the
// call.
//
// Dates travel in the Date.prototype.toISOString form, so a time.Time keeps
// millisecond precision only. A fault.Record is written as its plain fields
// rather than as a tagged Error, keeping its code and stack.
package codec
