// Package function is the data source whose queries are user-authored
// JavaScript modules. Each execution runs in its own sandbox runtime; see
// package sandbox for the limits and the available globals.
package function
