// Package server assembles the application: configuration, logging,
// metrics, tracing, the sandbox host and its fetch client, the app store,
// data sources and the RPC method table, behind a gin router.
package server
