// Package app is the in-memory record keeper behind the RPC methods: apps,
// their editable DOM, numbered releases (DOM snapshots) and deployments.
//
// Versions are selected with "preview" for the editable DOM or a release
// number. The Seeder populates a Store from YAML files at startup.
package app
