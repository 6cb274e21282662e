// Package release answers "what is the newest published version?" for the
// editor's update banner. Lookups go to a GitHub-style releases endpoint
// and are cached in memory.
package release
