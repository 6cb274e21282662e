// Package config loads server settings from environment variables with
// envconfig. Every setting has a default, so an empty environment yields a
// runnable configuration identical to Default().
package config
