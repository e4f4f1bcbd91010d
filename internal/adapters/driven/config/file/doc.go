// Package file provides the file-based configuration adapter.
// Configuration is persisted as TOML in the docvault config directory.
package file
