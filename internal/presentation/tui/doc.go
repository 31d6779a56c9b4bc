// Package tui holds terminal presentation helpers for the arbor CLI.
package tui
