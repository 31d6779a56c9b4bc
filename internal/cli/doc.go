// Package cli wires configuration into a running arbor service for the
// command line entry point.
package cli
