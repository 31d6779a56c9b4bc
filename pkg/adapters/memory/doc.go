// Package memory provides an in-memory snapshot store for tests and single-run processes.
package memory
