// Package config loads the arbor service configuration from a YAML file and
// ARBOR_* environment variables.
package config
