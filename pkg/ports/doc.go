/*
Package ports defines the driven ports (interfaces) of the arbor runtime.

These interfaces decouple the container and persistence logic from concrete
backends, so snapshots can live in memory, on disk or in Redis.

# Key Interfaces

  - Storage: saves and loads snapshots of persisted slices.
  - Dispatcher: delivers actions to the state container.
  - StateReader: reads the current state tree.
*/
package ports
