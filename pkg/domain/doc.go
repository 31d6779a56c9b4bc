/*
Package domain contains the core types shared by the arbor runtime.

It defines the state tree, actions, reducers and the observability events, and
is kept free of I/O and persistence concerns.

# Key Entities

  - Tree: the application state, one slice per module key plus the reserved "_persist" record.
  - Action: an immutable {type, payload} record. Types are namespaced by module key ("cart/ADD").
  - Reducer: a pure function computing the next slice of one module.
  - Snapshot: the durable, versioned form of the whitelisted slices.
  - LifecycleHooks: callbacks fired on dispatches, module registration and effect tasks.
*/
package domain
