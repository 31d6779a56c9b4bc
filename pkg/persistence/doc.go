// Package persistence saves whitelisted module slices of the state tree to a
// ports.Storage and restores them on startup.
//
// A Persistor is attached to the container as a listener. Rehydrate dispatches
// the initial persist/REHYDRATE action; slices for modules registered later are
// applied with Restore when those modules register.
package persistence
