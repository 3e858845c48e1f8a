// Package history persists sensor readings for later inspection.
//
// Sink is the controller's only view of storage: insert-only, synchronous
// from the caller's goroutine (the controller calls it from its
// notification-ingest loop), with errors swallowed rather than propagated —
// a storage outage must never stall the mesh control loop.
package history
