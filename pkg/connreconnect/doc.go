// Package connreconnect provides the delay calculator for reconnect loops,
// independent of what "connected" means to the caller.
//
// This package handles:
//   - Exponential backoff for reconnection attempts
//   - Jitter to prevent thundering herd
//
// It does not track connection state or reconnect by itself: the caller
// runs its own loop and asks Backoff for the delay before each attempt.
//
// # Reconnection Strategy
//
// When a connection is lost, the client uses exponential backoff:
//
//  1. Initial delay: 1 second
//  2. Exponential increase: 2s, 4s, 8s, 16s, 32s
//  3. Maximum delay: 60 seconds
//  4. Continue at 60s until successful
//  5. Reset to 1s on successful reconnection
//
// # Jitter
//
// To prevent thundering herd when multiple clients reconnect:
//
//	actual_delay = base_delay + random(0, base_delay * 0.25)
//
// pkg/gateway uses Backoff only for the sleep cadence between full mesh
// rescans; its own supervisor owns the mesh-specific failover policy (try
// every scanned address except the previously-connected one first, only
// falling back to the dead address once the rest have failed).
package connreconnect
