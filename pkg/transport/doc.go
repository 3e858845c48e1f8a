// Package transport owns exactly one attribute-protocol connection to a
// mesh gateway edge device at a time.
//
// # Dedicated I/O Goroutine
//
// The underlying link (a BLE central adapter in production, LinkDriver in
// tests) delivers notifications on its own callback goroutine and requires a
// continuously-pumped event loop to keep notification subscriptions alive; a
// loop that starts and stops per-call loses them. Session therefore runs a
// single dedicated goroutine for the life of a connection, and callers on
// other goroutines schedule work onto it with Submit, a small
// submit-function/await-result bridge.
//
// # Liveness
//
// Mid-session disconnects are not signaled by the link; Session.IsConnected
// only reflects the last known state. Detecting a silent drop is the
// gateway controller's job (a periodic health check), not this package's.
package transport
