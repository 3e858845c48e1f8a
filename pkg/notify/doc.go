// Package notify reassembles chunked BLE notifications into logical
// messages and classifies them.
//
// Frames larger than MTU-1 are chunked by the peer: continuation chunks
// begin with '+', the terminal chunk does not. Parser accumulates
// continuation payloads into a buffer and emits one Message per terminal
// chunk. The buffer is also cleared on disconnect (call Reset).
package notify
