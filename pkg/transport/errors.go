package transport

import "errors"

var (
	// ErrNotConnected is returned by operations that require an active link.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrAlreadyConnected is returned by Connect when a session already has a link.
	ErrAlreadyConnected = errors.New("transport: already connected")

	// ErrNoGattService indicates the peer connected but did not expose the
	// sensor-notification attribute; the caller should disconnect and try
	// the next scan result.
	ErrNoGattService = errors.New("transport: peer has no sensor notification attribute")

	// ErrScanEmpty indicates Scan found no matching devices.
	ErrScanEmpty = errors.New("transport: scan found no devices")

	// ErrSessionClosed is returned by Submit once the session's I/O
	// goroutine has exited.
	ErrSessionClosed = errors.New("transport: session closed")
)
