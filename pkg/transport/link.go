package transport

import (
	"context"
	"time"
)

// LinkDriver abstracts the production BLE central adapter so the production
// driver can be swapped for a fake in tests. Implementations own the
// platform-specific scan/connect machinery; Session owns everything above
// that (the dedicated I/O goroutine, the submit bridge, subscription
// enforcement).
type LinkDriver interface {
	// Scan enumerates nearby peers for up to timeout. Implementations
	// return every advertisement seen; ScanFilter matching happens in
	// Session.Scan, not here.
	Scan(ctx context.Context, timeout time.Duration) ([]Device, error)

	// Connect establishes a link to address. The returned LinkConn is not
	// yet subscribed to notifications; Session.Connect calls Subscribe
	// before considering the connection usable.
	Connect(ctx context.Context, address string) (LinkConn, error)
}

// LinkConn is an established, not-yet-subscribed link to one peer.
type LinkConn interface {
	// Subscribe enables the sensor-notification attribute. Failure here
	// means the peer isn't a gateway device; the caller disconnects.
	Subscribe(ctx context.Context) error

	// Write sends a single command frame. Single-writer, fire-and-forget;
	// the peer acknowledges asynchronously via a SENT: notification.
	Write(data []byte) error

	// Notifications returns the channel of inbound notification frames.
	// Closed when the link is disconnected.
	Notifications() <-chan []byte

	// Disconnect tears down the link. Idempotent.
	Disconnect() error

	// MTU returns the negotiated maximum transmission unit in bytes.
	MTU() int
}
