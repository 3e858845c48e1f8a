package gateway

import "errors"

// Sentinel errors, checked with errors.Is by callers.
var (
	// ErrNotConnected is returned when a command is attempted while the
	// session is not connected.
	ErrNotConnected = errors.New("gateway: not connected")

	// ErrReconnecting is returned when a command is attempted while the
	// auto-reconnect supervisor is mid-failover.
	ErrReconnecting = errors.New("gateway: reconnecting")

	// ErrScanEmpty is returned when discovery finds no candidate devices.
	ErrScanEmpty = errors.New("gateway: scan found no devices")

	// ErrConnectFailed is returned when every candidate device failed to
	// connect.
	ErrConnectFailed = errors.New("gateway: connect failed")

	// ErrNoGattService is returned when a device connected but did not
	// expose the sensor-notification attribute.
	ErrNoGattService = errors.New("gateway: peer has no sensor notification attribute")

	// ErrNodeNoResponse is returned when wait_node_response times out.
	ErrNodeNoResponse = errors.New("gateway: node did not respond")
)
