package main

import (
	"context"
	"errors"
	"time"

	"github.com/mash-protocol/meshgw/pkg/transport"
)

var errNoDriver = errors.New("meshgw: no BLE link driver wired in (platform bindings are out of scope)")

// stubDriver is a placeholder transport.LinkDriver. The platform-specific
// BLE central adapter (CoreBluetooth/BlueZ/WinRT bindings) is out of scope
// for this repository; production builds are expected to supply their own
// LinkDriver to gateway.NewController's underlying transport.Session.
type stubDriver struct{}

func (stubDriver) Scan(ctx context.Context, timeout time.Duration) ([]transport.Device, error) {
	return nil, nil
}

func (stubDriver) Connect(ctx context.Context, address string) (transport.LinkConn, error) {
	return nil, errNoDriver
}
