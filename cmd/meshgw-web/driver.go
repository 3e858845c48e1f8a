package main

import (
	"context"
	"errors"
	"time"

	"github.com/mash-protocol/meshgw/pkg/transport"
)

var errNoDriver = errors.New("meshgw-web: no BLE link driver wired in (platform bindings are out of scope)")

// stubDriver is a placeholder transport.LinkDriver; see cmd/meshgw/driver.go
// for the rationale (platform BLE bindings are an external collaborator).
type stubDriver struct{}

func (stubDriver) Scan(ctx context.Context, timeout time.Duration) ([]transport.Device, error) {
	return nil, nil
}

func (stubDriver) Connect(ctx context.Context, address string) (transport.LinkConn, error) {
	return nil, errNoDriver
}
