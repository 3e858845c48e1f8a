package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/mash-protocol/meshgw/pkg/bus"
	"github.com/mash-protocol/meshgw/pkg/connreconnect"
	"github.com/mash-protocol/meshgw/pkg/transport"
)

const (
	supervisorPollInterval = 2 * time.Second
	failoverScanTimeout    = 5 * time.Second
)

// Supervise polls the session's connectivity every two seconds and, on
// detecting that a previously-established link has dropped, runs the
// failover loop: pause PM, rescan, and try every candidate address except
// the one that just failed first, falling back to it only once every other
// candidate has also failed.
//
// Supervise blocks until ctx is cancelled; run it in its own goroutine.
func (c *Controller) Supervise(ctx context.Context, filter transport.ScanFilter) {
	wasUp := c.session.IsConnected()
	for {
		if !sleepCtx(ctx, supervisorPollInterval) {
			return
		}
		isUp := c.session.IsConnected()

		c.mu.RLock()
		everConnected := c.wasConnected
		c.mu.RUnlock()

		if wasUp && !isUp && everConnected {
			c.failover(ctx, filter)
		}
		wasUp = c.session.IsConnected()
	}
}

func (c *Controller) failover(ctx context.Context, filter transport.ScanFilter) {
	c.mu.Lock()
	c.reconnecting = true
	prevAddr := c.lastAddress
	c.mu.Unlock()

	c.pm.Pause()
	c.Log("[GATEWAY] Connection lost, reconnecting...")
	c.events.Post(bus.Event{Timestamp: time.Now(), State: &bus.StateChangeEvent{Entity: "connection", NewState: "reconnecting"}})

	backoff := connreconnect.NewBackoffWithConfig(connreconnect.BackoffConfig{
		Initial:    5 * time.Second,
		Max:        5 * time.Second,
		Multiplier: 1,
		Jitter:     0.1,
	})
	backoff.OnAttempt(func(attempt int, delay time.Duration) {
		c.Log(fmt.Sprintf("[GATEWAY] Failover attempt %d failed, retrying in %s", attempt, delay.Round(time.Millisecond)))
	})

	for {
		devices, err := c.session.Scan(ctx, failoverScanTimeout, filter)
		if err != nil || len(devices) == 0 {
			if !sleepCtx(ctx, backoff.Next()) {
				return
			}
			continue
		}

		for _, d := range orderFailover(devices, prevAddr) {
			if err := c.session.Connect(ctx, d); err == nil {
				c.mu.Lock()
				c.reconnecting = false
				c.lastAddress = d.Address
				c.wasConnected = true
				c.mu.Unlock()

				c.pm.Resume()
				c.Log(fmt.Sprintf("[GATEWAY] Reconnected to %s", d.Address))
				c.events.Post(bus.Event{Timestamp: time.Now(), State: &bus.StateChangeEvent{Entity: "connection", NewState: "reconnected"}})
				return
			}
		}

		if !sleepCtx(ctx, backoff.Next()) {
			return
		}
	}
}

// orderFailover moves the device matching prevAddr to the end of the scan
// order so failover always tries other candidates first, retrying the
// previously-connected address only once everything else has failed.
func orderFailover(devices []transport.Device, prevAddr string) []transport.Device {
	ordered := make([]transport.Device, 0, len(devices))
	var prev []transport.Device
	for _, d := range devices {
		if d.Address == prevAddr {
			prev = append(prev, d)
		} else {
			ordered = append(ordered, d)
		}
	}
	return append(ordered, prev...)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
