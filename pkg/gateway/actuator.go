package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/mash-protocol/meshgw/pkg/bus"
)

// actuator adapts Controller to power.Actuator. It exists so the power
// manager's SetDuty (a raw mesh write that never touches target_duty) and
// the controller's own operator-facing SetDuty (which does) can coexist
// under one method name each, rather than colliding on the Controller type
// itself.
type actuator struct {
	c *Controller
}

func (a actuator) SendRead(ctx context.Context, nodeID string) error {
	return a.c.sendRaw(ctx, fmt.Sprintf("%s:READ", nodeID))
}

func (a actuator) SetDuty(ctx context.Context, nodeID string, pct int) error {
	return a.c.sendRaw(ctx, fmt.Sprintf("%s:DUTY:%d", nodeID, pct))
}

func (a actuator) WaitNodeResponse(ctx context.Context, nodeID string, timeout time.Duration) bool {
	return a.c.WaitNodeResponse(ctx, nodeID, timeout)
}

func (a actuator) SensingNodeCount() int {
	return a.c.SensingNodeCount()
}

func (a actuator) KnownNodes() []string {
	return a.c.KnownNodes()
}

func (a actuator) Log(msg string) {
	a.c.Log(msg)
}

func (a actuator) Debugf(format string, args ...any) {
	a.c.Debugf(format, args...)
}

func (a actuator) NotifyAdjust(nodeID string, newDuty int, shareMW float64) {
	a.c.events.Post(bus.Event{
		Timestamp: time.Now(),
		Adjust:    &bus.PowerAdjustEvent{NodeID: nodeID, NewDuty: newDuty, ShareMW: shareMW},
	})
}
