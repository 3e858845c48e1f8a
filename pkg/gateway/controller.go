package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mash-protocol/meshgw/pkg/bus"
	"github.com/mash-protocol/meshgw/pkg/history"
	"github.com/mash-protocol/meshgw/pkg/log"
	"github.com/mash-protocol/meshgw/pkg/power"
	"github.com/mash-protocol/meshgw/pkg/transport"
)

const defaultScanTimeout = 10 * time.Second

type nodeReading struct {
	Duty      int
	Voltage   float64
	Current   float64
	Power     float64
	Timestamp time.Time
}

// Controller is the mesh-gateway command surface: it owns the transport
// session, forwards notifications to the parser, drives the power manager,
// and fans state out over the event bus.
type Controller struct {
	mu sync.RWMutex

	session *transport.Session
	events  *bus.Bus
	history history.Sink
	pm      *power.Manager
	logger  log.Logger

	targetNode       string
	knownNodes       map[string]struct{}
	lastReadings     map[string]nodeReading
	nodeSignals      map[string]chan struct{}
	monitoring       bool
	reconnecting     bool
	wasConnected     bool
	lastAddress      string
	sensingNodeCount int
	debug            bool
}

// NewController wires a session, event bus, and history sink into a
// Controller with its own power.Manager.
func NewController(session *transport.Session, events *bus.Bus, hist history.Sink) *Controller {
	if hist == nil {
		hist = history.NoopSink{}
	}
	c := &Controller{
		session:      session,
		events:       events,
		history:      hist,
		logger:       session.Logger(),
		targetNode:   "ALL",
		knownNodes:   make(map[string]struct{}),
		lastReadings: make(map[string]nodeReading),
		nodeSignals:  make(map[string]chan struct{}),
	}
	c.pm = power.NewManager(actuator{c})
	return c
}

// PowerManager returns the controller's power manager, for callers that
// need to enable/disable/tune it directly.
func (c *Controller) PowerManager() *power.Manager {
	return c.pm
}

// SetDebug enables or disables debug-level LogLine events.
func (c *Controller) SetDebug(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.debug = enabled
}

// TargetNode returns the default node commands apply to absent an explicit
// target.
func (c *Controller) TargetNode() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.targetNode
}

// SetTargetNode changes the default node.
func (c *Controller) SetTargetNode(nodeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.targetNode = nodeID
}

// SetSensingNodeCount records how many sensing nodes the BLE scan implied
// exist (total mesh devices found minus the gateway device itself). Called
// once after a successful Connect.
func (c *Controller) SetSensingNodeCount(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n < 0 {
		n = 0
	}
	c.sensingNodeCount = n
}

// Connect scans for a gateway device and connects to the first match.
func (c *Controller) Connect(ctx context.Context, filter transport.ScanFilter) error {
	devices, err := c.session.Scan(ctx, defaultScanTimeout, filter)
	if err != nil {
		if errors.Is(err, transport.ErrScanEmpty) {
			return ErrScanEmpty
		}
		return err
	}

	for _, d := range devices {
		if err := c.session.Connect(ctx, d); err == nil {
			c.mu.Lock()
			c.wasConnected = true
			c.lastAddress = d.Address
			c.mu.Unlock()
			c.SetSensingNodeCount(len(devices) - 1)
			c.Log(fmt.Sprintf("[GATEWAY] Connected to %s", d.Address))
			return nil
		} else if errors.Is(err, transport.ErrNoGattService) {
			continue
		}
	}
	return ErrConnectFailed
}

// checkReady returns the sentinel error for any command that cannot be
// issued right now.
func (c *Controller) checkReady() error {
	if !c.session.IsConnected() {
		return ErrNotConnected
	}
	c.mu.RLock()
	reconnecting := c.reconnecting
	c.mu.RUnlock()
	if reconnecting {
		return ErrReconnecting
	}
	return nil
}

func (c *Controller) resolveNode(nodeID string) string {
	if nodeID != "" {
		return nodeID
	}
	return c.TargetNode()
}

func (c *Controller) sendRaw(ctx context.Context, cmd string) error {
	verb, value, nodeID := splitCommand(cmd)
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.session.ConnectionID(),
		Direction:    log.DirectionOut,
		Layer:        log.LayerNotify,
		Category:     log.CategoryMessage,
		NodeID:       nodeID,
		Message:      &log.MessageEvent{Kind: log.MessageKindCommand, Verb: verb, Value: value, Raw: cmd},
	})
	return c.session.WriteCommand([]byte(cmd))
}

// splitCommand decomposes a "<node>:<VERB>[:<value>]" wire command into its
// parts for notify-layer logging. Malformed input (no colon) is returned
// whole as the verb with an empty node/value.
func splitCommand(cmd string) (verb, value, nodeID string) {
	parts := strings.SplitN(cmd, ":", 3)
	switch len(parts) {
	case 1:
		return parts[0], "", ""
	case 2:
		return parts[1], "", parts[0]
	default:
		return parts[1], parts[2], parts[0]
	}
}

// SetDuty clamps pct to [0,100] and issues "<n>:DUTY:<pct>". If the power
// manager is active, this also records the operator's duty as the new
// target_duty ceiling — either on a single node or, for "ALL", on every
// node PM already knows (falling back to the controller's own known set if
// PM hasn't discovered any yet).
func (c *Controller) SetDuty(ctx context.Context, nodeID string, pct int) error {
	if err := c.checkReady(); err != nil {
		return err
	}
	if pct < 0 {
		pct = 0
	} else if pct > 100 {
		pct = 100
	}
	nid := c.resolveNode(nodeID)

	if c.pm.Enabled() {
		if strings.EqualFold(nid, "ALL") {
			ids := c.pm.NodeIDs()
			if len(ids) == 0 {
				ids = c.KnownNodes()
			}
			for _, id := range ids {
				c.pm.SetTargetDuty(id, pct)
			}
		} else {
			c.pm.SetTargetDuty(nid, pct)
		}
	}

	return c.sendRaw(ctx, fmt.Sprintf("%s:DUTY:%d", nid, pct))
}

// StartRamp issues "<n>:RAMP".
func (c *Controller) StartRamp(ctx context.Context, nodeID string) error {
	if err := c.checkReady(); err != nil {
		return err
	}
	return c.sendRaw(ctx, fmt.Sprintf("%s:RAMP", c.resolveNode(nodeID)))
}

// Stop issues "<n>:STOP" and clears the monitoring flag.
func (c *Controller) Stop(ctx context.Context, nodeID string) error {
	if err := c.checkReady(); err != nil {
		return err
	}
	c.mu.Lock()
	c.monitoring = false
	c.mu.Unlock()
	return c.sendRaw(ctx, fmt.Sprintf("%s:STOP", c.resolveNode(nodeID)))
}

// ReadSensor issues "<n>:READ", triggering a single response.
func (c *Controller) ReadSensor(ctx context.Context, nodeID string) error {
	if err := c.checkReady(); err != nil {
		return err
	}
	return c.sendRaw(ctx, fmt.Sprintf("%s:READ", c.resolveNode(nodeID)))
}

// ReadStatus issues "<n>:STATUS".
func (c *Controller) ReadStatus(ctx context.Context, nodeID string) error {
	if err := c.checkReady(); err != nil {
		return err
	}
	return c.sendRaw(ctx, fmt.Sprintf("%s:STATUS", c.resolveNode(nodeID)))
}

// StartMonitor issues "<n>:MONITOR" and sets the monitoring flag.
func (c *Controller) StartMonitor(ctx context.Context, nodeID string) error {
	if err := c.checkReady(); err != nil {
		return err
	}
	c.mu.Lock()
	c.monitoring = true
	c.mu.Unlock()
	return c.sendRaw(ctx, fmt.Sprintf("%s:MONITOR", c.resolveNode(nodeID)))
}

// Raw is the escape hatch: send s verbatim.
func (c *Controller) Raw(ctx context.Context, s string) error {
	if err := c.checkReady(); err != nil {
		return err
	}
	return c.sendRaw(ctx, s)
}

// KnownNodes lists node IDs that have responded with sensor data so far,
// in sorted order.
func (c *Controller) KnownNodes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.knownNodes))
	for id := range c.knownNodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SensingNodeCount returns how many sensing nodes the BLE scan implied.
func (c *Controller) SensingNodeCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sensingNodeCount
}

// Monitoring reports whether a MONITOR command is outstanding.
func (c *Controller) Monitoring() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.monitoring
}

// IsReconnecting reports whether the auto-reconnect supervisor is mid-
// failover.
func (c *Controller) IsReconnecting() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reconnecting
}

// LastReading returns the most recent sensor reading for nodeID.
func (c *Controller) LastReading(nodeID string) (nodeReading, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.lastReadings[nodeID]
	return r, ok
}

// Log publishes an operator-facing message on the event bus.
func (c *Controller) Log(msg string) {
	c.events.Post(bus.Event{Timestamp: time.Now(), LogLine: &bus.LogLineEvent{Text: msg}})
}

// Debugf publishes a debug-only message, a no-op unless SetDebug(true) was
// called.
func (c *Controller) Debugf(format string, args ...any) {
	c.mu.RLock()
	debug := c.debug
	c.mu.RUnlock()
	if !debug {
		return
	}
	c.events.Post(bus.Event{Timestamp: time.Now(), LogLine: &bus.LogLineEvent{Text: fmt.Sprintf(format, args...), Style: "dim"}})
}
