package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/mash-protocol/meshgw/pkg/bus"
	"github.com/mash-protocol/meshgw/pkg/log"
	"github.com/mash-protocol/meshgw/pkg/notify"
)

// Ingest reads frames from the session's current notification channel,
// feeds them through a fresh parser, and dispatches each reassembled
// message until the channel closes (link torn down) or ctx is cancelled.
// The caller re-invokes Ingest after every successful Connect, since a new
// connection gets a new notification channel.
func (c *Controller) Ingest(ctx context.Context) {
	parser := notify.NewParser()
	frames := c.session.Notifications()

	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				return
			}
			msg, complete := parser.Feed(frame)
			if !complete {
				continue
			}
			c.dispatch(msg)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Controller) dispatch(msg notify.Message) {
	c.logClassified(msg)

	switch msg.Kind {
	case notify.KindSensorReading:
		c.recordSensorReading(msg.Sensor)
	case notify.KindError:
		c.handleMeshNoise(msg.Raw, "error")
	case notify.KindTimeout:
		c.handleMeshNoise(msg.Raw, "warn")
	case notify.KindSendComplete:
		c.Debugf("[SENT] %s", msg.Raw)
	case notify.KindMeshReady:
		c.Log(fmt.Sprintf("[MESH] %s", msg.Raw))
		c.events.Post(bus.Event{Timestamp: time.Now(), State: &bus.StateChangeEvent{Entity: "mesh", NewState: "ready"}})
	case notify.KindRaw:
		c.Debugf("[RAW] %s", msg.Raw)
	}
}

// logClassified records msg at the notify layer: the same logical message
// pkg/transport already logged as a raw Frame, now reassembled and
// classified. This is what lets a protocol log reconstruct "what happened"
// without re-parsing wire bytes.
func (c *Controller) logClassified(msg notify.Message) {
	me := &log.MessageEvent{Kind: notifyKindToLog(msg.Kind), Raw: msg.Raw}
	if msg.Kind == notify.KindSensorReading {
		me.Duty = &msg.Sensor.Duty
		me.Voltage = &msg.Sensor.Voltage
		me.Current = &msg.Sensor.Current
		me.Power = &msg.Sensor.Power
	}
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.session.ConnectionID(),
		Direction:    log.DirectionIn,
		Layer:        log.LayerNotify,
		Category:     log.CategoryMessage,
		NodeID:       msg.NodeID,
		Message:      me,
	})
}

func notifyKindToLog(k notify.Kind) log.MessageKind {
	switch k {
	case notify.KindSensorReading:
		return log.MessageKindSensorReading
	case notify.KindError:
		return log.MessageKindMeshError
	case notify.KindTimeout:
		return log.MessageKindMeshTimeout
	case notify.KindSendComplete:
		return log.MessageKindSendComplete
	case notify.KindMeshReady:
		return log.MessageKindMeshReady
	default:
		return log.MessageKindRaw
	}
}

func (c *Controller) recordSensorReading(s notify.SensorReading) {
	c.mu.Lock()
	c.knownNodes[s.NodeID] = struct{}{}
	c.lastReadings[s.NodeID] = nodeReading{
		Duty: s.Duty, Voltage: s.Voltage, Current: s.Current, Power: s.Power,
		Timestamp: time.Now(),
	}
	c.mu.Unlock()

	c.signalNode(s.NodeID)
	c.pm.OnSensorData(s.NodeID, s.Duty, s.Voltage, s.Current, s.Power)

	c.events.Post(bus.Event{
		Timestamp: time.Now(),
		Sensor: &bus.SensorUpdateEvent{
			NodeID: s.NodeID, Duty: s.Duty, Voltage: s.Voltage, Current: s.Current, Power: s.Power,
		},
	})

	if err := c.history.InsertReading(context.Background(), s.NodeID, s.Duty, s.Voltage, s.Current, s.Power); err != nil {
		c.Debugf("[HISTORY] insert failed: %v", err)
	}
}

// handleMeshNoise publishes ERROR/TIMEOUT notifications, unless the power
// manager is mid-poll — its own discovery probes against unpopulated node
// slots produce exactly this noise, and surfacing it to the operator would
// be misleading.
func (c *Controller) handleMeshNoise(raw, style string) {
	if c.pm.Busy() {
		c.Debugf("[%s suppressed during PM poll] %s", style, raw)
		return
	}
	c.Log(fmt.Sprintf("[%s] %s", style, raw))
	c.events.Post(bus.Event{Timestamp: time.Now(), LogLine: &bus.LogLineEvent{Text: raw, Style: style}})
}

func (c *Controller) signalNode(nodeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.nodeSignals[nodeID]; ok {
		close(ch)
		delete(c.nodeSignals, nodeID)
	}
}

// WaitNodeResponse blocks until nodeID's next sensor reading arrives, the
// timeout elapses, or ctx is cancelled. Concurrent waiters for the same
// node share one latch and are woken together. A signal can be lost if it
// arrives between a caller deciding to wait and registering its latch —
// callers that need certainty should issue the read and call
// WaitNodeResponse without any intervening await.
func (c *Controller) WaitNodeResponse(ctx context.Context, nodeID string, timeout time.Duration) bool {
	c.mu.Lock()
	ch, ok := c.nodeSignals[nodeID]
	if !ok {
		ch = make(chan struct{})
		c.nodeSignals[nodeID] = ch
	}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if cur, ok := c.nodeSignals[nodeID]; ok && cur == ch {
			delete(c.nodeSignals, nodeID)
		}
		c.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}
