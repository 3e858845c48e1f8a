package power

import (
	"context"
	"fmt"
	"time"
)

// Run drives the poll-and-adjust cycle until ctx is cancelled or threshold
// is disabled. It returns at once when no threshold is set, so callers
// launch it in its own goroutine after each SetThreshold; a Run started
// while another is still polling waits briefly and then leaves the cycle
// to the running one.
func (m *Manager) Run(ctx context.Context) {
	m.mu.Lock()
	if m.polling {
		m.mu.Unlock()
		// Another Run is active — in a concurrent-cancel edge case the old
		// one may be mid-shutdown but hasn't cleared polling yet. Wait
		// briefly for it, then proceed; if it's genuinely still running,
		// let it handle things.
		for i := 0; i < reentryPollAttempts; i++ {
			if !sleepCtx(ctx, reentryPollInterval) {
				return
			}
			m.mu.Lock()
			stillPolling := m.polling
			m.mu.Unlock()
			if !stillPolling {
				break
			}
			if i == reentryPollAttempts-1 {
				return
			}
		}
	} else {
		m.mu.Unlock()
	}

	m.mu.Lock()
	needsBootstrap := m.needsBootstrap
	m.needsBootstrap = false
	m.mu.Unlock()

	if needsBootstrap {
		m.bootstrapDiscovery(ctx)
		if !sleepCtx(ctx, 2*time.Second) {
			return
		}
	}

	m.mu.Lock()
	m.polling = true
	m.mu.Unlock()

	for {
		m.mu.Lock()
		active := m.thresholdMW != nil
		paused := m.paused
		m.mu.Unlock()
		if !active {
			break
		}
		if paused {
			if !sleepCtx(ctx, settleDelay) {
				m.mu.Lock()
				m.polling = false
				m.mu.Unlock()
				return
			}
			continue
		}

		m.pollAllNodes(ctx)
		m.waitForResponses(ctx, waitForResponsesCap)
		m.markStaleNodes()

		if !sleepCtx(ctx, settleDelay) {
			m.mu.Lock()
			m.polling = false
			m.mu.Unlock()
			return
		}

		m.evaluateAndAdjust(ctx)

		if !sleepCtx(ctx, PollInterval) {
			m.mu.Lock()
			m.polling = false
			m.mu.Unlock()
			return
		}
	}

	m.mu.Lock()
	m.polling = false
	m.mu.Unlock()
}

// bootstrapDiscovery probes only as many addresses as the BLE scan implied
// exist, per SensingNodeCount. Nodes that respond with sensor data become
// known; non-responders are dropped from probing rather than added.
func (m *Manager) bootstrapDiscovery(ctx context.Context) {
	count := m.gw.SensingNodeCount()
	if count == 0 {
		m.gw.Log("[POWER] No sensing nodes found in BLE scan")
		return
	}

	known := m.gw.KnownNodes()
	if len(known) >= count {
		m.gw.Log(fmt.Sprintf("[POWER] %d node(s) already discovered", len(known)))
		for _, nid := range known {
			m.mu.Lock()
			_, exists := m.nodes[nid]
			m.mu.Unlock()
			if !exists {
				_ = m.gw.SendRead(ctx, nid)
				m.gw.WaitNodeResponse(ctx, nid, nodeResponseTimeout)
			}
		}
		return
	}

	m.gw.Log(fmt.Sprintf("[POWER] Probing %d sensing node(s)...", count))
	for i := 1; i <= count; i++ {
		m.mu.Lock()
		enabled := m.thresholdMW != nil
		_, known := m.nodes[fmt.Sprint(i)]
		m.mu.Unlock()
		if !enabled {
			return
		}
		nidStr := fmt.Sprint(i)
		if known {
			m.gw.Log(fmt.Sprintf("[POWER] Node %d already known", i))
			continue
		}
		_ = m.gw.SendRead(ctx, nidStr)
		responded := m.gw.WaitNodeResponse(ctx, nidStr, nodeResponseTimeout)
		if responded {
			m.gw.Log(fmt.Sprintf("[POWER] Found node %d", i))
		} else {
			m.gw.Log(fmt.Sprintf("[POWER] Node %d no response", i))
		}
	}
	m.mu.Lock()
	n := len(m.nodes)
	m.mu.Unlock()
	m.gw.Log(fmt.Sprintf("[POWER] Discovery complete: %d node(s)", n))
}

// pollAllNodes sends a single group READ; the GATT gateway translates it
// into a mesh group broadcast, so all subscribed nodes respond individually.
func (m *Manager) pollAllNodes(ctx context.Context) {
	m.mu.Lock()
	m.pollGeneration++
	empty := len(m.nodes) == 0
	m.mu.Unlock()
	if empty {
		return
	}
	_ = m.gw.SendRead(ctx, "ALL")
	m.waitForResponses(ctx, groupPollTimeout)
}

// waitForResponses blocks until every currently-responsive node has
// reported for the current poll generation, or timeout elapses.
func (m *Manager) waitForResponses(ctx context.Context, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		m.mu.Lock()
		active := m.thresholdMW != nil
		gen := m.pollGeneration
		allFresh := true
		for _, ns := range m.nodes {
			if ns.Responsive && ns.PollGen != gen {
				allFresh = false
				break
			}
		}
		m.mu.Unlock()

		if !active || allFresh {
			return
		}
		if !sleepCtx(ctx, 100*time.Millisecond) {
			return
		}
	}
}

// markStaleNodes marks nodes that haven't responded recently as
// unresponsive. Non-numeric IDs (phantom entries like "ALL") are skipped.
func (m *Manager) markStaleNodes() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, ns := range m.nodes {
		if !isNumericID(ns.NodeID) {
			continue
		}
		age := now.Sub(ns.LastSeen)
		if age > StaleTimeout {
			if ns.Responsive {
				m.gw.Log(fmt.Sprintf("[POWER] Node %s unresponsive (%.0fs)", ns.NodeID, age.Seconds()))
			}
			ns.Responsive = false
		}
	}
}

func isNumericID(id string) bool {
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(id) > 0
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
