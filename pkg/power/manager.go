package power

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Manager is the equilibrium-based power balancer. All exported methods are
// safe for concurrent use; the poll loop, operator commands, and the
// reconnect supervisor's Pause/Resume all call in from different
// goroutines.
type Manager struct {
	mu sync.Mutex

	gw Actuator

	nodes map[string]*NodeState

	thresholdMW    *float64
	priorityNode   string // "" means no priority node set
	adjusting      bool
	lastAdjustment time.Time
	forceEvaluate  bool
	pollGeneration uint64
	polling        bool
	needsBootstrap bool
	paused         bool
}

// NewManager creates a Manager with no nodes and power management disabled.
func NewManager(gw Actuator) *Manager {
	return &Manager{
		gw:    gw,
		nodes: make(map[string]*NodeState),
	}
}

// SetThreshold enables power management with the given threshold in mW.
//
// On the very first enable, every node currently reporting duty > 0 has its
// target_duty frozen at that duty — whatever ceiling the operator set before
// engaging PM becomes the ceiling PM will respect. Re-invocations while PM
// is already active must not re-snapshot: that would latch PM-reduced
// values as new ceilings.
func (m *Manager) SetThreshold(mw float64) {
	m.mu.Lock()

	firstEnable := m.thresholdMW == nil
	m.thresholdMW = &mw
	m.needsBootstrap = len(m.nodes) == 0

	var frozen []string
	if firstEnable {
		for _, ns := range m.nodes {
			if ns.Duty > 0 {
				ns.TargetDuty = ns.Duty
				frozen = append(frozen, fmt.Sprintf("[PM] N%s target frozen at %d%%", ns.NodeID, ns.Duty))
			}
		}
	}

	m.forceEvaluate = true
	m.adjusting = false

	budget := mw - HeadroomMW
	n := m.responsiveCountLocked()
	if n == 0 {
		n = 1
	}
	share := budget / float64(n)
	summary := fmt.Sprintf("[POWER] Threshold: %.0fmW → budget %.0fmW (%.0fmW × %d nodes)", mw, budget, share, n)

	m.mu.Unlock()

	for _, line := range frozen {
		m.gw.Log(line)
	}
	m.gw.Log(summary)
}

// Disable clears the threshold and restores every node's original duty.
func (m *Manager) Disable(ctx context.Context) {
	m.mu.Lock()
	m.thresholdMW = nil
	m.polling = false
	ids := m.sortedNodeIDsLocked()
	m.mu.Unlock()

	time.Sleep(DrainDelay)

	for _, nid := range ids {
		m.mu.Lock()
		ns, ok := m.nodes[nid]
		if !ok {
			m.mu.Unlock()
			continue
		}
		commanded, target := ns.CommandedDuty, ns.TargetDuty
		m.mu.Unlock()

		if commanded != target && target > 0 {
			m.gw.Log(fmt.Sprintf("[POWER] Restoring node %s: %d%% → %d%%", nid, commanded, target))
			_ = m.gw.SetDuty(ctx, nid, target)
			m.gw.WaitNodeResponse(ctx, nid, nodeResponseTimeout)
		}

		m.mu.Lock()
		ns.CommandedDuty = 0
		m.mu.Unlock()
	}

	m.gw.Log("[POWER] Threshold disabled")
}

// SetPriority designates nodeID as the priority node and forces an
// immediate rebalance on the next evaluate tick.
func (m *Manager) SetPriority(nodeID string) {
	m.mu.Lock()
	m.priorityNode = nodeID
	m.forceEvaluate = true

	var msg string
	if m.thresholdMW != nil {
		budget := *m.thresholdMW - HeadroomMW
		n := m.responsiveCountLocked()
		if n == 0 {
			n = 1
		}
		totalShares := PriorityWeight + float64(n-1)
		priShare := budget * (PriorityWeight / totalShares)
		otherShare := budget * (1.0 / totalShares)
		msg = fmt.Sprintf("[POWER] Priority: N%s (%.0fmW), others: %.0fmW each", nodeID, priShare, otherShare)
	} else {
		msg = fmt.Sprintf("[POWER] Priority node: %s", nodeID)
	}
	m.mu.Unlock()

	m.gw.Log(msg)
}

// ClearPriority removes the priority designation and forces an immediate
// rebalance to equal shares.
func (m *Manager) ClearPriority() {
	m.mu.Lock()
	m.priorityNode = ""
	m.forceEvaluate = true

	var msg string
	if m.thresholdMW != nil {
		budget := *m.thresholdMW - HeadroomMW
		n := m.responsiveCountLocked()
		if n == 0 {
			n = 1
		}
		msg = fmt.Sprintf("[POWER] Priority cleared → equalizing at %.0fmW each", budget/float64(n))
	} else {
		msg = "[POWER] Priority cleared"
	}
	m.mu.Unlock()

	m.gw.Log(msg)
}

// SetTargetDuty records the operator-requested duty for nodeID, called by
// the controller whenever an operator duty command runs while PM is
// active. commanded_duty is synced too so the live mw-per-pct estimate
// stays accurate.
func (m *Manager) SetTargetDuty(nodeID string, duty int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns := m.nodeLocked(nodeID)
	ns.TargetDuty = duty
	ns.CommandedDuty = duty
}

// OnSensorData updates node state from a parsed sensor reading.
func (m *Manager) OnSensorData(nodeID string, duty int, voltage, current, pwr float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ns := m.nodeLocked(nodeID)
	ns.Duty = duty
	ns.Voltage = voltage
	ns.Current = current
	ns.Power = pwr
	ns.LastSeen = time.Now()
	ns.Responsive = true
	ns.PollGen = m.pollGeneration

	// Only sync commanded_duty when PM is off. While PM is active only
	// nudgeNode updates commanded_duty — syncing here would let stale
	// sensor data overwrite what PM just sent and cause oscillation.
	if m.thresholdMW == nil {
		ns.CommandedDuty = duty
	}
}

// Pause suspends the poll loop without clearing the threshold, used by the
// reconnect supervisor while the link is down.
func (m *Manager) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = true
}

// Resume clears a pause set by Pause and forces a rebalance on the next
// evaluate tick.
func (m *Manager) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = false
	m.forceEvaluate = true
}

// Enabled reports whether a threshold is currently set.
func (m *Manager) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.thresholdMW != nil
}

// NodeIDs returns the IDs of every node PM has discovered, sorted.
func (m *Manager) NodeIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedNodeIDsLocked()
}

// Busy reports whether the poll loop or an evaluate-and-adjust pass is
// currently running, used by the controller to suppress mesh error/timeout
// noise expected from PM's own discovery probes.
func (m *Manager) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.polling || m.adjusting
}

// Status returns a human-readable summary of the power manager's state.
func (m *Manager) Status() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	lines := []string{"--- Power Manager ---"}
	if m.thresholdMW != nil {
		budget := *m.thresholdMW - HeadroomMW
		lines = append(lines,
			fmt.Sprintf("Threshold: %.0f mW", *m.thresholdMW),
			fmt.Sprintf("Budget:    %.0f mW (headroom: %.0f mW)", budget, HeadroomMW))
	} else {
		lines = append(lines, "Threshold: OFF")
	}
	if m.priorityNode != "" {
		lines = append(lines, fmt.Sprintf("Priority:  node %s", m.priorityNode))
	} else {
		lines = append(lines, "Priority:  none")
	}

	if len(m.nodes) == 0 {
		lines = append(lines, "No nodes discovered yet")
		lines = append(lines, "--------------------")
		return joinLines(lines)
	}

	responsiveCount := m.responsiveCountLocked()
	shares := map[string]float64{}
	if m.thresholdMW != nil && responsiveCount > 0 {
		budget := *m.thresholdMW - HeadroomMW
		if m.priorityNode != "" {
			if _, ok := m.nodes[m.priorityNode]; ok {
				totalShares := PriorityWeight + float64(responsiveCount-1)
				for nid := range m.nodes {
					if nid == m.priorityNode {
						shares[nid] = budget * (PriorityWeight / totalShares)
					} else {
						shares[nid] = budget * (1.0 / totalShares)
					}
				}
			}
		} else {
			perShare := budget / float64(responsiveCount)
			for nid := range m.nodes {
				shares[nid] = perShare
			}
		}
	}

	lines = append(lines, "Nodes:")
	var total float64
	for _, nid := range m.sortedNodeIDsLocked() {
		ns := m.nodes[nid]
		status := "stale"
		if ns.Responsive {
			status = "ok"
		}
		target := ""
		if ns.TargetDuty != ns.Duty {
			target = fmt.Sprintf(" (target:%d%%)", ns.TargetDuty)
		}
		share := ""
		if s, ok := shares[nid]; ok {
			share = fmt.Sprintf(" share:%.0fmW", s)
		}
		lines = append(lines, fmt.Sprintf("  Node %s: D:%d%%%s V:%.2fV I:%.1fmA P:%.0fmW [%s]%s",
			nid, ns.Duty, target, ns.Voltage, ns.Current, ns.Power, status, share))
		if ns.Responsive {
			total += ns.Power
		}
	}
	lines = append(lines, fmt.Sprintf("Total power: %.0f mW", total))
	if m.thresholdMW != nil {
		lines = append(lines, fmt.Sprintf("Headroom:    %.0f mW", *m.thresholdMW-total))
	}
	lines = append(lines, "--------------------")
	return joinLines(lines)
}

func (m *Manager) nodeLocked(nodeID string) *NodeState {
	ns, ok := m.nodes[nodeID]
	if !ok {
		ns = &NodeState{NodeID: nodeID, Responsive: true}
		m.nodes[nodeID] = ns
	}
	return ns
}

func (m *Manager) responsiveCountLocked() int {
	n := 0
	for _, ns := range m.nodes {
		if ns.Responsive {
			n++
		}
	}
	return n
}

func (m *Manager) sortedNodeIDsLocked() []string {
	ids := make([]string, 0, len(m.nodes))
	for nid := range m.nodes {
		ids = append(ids, nid)
	}
	sort.Slice(ids, func(i, j int) bool { return numericKey(ids[i]) < numericKey(ids[j]) })
	return ids
}

func numericKey(id string) int {
	if n, err := strconv.Atoi(id); err == nil {
		return n
	}
	return 999
}

func joinLines(lines []string) string {
	return strings.Join(lines, "\n")
}
