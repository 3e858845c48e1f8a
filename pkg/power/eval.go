package power

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// evaluateAndAdjust is one tick of the equilibrium loop: decide whether an
// adjustment is due, and if so dispatch to the proportional or
// priority-weighted balancer.
func (m *Manager) evaluateAndAdjust(ctx context.Context) {
	m.mu.Lock()

	if m.thresholdMW == nil || m.adjusting {
		m.gw.Debugf("[PM] skip: threshold set=%v, adjusting=%v", m.thresholdMW != nil, m.adjusting)
		m.mu.Unlock()
		return
	}

	forced := m.forceEvaluate
	if !forced && time.Since(m.lastAdjustment) < Cooldown {
		m.gw.Debugf("[PM] skip: cooldown %s/%s", time.Since(m.lastAdjustment), Cooldown)
		m.mu.Unlock()
		return
	}
	m.forceEvaluate = false

	work := map[string]*NodeState{}
	for nid, ns := range m.nodes {
		if ns.Responsive {
			cp := *ns
			work[nid] = &cp
		}
	}
	if len(work) == 0 {
		m.gw.Debugf("[PM] skip: no responsive nodes")
		m.mu.Unlock()
		return
	}

	budget := *m.thresholdMW - HeadroomMW
	if budget <= 0 {
		m.gw.Debugf("[PM] skip: budget=%.0f (threshold too low)", budget)
		m.mu.Unlock()
		return
	}

	var totalPower float64
	for _, ns := range work {
		totalPower += ns.Power
		m.gw.Debugf("[PM] N%s: pwr=%.0fmW, cmd_duty=%d%%, tgt_duty=%d%%, sensor_duty=%d%%",
			ns.NodeID, ns.Power, ns.CommandedDuty, ns.TargetDuty, ns.Duty)
	}

	if !forced {
		deadband := budget * DeadbandFrac
		diff := math.Abs(totalPower - budget)
		if diff < deadband {
			m.gw.Debugf("[PM] skip: deadband (total=%.0f, budget=%.0f, diff=%.0f < band=%.0f)",
				totalPower, budget, diff, deadband)
			m.mu.Unlock()
			return
		}

		allAtCeiling := true
		allInSync := true
		for _, ns := range work {
			if !(ns.TargetDuty > 0 && ns.CommandedDuty >= ns.TargetDuty) {
				allAtCeiling = false
			}
			if ns.CommandedDuty > 0 && math.Abs(float64(ns.Duty-ns.CommandedDuty)) > SyncTolPct {
				allInSync = false
			}
		}
		if allAtCeiling && allInSync && totalPower <= budget {
			m.gw.Debugf("[PM] skip: all at ceiling, in sync & under budget (total=%.0f <= %.0f)",
				totalPower, budget)
			m.mu.Unlock()
			return
		}
		if allAtCeiling && !allInSync {
			for _, ns := range work {
				if ns.CommandedDuty > 0 && math.Abs(float64(ns.Duty-ns.CommandedDuty)) > SyncTolPct {
					m.gw.Debugf("[PM] N%s out of sync: cmd=%d%% vs actual=%d%%",
						ns.NodeID, ns.CommandedDuty, ns.Duty)
				}
			}
		}
	} else {
		m.gw.Debugf("[PM] forced re-evaluation (threshold/priority change)")
		for nid, ns := range work {
			if ns.Duty > 0 {
				old := ns.CommandedDuty
				ns.CommandedDuty = ns.Duty
				if real, ok := m.nodes[nid]; ok {
					real.CommandedDuty = ns.Duty
				}
				if absInt(old-ns.Duty) > int(SyncTolPct) {
					m.gw.Debugf("[PM] N%s reset cmd: %d%% -> %d%% (from sensor)", nid, old, ns.Duty)
				}
			}
		}
	}

	priorityNode := m.priorityNode
	m.adjusting = true
	m.mu.Unlock()

	direction := "▲ UP"
	if totalPower >= budget {
		direction = "▼ DOWN"
	}
	m.gw.Log(fmt.Sprintf("[POWER] %s: %.0f/%.0fmW, nodes: %v", direction, totalPower, budget, nodeIDs(work)))

	var changes []string
	if priorityNode != "" {
		if _, ok := work[priorityNode]; ok {
			changes = m.balanceWithPriority(ctx, work, budget, priorityNode)
		} else {
			changes = m.balanceProportional(ctx, work, budget)
		}
	} else {
		changes = m.balanceProportional(ctx, work, budget)
	}
	_ = changes

	m.mu.Lock()
	m.lastAdjustment = time.Now()
	m.adjusting = false
	m.mu.Unlock()
}

// estimateMwPerPct estimates milliwatts per duty percentage point for ns.
//
// commanded_duty is preferred over sensor duty: sensor duty lags the
// device's actual output by up to one cycle, so dividing measured power by
// a newer duty produces spuriously low mw/pct estimates and causes
// oscillation.
func estimateMwPerPct(ns *NodeState, all map[string]*NodeState) float64 {
	dutyValue := ns.CommandedDuty
	if dutyValue == 0 {
		dutyValue = ns.Duty
	}
	if dutyValue > 0 && ns.Power > 0 {
		return ns.Power / float64(dutyValue)
	}

	var estimates []float64
	for _, n := range all {
		d := n.CommandedDuty
		if d == 0 {
			d = n.Duty
		}
		if d > 0 && n.Power > 0 {
			estimates = append(estimates, n.Power/float64(d))
		}
	}
	if len(estimates) > 0 {
		var sum float64
		for _, e := range estimates {
			sum += e
		}
		return sum / float64(len(estimates))
	}
	return FallbackMwPerPct
}

// nudgeNode nudges a single node's duty toward its target power share.
// Sends the duty command at most once per call — retries happen on the
// next poll cycle instead of blocking here.
func (m *Manager) nudgeNode(ctx context.Context, nid string, ns *NodeState, targetShareMW float64, all map[string]*NodeState) string {
	mwPerPct := estimateMwPerPct(ns, all)
	idealDuty := targetShareMW / mwPerPct

	ceiling := 100.0
	if ns.TargetDuty > 0 {
		ceiling = float64(ns.TargetDuty)
	}
	clamped := math.Max(0, math.Min(ceiling, idealDuty))

	current := ns.CommandedDuty
	if current == 0 {
		current = ns.Duty
	}
	newDuty := int(math.Round(clamped))

	m.gw.Debugf("[PM] nudge N%s: share=%.0fmW, mw/pct=%.1f, ideal=%.1f%%, ceiling=%.0f%%, clamped=%d%%, current=%d%%",
		nid, targetShareMW, mwPerPct, idealDuty, ceiling, newDuty, current)

	if newDuty == current {
		return ""
	}
	newDuty = int(math.Max(0, math.Min(100, float64(newDuty))))
	if newDuty == current {
		return ""
	}

	change := fmt.Sprintf("N%s:%d->%d%%", nid, current, newDuty)
	_ = m.gw.SetDuty(ctx, nid, newDuty)
	confirmed := m.gw.WaitNodeResponse(ctx, nid, nodeResponseTimeout)
	if confirmed {
		ns.CommandedDuty = newDuty
		m.mu.Lock()
		if real, ok := m.nodes[nid]; ok {
			real.CommandedDuty = newDuty
		}
		m.mu.Unlock()
		m.gw.NotifyAdjust(nid, newDuty, targetShareMW)
	} else {
		m.gw.Debugf("[PM] N%s did not confirm duty:%d%%, keeping cmd=%d%%", nid, newDuty, current)
	}
	return change
}

// balanceProportional gives every responsive node an equal power share.
func (m *Manager) balanceProportional(ctx context.Context, nodes map[string]*NodeState, budget float64) []string {
	n := len(nodes)
	shareMW := budget / float64(n)

	var changes []string
	var total float64
	for _, nid := range sortedKeys(nodes) {
		ns := nodes[nid]
		total += ns.Power
		if change := m.nudgeNode(ctx, nid, ns, shareMW, nodes); change != "" {
			changes = append(changes, change)
		}
	}

	if len(changes) > 0 {
		m.gw.Log(fmt.Sprintf("[POWER] Balancing %.0f/%.0fmW (share:%.0fmW each) — %s",
			total, budget, shareMW, joinComma(changes)))
	}
	return changes
}

// balanceWithPriority weights the priority node's share at PriorityWeight
// times a normal share, redistributing any surplus the priority node can't
// use (bounded by its own target_duty ceiling) across the others.
func (m *Manager) balanceWithPriority(ctx context.Context, nodes map[string]*NodeState, budget float64, priorityNode string) []string {
	priNS := nodes[priorityNode]
	nonPriority := map[string]*NodeState{}
	for nid, ns := range nodes {
		if nid != priorityNode {
			nonPriority[nid] = ns
		}
	}

	totalShares := PriorityWeight + float64(len(nonPriority))
	priorityBudget := budget * (PriorityWeight / totalShares)

	priMwPerPct := estimateMwPerPct(priNS, nodes)
	priCeiling := 100.0
	if priNS.TargetDuty > 0 {
		priCeiling = float64(priNS.TargetDuty)
	}
	priMaxPower := priCeiling * priMwPerPct

	var remaining float64
	if priMaxPower < priorityBudget && len(nonPriority) > 0 {
		priorityBudget = priMaxPower
		remaining = budget - priorityBudget
	} else {
		remaining = budget - priorityBudget
	}

	var nonPriShare float64
	if len(nonPriority) > 0 {
		nonPriShare = remaining / float64(len(nonPriority))
	}

	var changes []string
	if change := m.nudgeNode(ctx, priorityNode, priNS, priorityBudget, nodes); change != "" {
		changes = append(changes, change+"(pri)")
	}

	for _, nid := range sortedKeys(nonPriority) {
		ns := nonPriority[nid]
		if change := m.nudgeNode(ctx, nid, ns, nonPriShare, nodes); change != "" {
			changes = append(changes, change)
		}
	}

	var total float64
	for _, ns := range nodes {
		total += ns.Power
	}
	if len(changes) > 0 {
		m.gw.Log(fmt.Sprintf("[POWER] Balancing %.0f/%.0fmW (pri:%.0fmW, others:%.0fmW each) — %s",
			total, budget, priorityBudget, nonPriShare, joinComma(changes)))
	}
	return changes
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func nodeIDs(nodes map[string]*NodeState) []string {
	ids := make([]string, 0, len(nodes))
	for nid := range nodes {
		ids = append(ids, nid)
	}
	return ids
}

func sortedKeys(nodes map[string]*NodeState) []string {
	ids := make([]string, 0, len(nodes))
	for nid := range nodes {
		ids = append(ids, nid)
	}
	sort.Slice(ids, func(i, j int) bool { return numericKey(ids[i]) < numericKey(ids[j]) })
	return ids
}

func joinComma(items []string) string {
	return strings.Join(items, ", ")
}
