package power

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dutyCall struct {
	nodeID string
	pct    int
}

type fakeActuator struct {
	mu      sync.Mutex
	duties  []dutyCall
	adjusts []dutyCall
	reads   []string
	confirm bool
	sensing int
	known   []string
	logs    []string
	debugs  []string
}

func newFakeActuator() *fakeActuator {
	return &fakeActuator{confirm: true}
}

func (f *fakeActuator) SendRead(ctx context.Context, nodeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, nodeID)
	return nil
}

func (f *fakeActuator) SetDuty(ctx context.Context, nodeID string, pct int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.duties = append(f.duties, dutyCall{nodeID, pct})
	return nil
}

func (f *fakeActuator) WaitNodeResponse(ctx context.Context, nodeID string, timeout time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.confirm
}

func (f *fakeActuator) SensingNodeCount() int { return f.sensing }
func (f *fakeActuator) KnownNodes() []string  { return f.known }

func (f *fakeActuator) Log(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, msg)
}

func (f *fakeActuator) Debugf(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.debugs = append(f.debugs, format)
}

func (f *fakeActuator) NotifyAdjust(nodeID string, newDuty int, shareMW float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adjusts = append(f.adjusts, dutyCall{nodeID, newDuty})
}

func (f *fakeActuator) dutyCalls() []dutyCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]dutyCall, len(f.duties))
	copy(out, f.duties)
	return out
}

func seedManager(gw Actuator, threshold float64, forced bool) *Manager {
	mw := threshold
	m := NewManager(gw)
	m.thresholdMW = &mw
	m.forceEvaluate = forced
	return m
}

// S2 — Equal share, two nodes at equilibrium.
func TestEvaluateEqualShareTwoNodes(t *testing.T) {
	gw := newFakeActuator()
	m := seedManager(gw, 3000, true)
	m.nodes["1"] = &NodeState{NodeID: "1", Duty: 40, Power: 1200, TargetDuty: 100, Responsive: true}
	m.nodes["2"] = &NodeState{NodeID: "2", Duty: 40, Power: 1250, TargetDuty: 100, Responsive: true}

	m.evaluateAndAdjust(context.Background())

	calls := gw.dutyCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, dutyCall{"1", 42}, calls[0])
}

// S3 — Dead-band suppression.
func TestEvaluateDeadBandSuppression(t *testing.T) {
	gw := newFakeActuator()
	m := seedManager(gw, 2000, false)
	m.lastAdjustment = time.Now().Add(-10 * time.Second)
	m.nodes["1"] = &NodeState{NodeID: "1", Power: 740, CommandedDuty: 30, TargetDuty: 50, Responsive: true}
	m.nodes["2"] = &NodeState{NodeID: "2", Power: 740, CommandedDuty: 30, TargetDuty: 50, Responsive: true}

	before := m.lastAdjustment
	m.evaluateAndAdjust(context.Background())

	assert.Empty(t, gw.dutyCalls())
	assert.Equal(t, before, m.lastAdjustment)
}

// S4 — Priority redistribution on ceiling.
func TestEvaluatePriorityRedistributionOnCeiling(t *testing.T) {
	gw := newFakeActuator()
	m := seedManager(gw, 3000, true)
	m.priorityNode = "1"
	m.nodes["1"] = &NodeState{NodeID: "1", Duty: 20, Power: 400, TargetDuty: 20, Responsive: true}
	m.nodes["2"] = &NodeState{NodeID: "2", Duty: 50, Power: 1250, TargetDuty: 100, Responsive: true}

	m.evaluateAndAdjust(context.Background())

	calls := gw.dutyCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, dutyCall{"2", 84}, calls[0])
}

// S5 — Disable restoration.
func TestDisableRestoresTargetDuty(t *testing.T) {
	gw := newFakeActuator()
	m := seedManager(gw, 3000, false)
	m.nodes["3"] = &NodeState{NodeID: "3", TargetDuty: 80, CommandedDuty: 45, Responsive: true}
	DrainDelay = time.Millisecond
	defer func() { DrainDelay = 2 * time.Second }()

	m.Disable(context.Background())

	calls := gw.dutyCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, dutyCall{"3", 80}, calls[0])
	assert.Nil(t, m.thresholdMW)
	assert.Equal(t, 0, m.nodes["3"].CommandedDuty)
}

// Property 1: commanded_duty never exceeds target_duty while PM is active.
func TestInvariantCommandedNeverExceedsTarget(t *testing.T) {
	gw := newFakeActuator()
	m := seedManager(gw, 3000, true)
	m.nodes["1"] = &NodeState{NodeID: "1", Duty: 40, Power: 1200, TargetDuty: 100, Responsive: true}
	m.nodes["2"] = &NodeState{NodeID: "2", Duty: 40, Power: 1250, TargetDuty: 100, Responsive: true}

	m.evaluateAndAdjust(context.Background())

	for _, ns := range m.nodes {
		assert.GreaterOrEqual(t, ns.CommandedDuty, 0)
		assert.LessOrEqual(t, ns.CommandedDuty, ns.TargetDuty)
		assert.LessOrEqual(t, ns.TargetDuty, 100)
	}
}

// Property 2: target_duty never decreases from priority changes alone.
func TestInvariantTargetDutyNeverDecreasesOnPriorityChange(t *testing.T) {
	gw := newFakeActuator()
	m := seedManager(gw, 3000, false)
	m.nodes["1"] = &NodeState{NodeID: "1", TargetDuty: 60, Responsive: true}

	m.SetPriority("1")
	assert.Equal(t, 60, m.nodes["1"].TargetDuty)
	m.ClearPriority()
	assert.Equal(t, 60, m.nodes["1"].TargetDuty)
}

// Property 4: set_threshold invoked twice with PM active does not change target_duty.
func TestInvariantSecondSetThresholdDoesNotResnapshot(t *testing.T) {
	gw := newFakeActuator()
	m := NewManager(gw)
	m.nodes["1"] = &NodeState{NodeID: "1", Duty: 70, TargetDuty: 0, Responsive: true}

	m.SetThreshold(3000)
	assert.Equal(t, 70, m.nodes["1"].TargetDuty)

	// PM nudges the node down; a stale sensor report must not re-freeze target_duty.
	m.nodes["1"].Duty = 30
	m.SetThreshold(2500)
	assert.Equal(t, 70, m.nodes["1"].TargetDuty, "re-invocation while PM active must not re-snapshot target_duty")
}

func TestSetThresholdFreezesTargetDutyOnFirstEnableOnly(t *testing.T) {
	gw := newFakeActuator()
	m := NewManager(gw)
	m.nodes["9"] = &NodeState{NodeID: "9", Duty: 55, Responsive: true}

	m.SetThreshold(1800)
	assert.Equal(t, 55, m.nodes["9"].TargetDuty)
}

func TestSetTargetDutySyncsCommandedDuty(t *testing.T) {
	gw := newFakeActuator()
	m := NewManager(gw)

	m.SetTargetDuty("4", 65)

	require.Contains(t, m.nodes, "4")
	assert.Equal(t, 65, m.nodes["4"].TargetDuty)
	assert.Equal(t, 65, m.nodes["4"].CommandedDuty)
}

func TestOnSensorDataSyncsCommandedDutyOnlyWhenDisabled(t *testing.T) {
	gw := newFakeActuator()
	m := NewManager(gw)

	m.OnSensorData("1", 33, 12.0, 500.0, 6000.0)
	assert.Equal(t, 33, m.nodes["1"].CommandedDuty)

	mw := 2000.0
	m.thresholdMW = &mw
	m.OnSensorData("1", 77, 12.0, 500.0, 6000.0)
	assert.Equal(t, 33, m.nodes["1"].CommandedDuty, "commanded_duty must not be overwritten by sensor data while PM is active")
	assert.Equal(t, 77, m.nodes["1"].Duty)
}

func TestBootstrapDiscoveryProbesOnlyScannedCount(t *testing.T) {
	gw := newFakeActuator()
	gw.sensing = 2
	m := NewManager(gw)
	mw := 1000.0
	m.thresholdMW = &mw

	m.bootstrapDiscovery(context.Background())

	gw.mu.Lock()
	reads := append([]string(nil), gw.reads...)
	gw.mu.Unlock()
	assert.ElementsMatch(t, []string{"1", "2"}, reads, "probes exactly the addresses the scan implied, no more")
}

func TestMarkStaleNodesSkipsNonNumericIDs(t *testing.T) {
	gw := newFakeActuator()
	m := NewManager(gw)
	m.nodes["ALL"] = &NodeState{NodeID: "ALL", LastSeen: time.Now().Add(-time.Hour), Responsive: true}
	m.nodes["1"] = &NodeState{NodeID: "1", LastSeen: time.Now().Add(-time.Hour), Responsive: true}

	m.markStaleNodes()

	assert.True(t, m.nodes["ALL"].Responsive)
	assert.False(t, m.nodes["1"].Responsive)
}
