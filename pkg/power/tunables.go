package power

import "time"

// Tunables controlling the poll-and-adjust cycle. These are design-level
// constants, not runtime configuration — see the package-level discussion
// in the project's external-interfaces notes for why.
const (
	// PollInterval is the end-to-end cycle period.
	PollInterval = 3 * time.Second

	// ReadStagger is the minimum spacing the controller must leave between
	// successive per-node READs; it must exceed the mesh's own
	// send-complete time or responses queue up behind in-flight sends.
	ReadStagger = 2500 * time.Millisecond

	// StaleTimeout is how long a node may go unheard before it is marked
	// unresponsive. Mesh relay round trips are slow, so this is generous.
	StaleTimeout = 45 * time.Second

	// Cooldown is the minimum spacing between consecutive adjustments.
	Cooldown = 5 * time.Second

	// HeadroomMW is the target buffer kept below threshold.
	// budget = threshold - HeadroomMW.
	HeadroomMW = 500.0

	// PriorityWeight is the priority node's share weight; every other node
	// has weight 1.
	PriorityWeight = 2.0

	// DeadbandFrac: skip an adjustment if |total - budget| is under this
	// fraction of budget. Prevents constant jitter near equilibrium.
	DeadbandFrac = 0.05

	// SyncTolPct is the maximum drift, in duty percentage points, between
	// commanded_duty and the sensor-reported duty still considered in sync.
	SyncTolPct = 2.0

	// FallbackMwPerPct is the bootstrap mw-per-duty-percent estimate used
	// when no node has telemetry yet.
	FallbackMwPerPct = 50.0

	groupPollTimeout    = 3 * time.Second
	waitForResponsesCap = 4 * time.Second
	settleDelay         = 1 * time.Second
	reentryPollInterval = 100 * time.Millisecond
	reentryPollAttempts = 10
	nodeResponseTimeout = 5 * time.Second
)

// DrainDelay is how long Disable waits for in-flight mesh commands to
// settle before restoring duty cycles. Exposed as a variable so tests don't
// have to wait out the full production drain window.
var DrainDelay = 2 * time.Second
