package power

import "time"

// NodeState tracks the last known state of a single mesh node as seen by
// the power manager.
type NodeState struct {
	NodeID string

	Duty          int // Current duty from the most recent sensor reading.
	TargetDuty    int // User-requested duty ceiling; restored when PM disables.
	CommandedDuty int // Last duty percent PM sent and saw confirmed; copied from sensor duty while PM is off and on forced evaluations.

	Voltage float64 // V
	Current float64 // mA
	Power   float64 // mW

	LastSeen   time.Time
	Responsive bool
	PollGen    uint64 // Which poll cycle this reading belongs to.
}
