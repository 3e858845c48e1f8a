package bus

import "time"

// Event is a tagged union of the four payload kinds the gateway publishes.
// Exactly one of LogLine, Sensor, State, or Adjust is set.
type Event struct {
	Timestamp time.Time

	LogLine *LogLineEvent
	Sensor  *SensorUpdateEvent
	State   *StateChangeEvent
	Adjust  *PowerAdjustEvent
}

// LogLineEvent is a human-readable operator message, the bus equivalent of
// the teacher's TUI LogMsg.
type LogLineEvent struct {
	Text string
	// Style is a free-form hint for UI front ends ("bold red", "dim", ...);
	// front ends that don't render styled text may ignore it.
	Style string
}

// SensorUpdateEvent carries one node's latest reading.
type SensorUpdateEvent struct {
	NodeID  string
	Duty    int
	Voltage float64
	Current float64
	Power   float64
}

// StateChangeEvent announces a connection or power-manager transition.
type StateChangeEvent struct {
	Entity   string // "connection" | "power_manager"
	NewState string
	Reason   string
}

// PowerAdjustEvent announces a duty command the power manager issued to a
// node, for UI/history consumers that want to show PM activity distinct
// from raw sensor readings.
type PowerAdjustEvent struct {
	NodeID  string
	NewDuty int
	ShareMW float64
}
