package history

import (
	"context"
	"time"
)

// Sink is an append-only destination for sensor readings. Implementations
// must not block the caller for long. InsertReading may return an error;
// the gateway controller logs it at debug level and carries on, so
// persistence failures are diagnostic, never fatal to the control loop.
type Sink interface {
	InsertReading(ctx context.Context, nodeID string, duty int, voltage, current, power float64) error
	Close() error
}

// NoopSink discards every reading. It is the default when no history
// backend is configured.
type NoopSink struct{}

func (NoopSink) InsertReading(ctx context.Context, nodeID string, duty int, voltage, current, power float64) error {
	return nil
}

func (NoopSink) Close() error { return nil }

// Reading is a single stored sample, returned by query helpers.
type Reading struct {
	NodeID    string
	Duty      int
	Voltage   float64
	Current   float64
	Power     float64
	Timestamp time.Time
}
