// Package bus decouples the gateway controller, the power manager, and UI
// front ends (TUI/web) with a typed fan-out of events instead of direct
// back-references between them.
//
// Event is a tagged union over exactly one of LogLine, SensorUpdate,
// StateChange, or PowerAdjust, following the same "exactly one pointer
// field set" shape pkg/log.Event uses for its payload kinds. Subscribers
// register a callback plus a Thread tag naming the goroutine/UI-thread the
// callback expects to run on. The bus records the tag but does not act on
// it: Post calls every callback synchronously on the publisher's goroutine,
// so a slow subscriber blocks the publisher, and a ThreadUI subscriber does
// its own marshaling onto the UI thread.
package bus
