// Package gateway ties a transport session, the notification parser, the
// power manager, the event bus, and a history sink into one mesh-gateway
// controller.
//
// Controller owns the command API (DUTY/RAMP/STOP/READ/STATUS/MONITOR),
// per-node response latches, and the auto-reconnect supervisor. An
// unexported adapter over Controller implements power.Actuator so the power
// manager can drive the mesh without importing pkg/transport or pkg/notify
// itself.
package gateway
