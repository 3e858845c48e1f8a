// Package power implements the equilibrium-based power balancer.
//
// Manager maintains total mesh power near (threshold - headroom) by nudging
// node duty cycles up or down each poll cycle:
//   - No priority: all responsive nodes get an equal power share.
//   - With priority: the priority node gets PriorityWeight times a normal
//     share; if it cannot use its full share the surplus is redistributed.
//   - Bidirectional: duty increases when the mesh is under budget, decreases
//     when over.
//   - Gradual: one duty command per node per cycle, clamped to the node's
//     target_duty ceiling, so oscillation settles over a few cycles instead
//     of overshooting.
//
// Manager never talks to the mesh directly; it calls back through the
// Actuator interface, which pkg/gateway implements with an adapter over its
// Controller. This keeps
// pkg/power free of any dependency on pkg/transport or pkg/notify.
package power
