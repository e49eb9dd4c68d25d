// Package authz is the permission-resolution kernel: it decides, for a
// (principal, entity, permission) triple, whether an action is allowed
// and why.
//
// # Overview
//
// The package combines four inputs into a single auditable Decision:
//
//   - role assignments (possibly scoped to an entity subtree,
//     time-bounded, cron-scheduled, or marked as explicit denials)
//   - the role catalog, which expands a role into granted permissions
//   - the entity hierarchy, which makes grants on a parent apply to
//     every descendant
//   - a clock
//
// The Engine is a pure function of those inputs; it holds no mutable
// state and is safe for concurrent use. The Service wraps the Engine
// with a TTL-bounded decision cache, Prometheus metrics, and audit
// logging, and is the only surface other subsystems should depend on.
//
// # Decision semantics
//
// A matching deny assignment always wins over any matching allow,
// regardless of creation order. Scope containment, temporal validity
// (valid_from/valid_until plus an optional cron schedule), and role
// expansion are applied independently to every assignment. When
// nothing matches, the Reason distinguishes NoGrant, OutOfScope, and
// Expired so that operators can tell why access was refused.
//
// # Caching
//
// The decision cache is a pure performance layer with bounded
// staleness: a revoked permission may still read as allowed for up to
// one TTL. Call sites that need immediate consistency after a write
// use Service.CheckPermissionUncached.
package authz
