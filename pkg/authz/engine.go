package authz

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// AssignmentSource supplies the non-revoked assignments of a
// principal. Scope and temporal filtering are the engine's job, not
// the store's, so all reason variants stay computable.
type AssignmentSource interface {
	ListForPrincipal(ctx context.Context, principal PrincipalID) ([]Assignment, error)
}

// RoleGrantSource expands a role into the permissions it grants.
type RoleGrantSource interface {
	GrantedPermissions(ctx context.Context, role RoleID) ([]Permission, error)
}

// Hierarchy is the read-only view of the entity graph the engine
// consumes. Ancestors returns the chain from the entity itself to the
// root, must terminate, and must not contain an id twice. Subtree
// returns the entity and all of its descendants.
type Hierarchy interface {
	Ancestors(ctx context.Context, entity EntityID) ([]EntityID, error)
	Subtree(ctx context.Context, root EntityID) ([]EntityID, error)
	AllEntities(ctx context.Context) ([]EntityID, error)
}

// globalScopeDepth orders unscoped assignments as the widest possible
// scope when picking the narrowest match for the decision report.
const globalScopeDepth = int(^uint(0) >> 1)

// Engine implements the resolution algorithm. It is a pure function
// of (assignments, catalog, hierarchy, clock): it holds no mutable
// state, so concurrent Resolve calls need no synchronization beyond
// what the underlying stores provide for reads.
type Engine struct {
	assignments AssignmentSource
	roles       RoleGrantSource
	hierarchy   Hierarchy
	now         func() time.Time
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithClock substitutes the time source, letting tests pin "now".
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a resolution engine over the given stores.
func NewEngine(assignments AssignmentSource, roles RoleGrantSource, hierarchy Hierarchy, opts ...EngineOption) *Engine {
	e := &Engine{
		assignments: assignments,
		roles:       roles,
		hierarchy:   hierarchy,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type scopedMatch struct {
	assignment Assignment
	depth      int
}

// Resolve computes the decision for a single (principal, entity,
// permission) triple. A hierarchy cycle fails the request with
// ErrCycleDetected rather than producing a decision.
func (e *Engine) Resolve(ctx context.Context, principal PrincipalID, entity EntityID, permission Permission) (Decision, error) {
	now := e.now()

	chain, err := e.hierarchy.Ancestors(ctx, entity)
	if err != nil {
		return Decision{}, fmt.Errorf("ancestor chain for %s: %w", entity, err)
	}
	depthOf := make(map[EntityID]int, len(chain))
	for i, id := range chain {
		depthOf[id] = i
	}

	assignments, err := e.assignments.ListForPrincipal(ctx, principal)
	if err != nil {
		return Decision{}, fmt.Errorf("assignments for %s: %w", principal, err)
	}

	var (
		grants, denials       []scopedMatch
		sawInScopeButInactive bool
		sawGrantingOutOfScope bool
		roleGrants            = make(map[RoleID]bool)
	)
	for i := range assignments {
		a := assignments[i]

		granted, known := roleGrants[a.Role]
		if !known {
			perms, err := e.roles.GrantedPermissions(ctx, a.Role)
			if err != nil {
				return Decision{}, fmt.Errorf("expanding role %s: %w", a.Role, err)
			}
			for _, p := range perms {
				if p == permission {
					granted = true
					break
				}
			}
			roleGrants[a.Role] = granted
		}
		if !granted {
			continue
		}

		depth := globalScopeDepth
		if a.Scope != nil {
			d, inScope := depthOf[*a.Scope]
			if !inScope {
				if !a.Deny {
					sawGrantingOutOfScope = true
				}
				continue
			}
			depth = d
		}

		if !a.ActiveAt(now) {
			// Only granting assignments feed the reason taxonomy: an
			// expired or out-of-scope deny does not mean the principal
			// ever held the permission.
			if !a.Deny {
				sawInScopeButInactive = true
			}
			continue
		}

		m := scopedMatch{assignment: a, depth: depth}
		if a.Deny {
			denials = append(denials, m)
		} else {
			grants = append(grants, m)
		}
	}

	d := Decision{CheckedAt: now, Matched: collectMatched(denials, grants)}
	switch {
	case len(denials) > 0:
		d.Allowed = false
		d.Reason = ReasonDeniedExplicitly
		d.Primary = narrowest(denials)
	case len(grants) > 0:
		d.Allowed = true
		d.Reason = ReasonAllowedByRole
		d.Primary = narrowest(grants)
	case sawInScopeButInactive:
		d.Reason = ReasonExpired
	case sawGrantingOutOfScope:
		d.Reason = ReasonOutOfScope
	default:
		d.Reason = ReasonNoGrant
	}
	return d, nil
}

// AccessibleEntities computes the set of entities for which Resolve
// would allow the permission, top-down from assignment scopes instead
// of brute-force checking every entity. Because the hierarchy is a
// parent-pointer forest, an entity is in the subtree of a scope
// exactly when the scope is on the entity's ancestor chain, so the
// subtree union minus the denial subtrees equals the brute-force
// definition.
func (e *Engine) AccessibleEntities(ctx context.Context, principal PrincipalID, permission Permission) (map[EntityID]struct{}, error) {
	now := e.now()

	assignments, err := e.assignments.ListForPrincipal(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("assignments for %s: %w", principal, err)
	}

	roleGrants := make(map[RoleID]bool)
	var activeGrants, activeDenials []Assignment
	for i := range assignments {
		a := assignments[i]
		granted, known := roleGrants[a.Role]
		if !known {
			perms, err := e.roles.GrantedPermissions(ctx, a.Role)
			if err != nil {
				return nil, fmt.Errorf("expanding role %s: %w", a.Role, err)
			}
			for _, p := range perms {
				if p == permission {
					granted = true
					break
				}
			}
			roleGrants[a.Role] = granted
		}
		if !granted || !a.ActiveAt(now) {
			continue
		}
		if a.Deny {
			activeDenials = append(activeDenials, a)
		} else {
			activeGrants = append(activeGrants, a)
		}
	}

	accessible := make(map[EntityID]struct{})
	for i := range activeGrants {
		ids, err := e.scopeMembers(ctx, activeGrants[i].Scope)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			accessible[id] = struct{}{}
		}
	}
	for i := range activeDenials {
		if activeDenials[i].Scope == nil {
			// A matching global denial beats every grant everywhere.
			return make(map[EntityID]struct{}), nil
		}
		ids, err := e.scopeMembers(ctx, activeDenials[i].Scope)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			delete(accessible, id)
		}
	}
	return accessible, nil
}

func (e *Engine) scopeMembers(ctx context.Context, scope *EntityID) ([]EntityID, error) {
	if scope == nil {
		ids, err := e.hierarchy.AllEntities(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing entities: %w", err)
		}
		return ids, nil
	}
	ids, err := e.hierarchy.Subtree(ctx, *scope)
	if errors.Is(err, ErrNotFound) {
		// The scope entity has been deleted since the assignment was
		// granted. Resolve treats such an assignment as out of scope
		// for every live entity, so it contributes no members here.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("subtree of %s: %w", *scope, err)
	}
	return ids, nil
}

// narrowest picks the match with the smallest ancestor-chain depth
// (the entity itself is depth 0, global scope widest). Ties keep the
// earliest-listed assignment.
func narrowest(matches []scopedMatch) *Assignment {
	best := 0
	for i := 1; i < len(matches); i++ {
		if matches[i].depth < matches[best].depth {
			best = i
		}
	}
	a := matches[best].assignment
	return &a
}

func collectMatched(denials, grants []scopedMatch) []Assignment {
	if len(denials)+len(grants) == 0 {
		return nil
	}
	out := make([]Assignment, 0, len(denials)+len(grants))
	for _, m := range denials {
		out = append(out, m.assignment)
	}
	for _, m := range grants {
		out = append(out, m.assignment)
	}
	return out
}
