package authz

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ontoserve/warden/pkg/audit"
	"github.com/ontoserve/warden/pkg/observability"
)

// DefaultBatchConcurrency bounds how many checks of a batch request
// resolve in parallel.
const DefaultBatchConcurrency = 8

// Service is the query facade over the resolution engine. It owns the
// decision cache, metrics, and the audit trail for denials; callers
// that need a plain yes/no use HasPermission, callers that enforce use
// RequirePermission, and introspection tooling uses CheckPermission
// for the full decision.
type Service struct {
	engine           *Engine
	cache            DecisionCache
	metrics          *Metrics
	audit            audit.Logger
	logger           *observability.Logger
	batchConcurrency int
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithCache installs a decision cache. Without it every check is a
// full resolution.
func WithCache(cache DecisionCache) ServiceOption {
	return func(s *Service) { s.cache = cache }
}

// WithMetrics installs Prometheus metrics for the decision path.
func WithMetrics(m *Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithAuditLogger installs the audit trail for denied decisions.
func WithAuditLogger(l audit.Logger) ServiceOption {
	return func(s *Service) { s.audit = l }
}

// WithLogger installs the structured logger.
func WithLogger(l *observability.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithBatchConcurrency bounds parallelism for CheckMany.
func WithBatchConcurrency(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.batchConcurrency = n
		}
	}
}

// NewService creates the query facade.
func NewService(engine *Engine, opts ...ServiceOption) *Service {
	s := &Service{
		engine:           engine,
		cache:            NopCache{},
		audit:            audit.NopLogger(),
		logger:           observability.NewLogger(observability.InfoLevel, nil),
		batchConcurrency: DefaultBatchConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckPermission returns the full decision for the triple, serving
// from the cache when a fresh entry exists.
func (s *Service) CheckPermission(ctx context.Context, principal PrincipalID, entity EntityID, permission Permission) (Decision, error) {
	key := CacheKey{Principal: principal, Entity: entity, Permission: permission}

	d, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		// A broken cache backend degrades to a miss.
		s.logger.WithError(err).Warn("decision cache lookup failed")
	}
	if ok {
		s.metrics.recordCacheHit()
		return d, nil
	}
	s.metrics.recordCacheMiss()

	return s.resolveAndStore(ctx, key)
}

// CheckPermissionUncached bypasses the cache read, resolves fresh,
// and refreshes the cached entry. Use it when a stale answer is not
// acceptable, e.g. right after revoking an assignment.
func (s *Service) CheckPermissionUncached(ctx context.Context, principal PrincipalID, entity EntityID, permission Permission) (Decision, error) {
	key := CacheKey{Principal: principal, Entity: entity, Permission: permission}
	return s.resolveAndStore(ctx, key)
}

func (s *Service) resolveAndStore(ctx context.Context, key CacheKey) (Decision, error) {
	start := time.Now()
	d, err := s.engine.Resolve(ctx, key.Principal, key.Entity, key.Permission)
	if err != nil {
		return Decision{}, fmt.Errorf("resolving %s/%s/%s: %w", key.Principal, key.Entity, key.Permission, err)
	}
	s.metrics.recordDecision(d, time.Since(start))

	if !d.Allowed {
		s.auditDenial(ctx, key, d)
	}

	if err := s.cache.Set(ctx, key, d); err != nil {
		s.logger.WithError(err).Warn("decision cache store failed")
	}
	return d, nil
}

func (s *Service) auditDenial(ctx context.Context, key CacheKey, d Decision) {
	event := audit.NewEvent(audit.EventTypeAccessDenied, audit.StatusDenied)
	event.Principal = string(key.Principal)
	event.ResourceType = audit.ResourceTypeEntity
	event.ResourceID = string(key.Entity)
	event.Permission = string(key.Permission)
	event.Reason = d.Reason.String()
	if err := s.audit.Log(ctx, event); err != nil {
		s.logger.WithError(err).Warn("failed to record denial in audit trail")
	}
}

// HasPermission is the boolean form of CheckPermission.
func (s *Service) HasPermission(ctx context.Context, principal PrincipalID, entity EntityID, permission Permission) (bool, error) {
	d, err := s.CheckPermission(ctx, principal, entity, permission)
	if err != nil {
		return false, err
	}
	return d.Allowed, nil
}

// RequirePermission returns nil if the principal holds the
// permission, a *PermissionDeniedError if not, and the underlying
// error when the check itself could not run. Infrastructure failures
// never grant access.
func (s *Service) RequirePermission(ctx context.Context, principal PrincipalID, entity EntityID, permission Permission) error {
	d, err := s.CheckPermission(ctx, principal, entity, permission)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return &PermissionDeniedError{
			Principal:  principal,
			Entity:     entity,
			Permission: permission,
			Reason:     d.Reason,
		}
	}
	return nil
}

// CheckMany evaluates a batch of checks for one principal. Results
// are positional: results[i] answers checks[i]. The batch fails as a
// whole if any check fails to resolve.
func (s *Service) CheckMany(ctx context.Context, principal PrincipalID, checks []CheckRequest) ([]CheckResult, error) {
	s.metrics.recordBatch(len(checks))
	if len(checks) == 0 {
		return []CheckResult{}, nil
	}

	results := make([]CheckResult, len(checks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.batchConcurrency)
	for i := range checks {
		i := i
		g.Go(func() error {
			check := checks[i]
			allowed, err := s.HasPermission(gctx, principal, check.Entity, check.Permission)
			if err != nil {
				return err
			}
			results[i] = CheckResult{Entity: check.Entity, Permission: check.Permission, Allowed: allowed}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// AccessibleEntities lists, in lexical order, every entity on which
// the principal currently holds the permission. Always resolved
// fresh: the result spans the whole hierarchy and would go stale as a
// unit.
func (s *Service) AccessibleEntities(ctx context.Context, principal PrincipalID, permission Permission) ([]EntityID, error) {
	set, err := s.engine.AccessibleEntities(ctx, principal, permission)
	if err != nil {
		return nil, err
	}
	out := make([]EntityID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// InvalidatePrincipal drops the principal's cached decisions. Stores
// call this after granting or revoking assignments.
func (s *Service) InvalidatePrincipal(ctx context.Context, principal PrincipalID) error {
	return s.cache.InvalidatePrincipal(ctx, principal)
}

// CacheStats exposes cache effectiveness for the ops endpoints.
func (s *Service) CacheStats() CacheStats {
	return s.cache.Stats()
}
