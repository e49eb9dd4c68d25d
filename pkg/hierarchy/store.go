// Package hierarchy provides the minimal entity tree the resolution
// engine scopes against. In production the tree mirrors the platform's
// ontology store; here it is the engine's hierarchy provider.
package hierarchy

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ontoserve/warden/pkg/authz"
)

// maxDepth bounds ancestor walks. A chain longer than this means the
// parent pointers are corrupt even if no id repeats.
const maxDepth = 128

// Entity is a node in the hierarchical object graph
type Entity struct {
	ID          authz.EntityID  `json:"id"`
	DisplayName string          `json:"display_name"`
	ParentID    *authz.EntityID `json:"parent_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Store handles entity persistence and implements the engine's
// hierarchy provider.
type Store struct {
	db *sql.DB
}

// NewStore creates a new hierarchy store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateEntity creates an entity. ID and CreatedAt are filled in. The
// parent, when set, must exist and not be deleted.
func (s *Store) CreateEntity(ctx context.Context, e *Entity) error {
	if strings.TrimSpace(e.DisplayName) == "" {
		return fmt.Errorf("display_name is required: %w", authz.ErrInvalidInput)
	}
	if e.ParentID != nil {
		if _, err := s.GetEntity(ctx, *e.ParentID); err != nil {
			return err
		}
	}

	e.ID = authz.EntityID(uuid.New().String())
	e.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO entities (id, display_name, parent_id, created_at) VALUES ($1, $2, $3, $4)",
		e.ID, e.DisplayName, parentValue(e.ParentID), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create entity: %w", err)
	}
	return nil
}

// GetEntity retrieves an entity by ID; deleted entities are not found.
func (s *Store) GetEntity(ctx context.Context, id authz.EntityID) (*Entity, error) {
	var (
		e      Entity
		parent sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, display_name, parent_id, created_at FROM entities WHERE id = $1 AND deleted_at IS NULL", id).
		Scan(&e.ID, &e.DisplayName, &parent, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("entity %s: %w", id, authz.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	if parent.Valid {
		p := authz.EntityID(parent.String)
		e.ParentID = &p
	}
	return &e, nil
}

// ListEntities returns all live entities
func (s *Store) ListEntities(ctx context.Context) ([]Entity, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, display_name, parent_id, created_at FROM entities WHERE deleted_at IS NULL ORDER BY display_name")
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		var (
			e      Entity
			parent sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.DisplayName, &parent, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		if parent.Valid {
			p := authz.EntityID(parent.String)
			e.ParentID = &p
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// DeleteEntity soft-deletes an entity. Deletion is refused while live
// children reference it, so subtrees are removed leaf-first.
func (s *Store) DeleteEntity(ctx context.Context, id authz.EntityID) error {
	var hasChildren bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM entities WHERE parent_id = $1 AND deleted_at IS NULL)", id).Scan(&hasChildren)
	if err != nil {
		return fmt.Errorf("failed to check children: %w", err)
	}
	if hasChildren {
		return fmt.Errorf("entity %s has children: %w", id, authz.ErrConflict)
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE entities SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL",
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("entity %s: %w", id, authz.ErrNotFound)
	}
	return nil
}

// Ancestors returns the chain from the entity up to its root, entity
// first. The walk is iterative with a visited set; a repeated id or a
// chain past the depth bound fails with ErrCycleDetected so corrupt
// parent pointers can never widen access.
func (s *Store) Ancestors(ctx context.Context, id authz.EntityID) ([]authz.EntityID, error) {
	var (
		chain   []authz.EntityID
		visited = map[authz.EntityID]bool{}
		current = &id
	)
	for current != nil {
		if visited[*current] || len(chain) >= maxDepth {
			return nil, fmt.Errorf("hierarchy walk from %s: %w", id, authz.ErrCycleDetected)
		}
		visited[*current] = true
		chain = append(chain, *current)

		e, err := s.GetEntity(ctx, *current)
		if err != nil {
			return nil, err
		}
		current = e.ParentID
	}
	return chain, nil
}

// Subtree returns the entity and all its live descendants
func (s *Store) Subtree(ctx context.Context, id authz.EntityID) ([]authz.EntityID, error) {
	if _, err := s.GetEntity(ctx, id); err != nil {
		return nil, err
	}

	members := []authz.EntityID{id}
	frontier := []authz.EntityID{id}
	seen := map[authz.EntityID]bool{id: true}

	for len(frontier) > 0 {
		next := frontier[0]
		frontier = frontier[1:]

		children, err := s.children(ctx, next)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if seen[child] {
				return nil, fmt.Errorf("hierarchy walk from %s: %w", id, authz.ErrCycleDetected)
			}
			seen[child] = true
			members = append(members, child)
			frontier = append(frontier, child)
		}
	}
	return members, nil
}

// AllEntities returns the ids of all live entities, for expanding
// global-scope assignments.
func (s *Store) AllEntities(ctx context.Context) ([]authz.EntityID, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM entities WHERE deleted_at IS NULL")
	if err != nil {
		return nil, fmt.Errorf("failed to list entity ids: %w", err)
	}
	defer rows.Close()

	var ids []authz.EntityID
	for rows.Next() {
		var id authz.EntityID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan entity id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) children(ctx context.Context, id authz.EntityID) ([]authz.EntityID, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM entities WHERE parent_id = $1 AND deleted_at IS NULL", id)
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	defer rows.Close()

	var ids []authz.EntityID
	for rows.Next() {
		var child authz.EntityID
		if err := rows.Scan(&child); err != nil {
			return nil, fmt.Errorf("failed to scan child id: %w", err)
		}
		ids = append(ids, child)
	}
	return ids, rows.Err()
}

func parentValue(id *authz.EntityID) interface{} {
	if id == nil {
		return nil
	}
	return string(*id)
}
