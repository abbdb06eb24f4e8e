package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/weftlabs/weft/common/db"
	"github.com/weftlabs/weft/common/models"
)

const workflowColumns = `id, user_id, org_id, name, description, status, version,
		tags, nodes, edges, input_schema, created_at, updated_at`

// WorkflowRepository handles database operations for workflow definitions
type WorkflowRepository struct {
	db *db.DB
}

// NewWorkflowRepository creates a new workflow repository
func NewWorkflowRepository(database *db.DB) *WorkflowRepository {
	return &WorkflowRepository{db: database}
}

// Create inserts a new workflow definition
func (r *WorkflowRepository) Create(ctx context.Context, def *models.WorkflowDefinition) error {
	query := `
		INSERT INTO workflow_definitions (id, user_id, org_id, name, description, status, version, tags, nodes, edges, input_schema, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	tags, nodes, edges, schema, err := encodeDefinition(def)
	if err != nil {
		return err
	}

	return r.db.WithConnection(ctx, func(conn *pgxpool.Conn) error {
		_, err := conn.Exec(
			ctx,
			query,
			def.ID,
			def.UserID,
			def.OrgID,
			def.Name,
			def.Description,
			def.Status,
			def.Version,
			tags,
			nodes,
			edges,
			schema,
			def.CreatedAt,
			def.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create workflow: %w", err)
		}
		return nil
	})
}

// GetByID retrieves a definition by id without ownership scoping
func (r *WorkflowRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.WorkflowDefinition, error) {
	query := fmt.Sprintf(`SELECT %s FROM workflow_definitions WHERE id = $1`, workflowColumns)
	return r.getOne(ctx, query, id)
}

// GetByIDForOrg retrieves a definition only when it belongs to the org
func (r *WorkflowRepository) GetByIDForOrg(ctx context.Context, id uuid.UUID, orgID string) (*models.WorkflowDefinition, error) {
	query := fmt.Sprintf(`SELECT %s FROM workflow_definitions WHERE id = $1 AND org_id = $2`, workflowColumns)
	return r.getOne(ctx, query, id, orgID)
}

// GetByIDForUser retrieves a definition only when it belongs to the
// user; a non-nil orgID additionally requires the org to match.
func (r *WorkflowRepository) GetByIDForUser(ctx context.Context, id uuid.UUID, userID string, orgID *string) (*models.WorkflowDefinition, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM workflow_definitions
		WHERE id = $1 AND user_id = $2 AND ($3::text IS NULL OR org_id = $3)`, workflowColumns)
	return r.getOne(ctx, query, id, userID, orgID)
}

// Update replaces a definition's mutable fields, guarded on the version
// the caller read. The row's version increments; a stale expected
// version (or a non-draft row) updates nothing and returns nil.
func (r *WorkflowRepository) Update(ctx context.Context, def *models.WorkflowDefinition, expectedVersion int, now time.Time) (*models.WorkflowDefinition, error) {
	query := fmt.Sprintf(`
		UPDATE workflow_definitions SET
			name = $3,
			description = $4,
			tags = $5,
			nodes = $6,
			edges = $7,
			input_schema = $8,
			version = version + 1,
			updated_at = $9
		WHERE id = $1 AND version = $2 AND status = 'draft'
		RETURNING %s`, workflowColumns)

	tags, nodes, edges, schema, err := encodeDefinition(def)
	if err != nil {
		return nil, err
	}

	var updated *models.WorkflowDefinition
	err = r.db.WithConnection(ctx, func(conn *pgxpool.Conn) error {
		row := conn.QueryRow(ctx, query, def.ID, expectedVersion, def.Name, def.Description, tags, nodes, edges, schema, now.UTC())
		found, err := scanWorkflow(row)
		if err != nil {
			return err
		}
		updated = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// UpdateStatus transitions a definition's lifecycle status, guarded on
// the statuses the transition is legal from. Returns nil when the row
// is missing or not in an allowed source status.
func (r *WorkflowRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.WorkflowStatus, allowedFrom []models.WorkflowStatus, now time.Time) (*models.WorkflowDefinition, error) {
	query := fmt.Sprintf(`
		UPDATE workflow_definitions SET status = $2, updated_at = $3
		WHERE id = $1 AND status = ANY($4)
		RETURNING %s`, workflowColumns)

	from := make([]string, len(allowedFrom))
	for i, s := range allowedFrom {
		from[i] = string(s)
	}

	var updated *models.WorkflowDefinition
	err := r.db.WithConnection(ctx, func(conn *pgxpool.Conn) error {
		row := conn.QueryRow(ctx, query, id, status, now.UTC(), from)
		found, err := scanWorkflow(row)
		if err != nil {
			return err
		}
		updated = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a draft definition. Published definitions are archived
// instead, so runs can keep referencing them.
func (r *WorkflowRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `DELETE FROM workflow_definitions WHERE id = $1 AND status = 'draft'`

	var deleted bool
	err := r.db.WithConnection(ctx, func(conn *pgxpool.Conn) error {
		tag, err := conn.Exec(ctx, query, id)
		if err != nil {
			return fmt.Errorf("failed to delete workflow: %w", err)
		}
		deleted = tag.RowsAffected() > 0
		return nil
	})
	return deleted, err
}

// ListByUser retrieves a user's definitions, newest first
func (r *WorkflowRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.WorkflowDefinition, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM workflow_definitions
		WHERE user_id = $1
		ORDER BY updated_at DESC
		LIMIT $2`, workflowColumns)
	return r.list(ctx, query, userID, limit)
}

// ListByOrg retrieves an org's definitions, newest first
func (r *WorkflowRepository) ListByOrg(ctx context.Context, orgID string, limit int) ([]*models.WorkflowDefinition, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM workflow_definitions
		WHERE org_id = $1
		ORDER BY updated_at DESC
		LIMIT $2`, workflowColumns)
	return r.list(ctx, query, orgID, limit)
}

// ListByTag retrieves definitions carrying the given tag
func (r *WorkflowRepository) ListByTag(ctx context.Context, tag string, limit int) ([]*models.WorkflowDefinition, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM workflow_definitions
		WHERE tags ? $1
		ORDER BY updated_at DESC
		LIMIT $2`, workflowColumns)
	return r.list(ctx, query, tag, limit)
}

func (r *WorkflowRepository) getOne(ctx context.Context, query string, args ...any) (*models.WorkflowDefinition, error) {
	var def *models.WorkflowDefinition
	err := r.db.WithConnection(ctx, func(conn *pgxpool.Conn) error {
		found, err := scanWorkflow(conn.QueryRow(ctx, query, args...))
		if err != nil {
			return err
		}
		def = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return def, nil
}

func (r *WorkflowRepository) list(ctx context.Context, query string, args ...any) ([]*models.WorkflowDefinition, error) {
	var defs []*models.WorkflowDefinition
	err := r.db.WithConnection(ctx, func(conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to list workflows: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			def, err := scanWorkflow(rows)
			if err != nil {
				return err
			}
			defs = append(defs, def)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("error iterating workflows: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return defs, nil
}

func scanWorkflow(row pgx.Row) (*models.WorkflowDefinition, error) {
	var (
		def    models.WorkflowDefinition
		tags   []byte
		nodes  []byte
		edges  []byte
		schema []byte
	)

	err := row.Scan(
		&def.ID,
		&def.UserID,
		&def.OrgID,
		&def.Name,
		&def.Description,
		&def.Status,
		&def.Version,
		&tags,
		&nodes,
		&edges,
		&schema,
		&def.CreatedAt,
		&def.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	if err := decodeJSON(tags, &def.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode workflow tags: %w", err)
	}
	if err := decodeJSON(nodes, &def.Nodes); err != nil {
		return nil, fmt.Errorf("failed to decode workflow nodes: %w", err)
	}
	if err := decodeJSON(edges, &def.Edges); err != nil {
		return nil, fmt.Errorf("failed to decode workflow edges: %w", err)
	}
	if err := decodeJSON(schema, &def.InputSchema); err != nil {
		return nil, fmt.Errorf("failed to decode workflow input schema: %w", err)
	}

	return &def, nil
}

func encodeDefinition(def *models.WorkflowDefinition) (tags, nodes, edges, schema []byte, err error) {
	if tags, err = encodeJSON(def.Tags); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to encode workflow tags: %w", err)
	}
	if nodes, err = json.Marshal(def.Nodes); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to encode workflow nodes: %w", err)
	}
	if edges, err = json.Marshal(def.Edges); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to encode workflow edges: %w", err)
	}
	if schema, err = encodeJSON(def.InputSchema); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to encode workflow input schema: %w", err)
	}
	return tags, nodes, edges, schema, nil
}
