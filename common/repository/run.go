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

const runColumns = `id, workflow_id, workflow_version, user_id, org_id, status,
		input, output, error, engine_state,
		started_at, completed_at, suspended_at, resumed_at, created_at, updated_at`

// RunRepository handles database operations for workflow runs. Every
// operation acquires its connection through WithConnection, and every
// ownership scope lives in the SQL predicate: a row owned by someone
// else is indistinguishable from a missing row.
type RunRepository struct {
	db *db.DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(database *db.DB) *RunRepository {
	return &RunRepository{db: database}
}

// Create inserts a new workflow run
func (r *RunRepository) Create(ctx context.Context, run *models.WorkflowRun) error {
	query := `
		INSERT INTO workflow_runs (id, workflow_id, workflow_version, user_id, org_id, status, input, engine_state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	input, err := encodeJSON(run.Input)
	if err != nil {
		return fmt.Errorf("failed to encode run input: %w", err)
	}
	state, err := encodeJSON(run.EngineState)
	if err != nil {
		return fmt.Errorf("failed to encode engine state: %w", err)
	}

	return r.db.WithConnection(ctx, func(conn *pgxpool.Conn) error {
		_, err := conn.Exec(
			ctx,
			query,
			run.ID,
			run.WorkflowID,
			run.WorkflowVersion,
			run.UserID,
			run.OrgID,
			run.Status,
			input,
			state,
			run.CreatedAt,
			run.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create run: %w", err)
		}
		return nil
	})
}

// GetByID retrieves a run by its id without ownership scoping
func (r *RunRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.WorkflowRun, error) {
	query := fmt.Sprintf(`SELECT %s FROM workflow_runs WHERE id = $1`, runColumns)
	return r.getOne(ctx, query, id)
}

// GetByIDForOrg retrieves a run only when it belongs to the given org
func (r *RunRepository) GetByIDForOrg(ctx context.Context, id uuid.UUID, orgID string) (*models.WorkflowRun, error) {
	query := fmt.Sprintf(`SELECT %s FROM workflow_runs WHERE id = $1 AND org_id = $2`, runColumns)
	return r.getOne(ctx, query, id, orgID)
}

// GetByIDForUser retrieves a run only when it belongs to the given user;
// a non-nil orgID additionally requires the run's org to match.
func (r *RunRepository) GetByIDForUser(ctx context.Context, id uuid.UUID, userID string, orgID *string) (*models.WorkflowRun, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM workflow_runs
		WHERE id = $1 AND user_id = $2 AND ($3::text IS NULL OR org_id = $3)`, runColumns)
	return r.getOne(ctx, query, id, userID, orgID)
}

// RunStatusPatch is the atomic state update written after node outcomes.
// All JSON columns are bound on every write so the snapshot row never
// mixes state from two different engine passes.
type RunStatusPatch struct {
	Status      models.RunStatus
	Output      any
	Error       *models.RunError
	EngineState *models.EngineState
	Now         time.Time
}

// UpdateStatus applies a status patch and returns the updated run.
// Timestamp columns follow the transition: running sets startedAt once
// (and resumedAt when leaving suspended), suspended sets suspendedAt,
// terminal statuses set completedAt. Returns nil when the run does not
// exist or is already terminal; terminal rows never change again.
func (r *RunRepository) UpdateStatus(ctx context.Context, id uuid.UUID, patch RunStatusPatch) (*models.WorkflowRun, error) {
	query := fmt.Sprintf(`
		UPDATE workflow_runs SET
			status = $2,
			output = $3,
			error = $4,
			engine_state = $5,
			started_at = CASE WHEN $2 = 'running' THEN COALESCE(started_at, $6) ELSE started_at END,
			resumed_at = CASE WHEN $2 = 'running' AND status = 'suspended' THEN $6 ELSE resumed_at END,
			suspended_at = CASE WHEN $2 = 'suspended' THEN $6 ELSE suspended_at END,
			completed_at = CASE WHEN $2 IN ('completed', 'failed', 'cancelled') THEN $6 ELSE completed_at END,
			updated_at = $6
		WHERE id = $1 AND status NOT IN ('completed', 'failed', 'cancelled')
		RETURNING %s`, runColumns)

	output, err := encodeJSON(patch.Output)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run output: %w", err)
	}
	runErr, err := encodeJSON(patch.Error)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run error: %w", err)
	}
	state, err := encodeJSON(patch.EngineState)
	if err != nil {
		return nil, fmt.Errorf("failed to encode engine state: %w", err)
	}

	var run *models.WorkflowRun
	err = r.db.WithConnection(ctx, func(conn *pgxpool.Conn) error {
		row := conn.QueryRow(ctx, query, id, patch.Status, output, runErr, state, patch.Now.UTC())
		found, err := scanRun(row)
		if err != nil {
			return err
		}
		run = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListByWorkflow retrieves the most recent runs of a workflow
func (r *RunRepository) ListByWorkflow(ctx context.Context, workflowID uuid.UUID, limit int) ([]*models.WorkflowRun, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM workflow_runs
		WHERE workflow_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, runColumns)
	return r.list(ctx, query, workflowID, limit)
}

// ListByUser retrieves the most recent runs created by a user
func (r *RunRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.WorkflowRun, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM workflow_runs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, runColumns)
	return r.list(ctx, query, userID, limit)
}

func (r *RunRepository) getOne(ctx context.Context, query string, args ...any) (*models.WorkflowRun, error) {
	var run *models.WorkflowRun
	err := r.db.WithConnection(ctx, func(conn *pgxpool.Conn) error {
		found, err := scanRun(conn.QueryRow(ctx, query, args...))
		if err != nil {
			return err
		}
		run = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (r *RunRepository) list(ctx context.Context, query string, args ...any) ([]*models.WorkflowRun, error) {
	var runs []*models.WorkflowRun
	err := r.db.WithConnection(ctx, func(conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			run, err := scanRun(rows)
			if err != nil {
				return err
			}
			runs = append(runs, run)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("error iterating runs: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// scanRun decodes one run row. ErrNoRows maps to (nil, nil) so missing
// and out-of-scope rows look identical to callers.
func scanRun(row pgx.Row) (*models.WorkflowRun, error) {
	var (
		run    models.WorkflowRun
		input  []byte
		output []byte
		runErr []byte
		state  []byte
	)

	err := row.Scan(
		&run.ID,
		&run.WorkflowID,
		&run.WorkflowVersion,
		&run.UserID,
		&run.OrgID,
		&run.Status,
		&input,
		&output,
		&runErr,
		&state,
		&run.StartedAt,
		&run.CompletedAt,
		&run.SuspendedAt,
		&run.ResumedAt,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	if err := decodeJSON(input, &run.Input); err != nil {
		return nil, fmt.Errorf("failed to decode run input: %w", err)
	}
	if err := decodeJSON(output, &run.Output); err != nil {
		return nil, fmt.Errorf("failed to decode run output: %w", err)
	}
	if len(runErr) > 0 {
		var re models.RunError
		if err := json.Unmarshal(runErr, &re); err != nil {
			return nil, fmt.Errorf("failed to decode run error: %w", err)
		}
		run.Error = &re
	}
	if len(state) > 0 {
		var es models.EngineState
		if err := json.Unmarshal(state, &es); err != nil {
			return nil, fmt.Errorf("failed to decode engine state: %w", err)
		}
		run.EngineState = &es
	}

	return &run, nil
}

// encodeJSON serializes a payload column. Nil values (including typed
// nil pointers) store SQL NULL, not the JSON literal null.
func encodeJSON(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(data) == "null" {
		return nil, nil
	}
	return data, nil
}

func decodeJSON(data []byte, out any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
