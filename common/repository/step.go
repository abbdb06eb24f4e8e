package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/weftlabs/weft/common/db"
	"github.com/weftlabs/weft/common/models"
)

const stepColumns = `id, run_id, node_id, node_type, step_number, status,
		input, output, error, started_at, completed_at, duration_ms,
		tool_execution_id, created_at, updated_at`

// StepRepository handles database operations for run step records.
// Steps are append-only: retries overwrite nothing because the engine
// only records the final outcome of each node.
type StepRepository struct {
	db *db.DB
}

// NewStepRepository creates a new step repository
func NewStepRepository(database *db.DB) *StepRepository {
	return &StepRepository{db: database}
}

// Append inserts one observed node outcome
func (r *StepRepository) Append(ctx context.Context, step *models.WorkflowStep) error {
	query := `
		INSERT INTO workflow_run_steps (id, run_id, node_id, node_type, step_number, status, input, output, error, started_at, completed_at, duration_ms, tool_execution_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	input, err := encodeJSON(step.Input)
	if err != nil {
		return fmt.Errorf("failed to encode step input: %w", err)
	}
	output, err := encodeJSON(step.Output)
	if err != nil {
		return fmt.Errorf("failed to encode step output: %w", err)
	}

	return r.db.WithConnection(ctx, func(conn *pgxpool.Conn) error {
		_, err := conn.Exec(
			ctx,
			query,
			step.ID,
			step.RunID,
			step.NodeID,
			step.NodeType,
			step.StepNumber,
			step.Status,
			input,
			output,
			step.Error,
			step.StartedAt,
			step.CompletedAt,
			step.DurationMs,
			step.ToolExecutionID,
			step.CreatedAt,
			step.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to append step: %w", err)
		}
		return nil
	})
}

// ListByRun retrieves a run's steps in observation order
func (r *StepRepository) ListByRun(ctx context.Context, runID uuid.UUID) ([]*models.WorkflowStep, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM workflow_run_steps
		WHERE run_id = $1
		ORDER BY step_number ASC`, stepColumns)

	var steps []*models.WorkflowStep
	err := r.db.WithConnection(ctx, func(conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, query, runID)
		if err != nil {
			return fmt.Errorf("failed to list steps: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			step, err := scanStep(rows)
			if err != nil {
				return err
			}
			steps = append(steps, step)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("error iterating steps: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return steps, nil
}

// CountByRun returns how many steps a run has recorded so far
func (r *StepRepository) CountByRun(ctx context.Context, runID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM workflow_run_steps WHERE run_id = $1`

	var count int
	err := r.db.WithConnection(ctx, func(conn *pgxpool.Conn) error {
		if err := conn.QueryRow(ctx, query, runID).Scan(&count); err != nil {
			return fmt.Errorf("failed to count steps: %w", err)
		}
		return nil
	})
	return count, err
}

func scanStep(row pgx.Row) (*models.WorkflowStep, error) {
	var (
		step   models.WorkflowStep
		input  []byte
		output []byte
	)

	err := row.Scan(
		&step.ID,
		&step.RunID,
		&step.NodeID,
		&step.NodeType,
		&step.StepNumber,
		&step.Status,
		&input,
		&output,
		&step.Error,
		&step.StartedAt,
		&step.CompletedAt,
		&step.DurationMs,
		&step.ToolExecutionID,
		&step.CreatedAt,
		&step.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan step: %w", err)
	}

	if err := decodeJSON(input, &step.Input); err != nil {
		return nil, fmt.Errorf("failed to decode step input: %w", err)
	}
	if err := decodeJSON(output, &step.Output); err != nil {
		return nil, fmt.Errorf("failed to decode step output: %w", err)
	}

	return &step, nil
}
