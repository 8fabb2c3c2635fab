// Package sqlite provides a SQLite-backed workflow store using the pure Go
// modernc.org/sqlite driver. Suitable for development, tests and
// single-node deployments; the schema migrates automatically on open.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/crmflow/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS workflows (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL DEFAULT '',
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    trigger_type TEXT NOT NULL,
    trigger_config TEXT NOT NULL DEFAULT '{}',
    steps TEXT NOT NULL DEFAULT '[]',
    enabled INTEGER NOT NULL DEFAULT 0,
    run_count INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS workflow_runs (
    id TEXT PRIMARY KEY,
    workflow_id TEXT NOT NULL,
    trigger_event TEXT NOT NULL DEFAULT '{}',
    status TEXT NOT NULL,
    step_results TEXT NOT NULL DEFAULT '{}',
    error TEXT NOT NULL DEFAULT '',
    started_at DATETIME NOT NULL,
    completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_workflows_owner ON workflows(owner_id);
CREATE INDEX IF NOT EXISTS idx_workflow_runs_workflow ON workflow_runs(workflow_id, started_at);
`

// Store is a durable WorkflowStore on a SQLite database. Step lists, trigger
// payloads and step results are stored as JSON columns.
type Store struct {
	db *sql.DB
}

var _ core.WorkflowStore = (*Store)(nil)

// Open connects to the SQLite database at dsn (a file path, a "file:" URI or
// ":memory:"), applies the usual pragmas and migrates the schema.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveDefinition upserts a definition. Missing IDs and created timestamps
// are filled in; Updated is always refreshed.
func (s *Store) SaveDefinition(ctx context.Context, def *core.WorkflowDefinition) error {
	if def == nil {
		return fmt.Errorf("cannot save nil definition")
	}
	if def.ID == "" {
		def.ID = core.NewID()
	}

	now := time.Now().UTC()
	if def.Created.IsZero() {
		def.Created = now
	}
	def.Updated = now

	triggerCfg, err := json.Marshal(def.Trigger)
	if err != nil {
		return fmt.Errorf("marshal trigger config: %w", err)
	}
	steps, err := json.Marshal(def.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflows (id, owner_id, name, description, trigger_type, trigger_config, steps, enabled, run_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = excluded.owner_id,
			name = excluded.name,
			description = excluded.description,
			trigger_type = excluded.trigger_type,
			trigger_config = excluded.trigger_config,
			steps = excluded.steps,
			enabled = excluded.enabled,
			run_count = excluded.run_count,
			updated_at = excluded.updated_at`,
		def.ID, def.OwnerID, def.Name, def.Description, string(def.TriggerType),
		string(triggerCfg), string(steps), boolToInt(def.Enabled), def.RunCount,
		def.Created, def.Updated,
	)
	if err != nil {
		return fmt.Errorf("save definition: %w", err)
	}

	return nil
}

// GetDefinition loads the definition with the given id.
func (s *Store) GetDefinition(ctx context.Context, id string) (*core.WorkflowDefinition, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, description, trigger_type, trigger_config, steps, enabled, run_count, created_at, updated_at
		FROM workflows WHERE id = ?`, id)

	def, err := scanDefinition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", core.ErrWorkflowNotFound, id)
	}
	return def, err
}

// ListDefinitions returns the definitions owned by ownerID, oldest first.
// An empty ownerID lists all definitions.
func (s *Store) ListDefinitions(ctx context.Context, ownerID string) ([]*core.WorkflowDefinition, error) {
	query := `
		SELECT id, owner_id, name, description, trigger_type, trigger_config, steps, enabled, run_count, created_at, updated_at
		FROM workflows`
	args := []any{}
	if ownerID != "" {
		query += " WHERE owner_id = ?"
		args = append(args, ownerID)
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	defer rows.Close()

	var out []*core.WorkflowDefinition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}

	return out, rows.Err()
}

// DeleteDefinition removes a definition and all of its runs.
func (s *Store) DeleteDefinition(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM workflows WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete definition: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %q", core.ErrWorkflowNotFound, id)
	}

	_, err = s.db.ExecContext(ctx, "DELETE FROM workflow_runs WHERE workflow_id = ?", id)
	return err
}

// SaveRun upserts a run.
func (s *Store) SaveRun(ctx context.Context, run *core.WorkflowRun) error {
	if run == nil {
		return fmt.Errorf("cannot save nil run")
	}
	if run.ID == "" {
		run.ID = core.NewID()
	}

	triggerEvent, err := json.Marshal(run.TriggerEvent)
	if err != nil {
		return fmt.Errorf("marshal trigger event: %w", err)
	}
	stepResults, err := json.Marshal(run.StepResults)
	if err != nil {
		return fmt.Errorf("marshal step results: %w", err)
	}

	var completedAt any
	if run.CompletedAt != nil {
		completedAt = *run.CompletedAt
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_runs (id, workflow_id, trigger_event, status, step_results, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			step_results = excluded.step_results,
			error = excluded.error,
			completed_at = excluded.completed_at`,
		run.ID, run.WorkflowID, string(triggerEvent), string(run.Status),
		string(stepResults), run.Error, run.StartedAt, completedAt,
	)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}

	return nil
}

// GetRun loads the run with the given id.
func (s *Store) GetRun(ctx context.Context, id string) (*core.WorkflowRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workflow_id, trigger_event, status, step_results, error, started_at, completed_at
		FROM workflow_runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", core.ErrRunNotFound, id)
	}
	return run, err
}

// ListRuns returns the runs of a workflow, most recent first. An empty
// workflowID lists all runs.
func (s *Store) ListRuns(ctx context.Context, workflowID string) ([]*core.WorkflowRun, error) {
	query := `
		SELECT id, workflow_id, trigger_event, status, step_results, error, started_at, completed_at
		FROM workflow_runs`
	args := []any{}
	if workflowID != "" {
		query += " WHERE workflow_id = ?"
		args = append(args, workflowID)
	}
	query += " ORDER BY started_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []*core.WorkflowRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}

	return out, rows.Err()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row scanner) (*core.WorkflowDefinition, error) {
	var (
		def         core.WorkflowDefinition
		triggerType string
		triggerCfg  string
		steps       string
		enabled     int
	)

	err := row.Scan(&def.ID, &def.OwnerID, &def.Name, &def.Description, &triggerType,
		&triggerCfg, &steps, &enabled, &def.RunCount, &def.Created, &def.Updated)
	if err != nil {
		return nil, err
	}

	def.TriggerType = core.TriggerType(triggerType)
	def.Enabled = enabled != 0
	if err := json.Unmarshal([]byte(triggerCfg), &def.Trigger); err != nil {
		return nil, fmt.Errorf("unmarshal trigger config: %w", err)
	}
	if err := json.Unmarshal([]byte(steps), &def.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal steps: %w", err)
	}

	return &def, nil
}

func scanRun(row scanner) (*core.WorkflowRun, error) {
	var (
		run          core.WorkflowRun
		triggerEvent string
		status       string
		stepResults  string
		completedAt  sql.NullTime
	)

	err := row.Scan(&run.ID, &run.WorkflowID, &triggerEvent, &status,
		&stepResults, &run.Error, &run.StartedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	run.Status = core.RunStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	if err := json.Unmarshal([]byte(triggerEvent), &run.TriggerEvent); err != nil {
		return nil, fmt.Errorf("unmarshal trigger event: %w", err)
	}
	if err := json.Unmarshal([]byte(stepResults), &run.StepResults); err != nil {
		return nil, fmt.Errorf("unmarshal step results: %w", err)
	}

	return &run, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
