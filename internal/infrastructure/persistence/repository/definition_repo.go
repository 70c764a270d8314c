package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/workflow-orchestrator/internal/application/port"
	"github.com/garyjia/workflow-orchestrator/internal/domain/workflow"
)

// DefinitionRepository implements port.DefinitionRepository.
// States, transitions and metadata are stored as JSON columns.
type DefinitionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDefinitionRepository creates a new definition repository
func NewDefinitionRepository(db *sql.DB, logger *zap.Logger) port.DefinitionRepository {
	return &DefinitionRepository{
		db:     db,
		logger: logger,
	}
}

const definitionColumns = `id, org_id, name, entity_type, states, transitions, status, version, metadata, created_at, updated_at`

// Save inserts or replaces a definition
func (r *DefinitionRepository) Save(ctx context.Context, def *workflow.Definition) error {
	snap := def.Snapshot()

	states, err := marshalJSON(snap.States)
	if err != nil {
		return err
	}
	transitions, err := marshalJSON(snap.Transitions)
	if err != nil {
		return err
	}
	var metadata sql.NullString
	if len(snap.Metadata) > 0 {
		if metadata, err = marshalJSON(snap.Metadata); err != nil {
			return err
		}
	}

	query := `
		INSERT INTO workflow_definitions (` + definitionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			entity_type = excluded.entity_type,
			states = excluded.states,
			transitions = excluded.transitions,
			status = excluded.status,
			version = excluded.version,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
		WHERE workflow_definitions.org_id = excluded.org_id
	`

	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		snap.ID,
		snap.OrgID,
		snap.Name,
		snap.EntityType,
		states,
		transitions,
		string(snap.Status),
		snap.Version,
		metadata,
		snap.CreatedAt,
		snap.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to save definition", zap.String("id", snap.ID), zap.Error(err))
		return fmt.Errorf("failed to save definition: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		r.logger.Info("Definition id owned by another organization",
			zap.String("id", snap.ID),
			zap.String("org_id", snap.OrgID))
		return fmt.Errorf("definition %s: %w", snap.ID, port.ErrDefinitionOwnedElsewhere)
	}
	return nil
}

// FindByID retrieves a definition of an organization
func (r *DefinitionRepository) FindByID(ctx context.Context, id, orgID string) (*workflow.Definition, error) {
	query := `SELECT ` + definitionColumns + ` FROM workflow_definitions WHERE id = ? AND org_id = ?`

	def, err := scanDefinition(getExecutor(ctx, r.db).QueryRowContext(ctx, query, id, orgID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get definition by ID", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get definition: %w", err)
	}
	return def, nil
}

// FindAll lists an organization's definitions, optionally narrowed to one entity type
func (r *DefinitionRepository) FindAll(ctx context.Context, orgID, entityType string) ([]*workflow.Definition, error) {
	query := `SELECT ` + definitionColumns + ` FROM workflow_definitions WHERE org_id = ?`
	args := []interface{}{orgID}
	if entityType != "" {
		query += ` AND entity_type = ?`
		args = append(args, entityType)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	return r.query(ctx, query, args...)
}

// FindActive lists active definitions of every organization
func (r *DefinitionRepository) FindActive(ctx context.Context) ([]*workflow.Definition, error) {
	query := `SELECT ` + definitionColumns + ` FROM workflow_definitions WHERE status = ? ORDER BY created_at ASC, id ASC`
	return r.query(ctx, query, string(workflow.DefinitionActive))
}

func (r *DefinitionRepository) query(ctx context.Context, query string, args ...interface{}) ([]*workflow.Definition, error) {
	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list definitions", zap.Error(err))
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}
	defer rows.Close()

	var defs []*workflow.Definition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan definition: %w", err)
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDefinition(row rowScanner) (*workflow.Definition, error) {
	var (
		snap        workflow.DefinitionSnapshot
		status      string
		states      sql.NullString
		transitions sql.NullString
		metadata    sql.NullString
		createdAt   time.Time
		updatedAt   time.Time
	)

	err := row.Scan(
		&snap.ID,
		&snap.OrgID,
		&snap.Name,
		&snap.EntityType,
		&states,
		&transitions,
		&status,
		&snap.Version,
		&metadata,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSON(states, &snap.States); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(transitions, &snap.Transitions); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(metadata, &snap.Metadata); err != nil {
		return nil, err
	}
	snap.Status = workflow.DefinitionStatus(status)
	snap.CreatedAt = createdAt
	snap.UpdatedAt = updatedAt

	return workflow.RestoreDefinition(snap), nil
}

// Verify interface compliance
var _ port.DefinitionRepository = (*DefinitionRepository)(nil)
