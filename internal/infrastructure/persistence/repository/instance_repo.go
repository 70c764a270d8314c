package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/garyjia/workflow-orchestrator/internal/application/port"
	"github.com/garyjia/workflow-orchestrator/internal/domain/workflow"
)

// InstanceRepository implements port.InstanceRepository with optimistic
// concurrency: the version column counts successful saves.
type InstanceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInstanceRepository creates a new instance repository
func NewInstanceRepository(db *sql.DB, logger *zap.Logger) port.InstanceRepository {
	return &InstanceRepository{
		db:     db,
		logger: logger,
	}
}

const instanceColumns = `id, org_id, definition_id, entity_type, entity_id, current_state, context,
	status, started_by, started_at, completed_at, version`

// Save inserts a new instance or updates it if the stored version still matches
func (r *InstanceRepository) Save(ctx context.Context, inst *workflow.Instance) error {
	snap := inst.Snapshot()

	// nil context is stored as NULL and an empty one as {}
	var instanceContext sql.NullString
	if snap.Context != nil {
		var err error
		if instanceContext, err = marshalJSON(snap.Context); err != nil {
			return err
		}
	}
	var completedAt sql.NullTime
	if snap.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *snap.CompletedAt, Valid: true}
	}

	exec := getExecutor(ctx, r.db)

	update := `
		UPDATE workflow_instances SET
			current_state = ?, context = ?, status = ?, completed_at = ?, version = ?
		WHERE id = ? AND version = ?
	`
	result, err := exec.ExecContext(ctx, update,
		snap.CurrentState,
		instanceContext,
		string(snap.Status),
		completedAt,
		snap.Version+1,
		snap.ID,
		snap.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update instance", zap.String("id", snap.ID), zap.Error(err))
		return fmt.Errorf("failed to update instance: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 1 {
		inst.IncrementVersion()
		return nil
	}

	var stored int64
	err = exec.QueryRowContext(ctx, `SELECT version FROM workflow_instances WHERE id = ?`, snap.ID).Scan(&stored)
	if err == nil {
		r.logger.Info("Instance version conflict",
			zap.String("id", snap.ID),
			zap.Int64("expected", snap.Version),
			zap.Int64("stored", stored))
		return fmt.Errorf("instance %s at version %d, stored %d: %w", snap.ID, snap.Version, stored, port.ErrVersionConflict)
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to read instance version: %w", err)
	}

	insert := `INSERT INTO workflow_instances (` + instanceColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = exec.ExecContext(ctx, insert,
		snap.ID,
		snap.OrgID,
		snap.DefinitionID,
		snap.EntityType,
		snap.EntityID,
		snap.CurrentState,
		instanceContext,
		string(snap.Status),
		snap.StartedBy,
		snap.StartedAt,
		completedAt,
		snap.Version+1,
	)
	if err != nil {
		if isUniqueViolation(err) {
			r.logger.Info("Duplicate running instance rejected",
				zap.String("id", snap.ID),
				zap.String("definition_id", snap.DefinitionID),
				zap.String("entity_id", snap.EntityID))
			return fmt.Errorf("instance %s for %s %s: %w", snap.ID, snap.EntityType, snap.EntityID, port.ErrDuplicateRunningInstance)
		}
		r.logger.Error("Failed to create instance", zap.String("id", snap.ID), zap.Error(err))
		return fmt.Errorf("failed to create instance: %w", err)
	}

	inst.IncrementVersion()
	return nil
}

// FindByID retrieves an instance of an organization
func (r *InstanceRepository) FindByID(ctx context.Context, id, orgID string) (*workflow.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE id = ? AND org_id = ?`

	inst, err := scanInstance(getExecutor(ctx, r.db).QueryRowContext(ctx, query, id, orgID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get instance by ID", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}
	return inst, nil
}

// FindRunningInstance returns the running instance of a definition for one entity
func (r *InstanceRepository) FindRunningInstance(ctx context.Context, entityType, entityID, definitionID, orgID string) (*workflow.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances
		WHERE entity_type = ? AND entity_id = ? AND definition_id = ? AND org_id = ? AND status = ?
		ORDER BY started_at DESC
		LIMIT 1`

	inst, err := scanInstance(getExecutor(ctx, r.db).QueryRowContext(ctx, query,
		entityType, entityID, definitionID, orgID, string(workflow.InstanceRunning)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to find running instance",
			zap.String("entity_type", entityType),
			zap.String("entity_id", entityID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to find running instance: %w", err)
	}
	return inst, nil
}

// FindAll lists an organization's instances matching filter, oldest first
func (r *InstanceRepository) FindAll(ctx context.Context, orgID string, filter port.InstanceFilter) ([]*workflow.Instance, error) {
	conditions := []string{"org_id = ?"}
	args := []interface{}{orgID}

	if filter.DefinitionID != "" {
		conditions = append(conditions, "definition_id = ?")
		args = append(args, filter.DefinitionID)
	}
	if filter.EntityType != "" {
		conditions = append(conditions, "entity_type = ?")
		args = append(args, filter.EntityType)
	}
	if filter.EntityID != "" {
		conditions = append(conditions, "entity_id = ?")
		args = append(args, filter.EntityID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE ` +
		strings.Join(conditions, " AND ") + ` ORDER BY started_at ASC, id ASC`

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list instances", zap.Error(err))
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	defer rows.Close()

	var instances []*workflow.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

func scanInstance(row rowScanner) (*workflow.Instance, error) {
	var (
		snap            workflow.InstanceSnapshot
		instanceContext sql.NullString
		status          string
		completedAt     sql.NullTime
	)

	err := row.Scan(
		&snap.ID,
		&snap.OrgID,
		&snap.DefinitionID,
		&snap.EntityType,
		&snap.EntityID,
		&snap.CurrentState,
		&instanceContext,
		&status,
		&snap.StartedBy,
		&snap.StartedAt,
		&completedAt,
		&snap.Version,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSON(instanceContext, &snap.Context); err != nil {
		return nil, err
	}
	snap.Status = workflow.InstanceStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		snap.CompletedAt = &t
	}

	return workflow.RestoreInstance(snap), nil
}

// isUniqueViolation reports a UNIQUE index violation; primary key collisions
// carry a different extended code and are not matched
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// Verify interface compliance
var _ port.InstanceRepository = (*InstanceRepository)(nil)
