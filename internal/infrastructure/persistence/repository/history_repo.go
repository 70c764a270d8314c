package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/workflow-orchestrator/internal/application/port"
	"github.com/garyjia/workflow-orchestrator/internal/domain/workflow"
)

// HistoryRepository implements port.HistoryRepository
type HistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends a history entry, assigning its ID
func (r *HistoryRepository) Create(ctx context.Context, entry *workflow.HistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	var guard, action sql.NullString
	var err error
	if entry.Guard != nil {
		if guard, err = marshalJSON(entry.Guard); err != nil {
			return err
		}
	}
	if entry.Action != nil {
		if action, err = marshalJSON(entry.Action); err != nil {
			return err
		}
	}

	query := `
		INSERT INTO workflow_history (
			id, instance_id, org_id, from_state, to_state, triggered_by, timestamp, guard, action
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = getExecutor(ctx, r.db).ExecContext(ctx, query,
		entry.ID,
		entry.InstanceID,
		entry.OrgID,
		entry.FromState,
		entry.ToState,
		entry.TriggeredBy,
		entry.Timestamp,
		guard,
		action,
	)
	if err != nil {
		r.logger.Error("Failed to create history record", zap.String("instance_id", entry.InstanceID), zap.Error(err))
		return fmt.Errorf("failed to create history: %w", err)
	}
	return nil
}

// FindByInstanceID retrieves all history records for an instance, oldest first
func (r *HistoryRepository) FindByInstanceID(ctx context.Context, instanceID string) ([]*workflow.HistoryEntry, error) {
	query := `
		SELECT id, instance_id, org_id, from_state, to_state, triggered_by, timestamp, guard, action
		FROM workflow_history
		WHERE instance_id = ?
		ORDER BY timestamp ASC, rowid ASC
	`

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, instanceID)
	if err != nil {
		r.logger.Error("Failed to get history by instance ID", zap.String("instance_id", instanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var records []*workflow.HistoryEntry
	for rows.Next() {
		var record workflow.HistoryEntry
		var guard, action sql.NullString
		err := rows.Scan(
			&record.ID,
			&record.InstanceID,
			&record.OrgID,
			&record.FromState,
			&record.ToState,
			&record.TriggeredBy,
			&record.Timestamp,
			&guard,
			&action,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}

		if guard.Valid {
			record.Guard = &workflow.GuardResult{}
			if err := unmarshalJSON(guard, record.Guard); err != nil {
				return nil, err
			}
		}
		if action.Valid {
			record.Action = &workflow.ActionResult{}
			if err := unmarshalJSON(action, record.Action); err != nil {
				return nil, err
			}
		}
		records = append(records, &record)
	}
	return records, rows.Err()
}

// Verify interface compliance
var _ port.HistoryRepository = (*HistoryRepository)(nil)
